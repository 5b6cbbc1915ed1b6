// Package matricula hands out the sequential identifiers users receive at
// registration, e.g. A001 for the first student or T042 for a tutor.
//
// Identifiers are computed inside the registering transaction and the
// namespace of a prefix is locked in the database while doing so, so the
// package keeps no counters of its own.
package matricula

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MinWidth is the minimum number of digits after the prefix. Larger numbers
// keep all their digits.
const MinWidth = 3

const (
	PrefixStudent = "A"
	PrefixTutor   = "T"
	PrefixAdmin   = "X"
	PrefixOther   = "U"
)

// checked in order, first match wins
var rolePrefixes = []struct {
	fragment string
	prefix   string
}{
	{"alum", PrefixStudent},
	{"tutor", PrefixTutor},
	{"admin", PrefixAdmin},
}

// PrefixForRole maps a role display name to its identifier prefix by a
// case-insensitive substring match. Unknown and empty names map to
// PrefixOther.
func PrefixForRole(roleName string) string {
	name := strings.ToLower(roleName)
	for _, rp := range rolePrefixes {
		if strings.Contains(name, rp.fragment) {
			return rp.prefix
		}
	}
	return PrefixOther
}

// ValidPrefix reports whether prefix is a single uppercase ASCII letter.
func ValidPrefix(prefix string) bool {
	return len(prefix) == 1 && prefix[0] >= 'A' && prefix[0] <= 'Z'
}

// Sequence extracts the numeric part of a stored identifier by dropping every
// non-digit character. Values without digits, or whose successor does not
// fit an int64, count as 0.
func Sequence(value string) int64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, value)

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n == math.MaxInt64 {
		return 0
	}
	return n
}

// Format renders prefix followed by n padded to MinWidth digits.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, MinWidth, n)
}

// Next returns the identifier following highest. found is false when the
// namespace is empty.
func Next(prefix, highest string, found bool) string {
	if !found {
		return Format(prefix, 1)
	}
	return Format(prefix, Sequence(highest)+1)
}
