package utils

import (
	crand "crypto/rand"
	"fmt"
	"math/big"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var commonGivenNames = []string{
	"José", "María", "Sofía", "Mateo", "Valentina", "Santiago", "Camila", "Sebastián",
	"Lucía", "Diego", "Ximena", "Andrés", "Renata", "Emilio", "Regina", "Iñaki",
}

var commonSurnames = []string{
	"García", "Hernández", "Martínez", "López", "González", "Pérez", "Rodríguez", "Sánchez",
	"Ramírez", "Cruz", "Flores", "Gómez", "Morales", "Vázquez", "Jiménez", "Núñez",
}

// exchange students show up in every roster
var commonChineseSurnames = []string{"王", "李", "张", "刘", "陈", "杨", "赵", "黄"}
var commonChineseNameCharacters = []string{"伟", "芳", "敏", "静", "杰", "涛", "明", "玲", "欣", "鹏"}

func GenerateRandomFullName() string {
	if rand.Intn(5) == 0 {
		name := commonChineseSurnames[rand.Intn(len(commonChineseSurnames))]
		for i := 0; i < rand.Intn(2)+1; i++ {
			name += commonChineseNameCharacters[rand.Intn(len(commonChineseNameCharacters))]
		}
		return name
	}

	return fmt.Sprintf("%s %s %s",
		commonGivenNames[rand.Intn(len(commonGivenNames))],
		commonSurnames[rand.Intn(len(commonSurnames))],
		commonSurnames[rand.Intn(len(commonSurnames))],
	)
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// EmailLocalPart turns a full name into a lowercase ASCII mailbox name.
// Han characters are romanized with pinyin and accents are dropped, so
// "José Núñez" becomes "jose.nunez" and "王伟" becomes "wangwei".
func EmailLocalPart(fullName string) string {
	parts := make([]string, 0)

	for _, word := range strings.Fields(fullName) {
		if romanized := pinyin.LazyConvert(word, nil); len(romanized) > 0 {
			word = strings.Join(romanized, "")
		}

		folded, _, err := transform.String(accentFolder, word)
		if err != nil {
			folded = word
		}

		var b strings.Builder
		for _, r := range strings.ToLower(folded) {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			parts = append(parts, b.String())
		}
	}

	return strings.Join(parts, ".")
}

var roleNames = []string{
	domain.RoleStudent,
	domain.RoleStudent,
	domain.RoleStudent,
	domain.RoleTutor,
}

// GenerateRandomRoleName picks a role for a seeded account. Students
// outnumber tutors and admins are never generated.
func GenerateRandomRoleName() string {
	return roleNames[rand.Intn(len(roleNames))]
}

var digits = "0123456789"

// GenerateRandomUser builds an unsaved user and the role it should be
// registered with. The matricula is left empty for the allocator.
func GenerateRandomUser(password string, emailDomainName string) (*domain.User, string, error) {
	fullName := GenerateRandomFullName()

	local := EmailLocalPart(fullName)
	for i := 0; i < rand.Intn(3)+1; i++ {
		local += string(digits[rand.Intn(len(digits))])
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	user := &domain.User{
		FullName:     fullName,
		Email:        local + "@" + emailDomainName,
		PasswordHash: string(passwordHash),
	}

	return user, GenerateRandomRoleName(), nil
}

var subjectNames = []string{
	"Álgebra", "Cálculo Diferencial", "Cálculo Integral", "Física I", "Química General",
	"Programación", "Estructuras de Datos", "Probabilidad", "Inglés", "Redacción",
}

func GenerateRandomSubject() *domain.Subject {
	name := subjectNames[rand.Intn(len(subjectNames))]
	return &domain.Subject{
		Name:        name + " " + GenerateRandomID(2, 2),
		Description: "Asesoría de " + name,
	}
}

// GenerateRandomSession schedules a one or two hour session on a weekday
// afternoon within the next four weeks.
func GenerateRandomSession(tutorID, studentID, subjectID int64) *domain.Session {
	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, rand.Intn(28)+1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}

	start := day.Add(time.Duration(rand.Intn(6)+12) * time.Hour)
	return &domain.Session{
		TutorID:   tutorID,
		StudentID: studentID,
		SubjectID: subjectID,
		StartsAt:  start,
		EndsAt:    start.Add(time.Duration(rand.Intn(2)+1) * time.Hour),
		Status:    domain.SessionScheduled,
	}
}

// secureIntn is rand.Intn backed by crypto/rand, for anything that ends up
// being a credential.
func secureIntn(n int) int {
	v, err := crand.Int(crand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the OS source is broken
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return int(v.Int64())
}

func GenerateRandomOTP() string {
	return fmt.Sprintf("%06d", secureIntn(1000000))
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*")

func GenerateRandomPassword(length int) string {
	randomPassword := make([]rune, length)
	for i := range randomPassword {
		randomPassword[i] = letters[secureIntn(len(letters))]
	}
	return string(randomPassword)
}

func GenerateRandomID(letterLength int, digitLength int) string {
	randomID := make([]rune, letterLength+digitLength)
	for i := range randomID {
		if i < letterLength {
			randomID[i] = rune('A' + rand.Intn(26))
		} else {
			randomID[i] = rune(digits[rand.Intn(len(digits))])
		}
	}
	return string(randomID)
}
