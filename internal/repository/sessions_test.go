package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
)

func mustCreateSubject(t *testing.T, repo *Repository, name string) *domain.Subject {
	t.Helper()
	s := &domain.Subject{Name: name, Description: name + " básico"}
	if err := repo.CreateSubject(context.Background(), s); err != nil {
		t.Fatalf("create subject %s: %v", name, err)
	}
	return s
}

func TestSubjects(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	algebra := mustCreateSubject(t, repo, "Álgebra")
	mustCreateSubject(t, repo, "Cálculo")

	if err := repo.CreateSubject(ctx, &domain.Subject{Name: "Álgebra"}); !errors.Is(err, ErrDuplicateSubjectName) {
		t.Fatalf("expected ErrDuplicateSubjectName, got %v", err)
	}

	stale := *algebra
	algebra.Description = "Álgebra lineal"
	if err := repo.UpdateSubject(ctx, algebra); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.UpdateSubject(ctx, &stale); !errors.Is(err, ErrEditConflict) {
		t.Fatalf("expected ErrEditConflict, got %v", err)
	}

	got, err := repo.GetSubjectByID(ctx, algebra.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != "Álgebra lineal" || got.Version != 2 {
		t.Fatalf("unexpected subject %+v", got)
	}

	all, err := repo.GetAllSubjects(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 subjects, got %d", len(all))
	}

	if err := repo.DeleteSubject(ctx, algebra.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetSubjectByID(ctx, algebra.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestTutors(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	tutor := mustRegister(t, repo, "tomas", domain.RoleTutor)
	idle := mustRegister(t, repo, "ursula", domain.RoleTutor)
	mustRegister(t, repo, "victor", domain.RoleStudent)
	fisica := mustCreateSubject(t, repo, "Física")
	quimica := mustCreateSubject(t, repo, "Química")

	if err := repo.SetTutorSubjects(ctx, tutor.ID, []int64{fisica.ID, quimica.ID}); err != nil {
		t.Fatalf("set subjects: %v", err)
	}

	tutors, err := repo.GetAllTutors(ctx)
	if err != nil {
		t.Fatalf("get tutors: %v", err)
	}
	if len(tutors) != 2 {
		t.Fatalf("expected 2 tutors, got %d", len(tutors))
	}
	if tutors[0].ID != tutor.ID || len(tutors[0].Subjects) != 2 {
		t.Fatalf("unexpected first tutor %+v", tutors[0])
	}
	if tutors[1].ID != idle.ID || len(tutors[1].Subjects) != 0 {
		t.Fatalf("unexpected second tutor %+v", tutors[1])
	}

	if err := repo.SetTutorSubjects(ctx, tutor.ID, []int64{quimica.ID}); err != nil {
		t.Fatalf("replace subjects: %v", err)
	}
	got, err := repo.GetTutorByID(ctx, tutor.ID)
	if err != nil {
		t.Fatalf("get tutor: %v", err)
	}
	if len(got.Subjects) != 1 || got.Subjects[0].ID != quimica.ID {
		t.Fatalf("unexpected subjects %+v", got.Subjects)
	}

	teaches, err := repo.TutorTeaches(ctx, tutor.ID, fisica.ID)
	if err != nil || teaches {
		t.Fatalf("TutorTeaches(fisica) = %v, %v", teaches, err)
	}

	if err := repo.SetTutorSubjects(ctx, tutor.ID, []int64{9999}); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	// the failed replacement must not have removed the previous subjects
	if teaches, _ := repo.TutorTeaches(ctx, tutor.ID, quimica.ID); !teaches {
		t.Fatal("expected previous subjects to survive a failed replacement")
	}

	if _, err := repo.GetTutorByID(ctx, 424242); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestSessions(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	tutor := mustRegister(t, repo, "walter", domain.RoleTutor)
	student := mustRegister(t, repo, "ximena", domain.RoleStudent)
	other := mustRegister(t, repo, "yago", domain.RoleStudent)
	subject := mustCreateSubject(t, repo, "Historia")

	start := time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC)
	s := &domain.Session{
		TutorID:   tutor.ID,
		StudentID: student.ID,
		SubjectID: subject.ID,
		StartsAt:  start,
		EndsAt:    start.Add(time.Hour),
		Notes:     "repaso",
	}
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Status != domain.SessionScheduled {
		t.Fatalf("expected default status, got %s", s.Status)
	}

	later := &domain.Session{TutorID: tutor.ID, StudentID: other.ID, SubjectID: subject.ID, StartsAt: start.Add(24 * time.Hour), EndsAt: start.Add(25 * time.Hour)}
	if err := repo.CreateSession(ctx, later); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetSessionByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.StartsAt.Equal(start) || got.Notes != "repaso" {
		t.Fatalf("unexpected session %+v", got)
	}

	byTutor, err := repo.GetAllSessions(ctx, domain.SessionFilter{TutorID: tutor.ID})
	if err != nil || len(byTutor) != 2 {
		t.Fatalf("tutor sessions = %d, %v", len(byTutor), err)
	}
	byStudent, err := repo.GetAllSessions(ctx, domain.SessionFilter{StudentID: other.ID})
	if err != nil || len(byStudent) != 1 || byStudent[0].ID != later.ID {
		t.Fatalf("student sessions = %+v, %v", byStudent, err)
	}

	got.Status = domain.SessionCompleted
	if err := repo.UpdateSession(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	s.Notes = "stale"
	if err := repo.UpdateSession(ctx, s); !errors.Is(err, ErrEditConflict) {
		t.Fatalf("expected ErrEditConflict, got %v", err)
	}

	bad := &domain.Session{TutorID: tutor.ID, StudentID: student.ID, SubjectID: 9999, StartsAt: start, EndsAt: start.Add(time.Hour)}
	if err := repo.CreateSession(ctx, bad); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}

	if err := repo.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetSessionByID(ctx, s.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
