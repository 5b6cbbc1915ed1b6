package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"os"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/seed"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/utils"
)

func main() {
	var op int
	var n int
	var file string

	flag.IntVar(&op, "op", 0, "operation (1: initial admin and default roles, 2: random users, 3: random subjects, 4: random sessions, 5: import roster CSV)")
	flag.IntVar(&n, "n", 5, "number of records to insert")
	flag.StringVar(&file, "file", "", "roster CSV for -op 5")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbpool, err := repository.Open(cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	repo, err := repository.NewRepository(cfg, dbpool)
	if err != nil {
		logger.Error("failed to create repository", "error", err)
		return
	}

	ctx := context.Background()
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		return
	}

	if op != 1 && op != 5 && n <= 0 {
		logger.Error("-n must be positive")
		return
	}

	switch op {
	case 0:
		logger.Error("no operation given")
	case 1:
		seedDefaults(ctx, repo, cfg)
	case 2:
		cnt := 0
		for i := 0; i < n; i++ {
			user, role, err := utils.GenerateRandomUser(cfg.Seed.User.Password, cfg.Email.UserDomain)
			if err != nil {
				logger.Error("failed to generate user", slog.String("error", err.Error()))
				continue
			}

			if err := repo.RegisterUser(ctx, user, role); err != nil {
				logger.Error("failed to register user", slog.String("email", user.Email), slog.String("error", err.Error()))
				continue
			}

			cnt++
		}

		logger.Info("users inserted", slog.Int("count", cnt))
	case 3:
		cnt := 0
		for i := 0; i < n; i++ {
			if err := repo.CreateSubject(ctx, utils.GenerateRandomSubject()); err != nil {
				logger.Error("failed to insert subject", slog.String("error", err.Error()))
				continue
			}

			cnt++
		}

		logger.Info("subjects inserted", slog.Int("count", cnt))
	case 4:
		seedSessions(ctx, repo, n)
	case 5:
		if file == "" {
			logger.Error("-file is required for -op 5")
			return
		}

		f, err := os.Open(file)
		if err != nil {
			logger.Error("failed to open roster", "error", err)
			return
		}
		defer f.Close()

		result, err := seed.ImportRoster(ctx, repo, f, cfg.Seed.User.Password)
		if err != nil {
			logger.Error("roster import stopped", "error", err)
		}
		logger.Info("roster imported", "created", result.Created, "skipped", result.Skipped, "failed", result.Failed)
	default:
		logger.Error("unknown operation", "op", op)
	}
}

func seedDefaults(ctx context.Context, repo *repository.Repository, cfg *config.Config) {
	for _, name := range []string{domain.RoleStudent, domain.RoleTutor, domain.RoleAdmin} {
		if err := repo.CreateRole(ctx, &domain.Role{Name: name}); err != nil && !errors.Is(err, repository.ErrDuplicateRoleName) {
			slog.Error("failed to create role", "role", name, "error", err)
			return
		}
	}

	admin, created, err := seed.EnsureInitialAdmin(ctx, repo, cfg)
	if err != nil {
		slog.Error("failed to ensure initial admin", "error", err)
		return
	}
	slog.Info("initial admin ready", "matricula", admin.Matricula, "created", created)
}

// seedSessions books n random sessions between existing tutors and
// students. Tutors without subjects are given one first.
func seedSessions(ctx context.Context, repo *repository.Repository, n int) {
	tutors, err := repo.GetAllTutors(ctx)
	if err != nil {
		slog.Error("failed to list tutors", "error", err)
		return
	}
	students, err := repo.GetAllUsers(ctx, domain.RoleStudent)
	if err != nil {
		slog.Error("failed to list students", "error", err)
		return
	}
	subjects, err := repo.GetAllSubjects(ctx)
	if err != nil {
		slog.Error("failed to list subjects", "error", err)
		return
	}

	if len(tutors) == 0 || len(students) == 0 || len(subjects) == 0 {
		slog.Error("need at least one tutor, student and subject (run -op 2 and -op 3 first)")
		return
	}

	for _, t := range tutors {
		if len(t.Subjects) > 0 {
			continue
		}
		s := subjects[rand.Intn(len(subjects))]
		if err := repo.SetTutorSubjects(ctx, t.ID, []int64{s.ID}); err != nil {
			slog.Error("failed to assign subject", "tutor", t.Matricula, "error", err)
			return
		}
		t.Subjects = append(t.Subjects, *s)
	}

	cnt := 0
	for i := 0; i < n; i++ {
		t := tutors[rand.Intn(len(tutors))]
		st := students[rand.Intn(len(students))]
		subject := t.Subjects[rand.Intn(len(t.Subjects))]

		if err := repo.CreateSession(ctx, utils.GenerateRandomSession(t.ID, st.ID, subject.ID)); err != nil {
			slog.Error("failed to insert session", "error", err)
			continue
		}

		cnt++
	}

	slog.Info("sessions inserted", slog.Int("count", cnt))
}
