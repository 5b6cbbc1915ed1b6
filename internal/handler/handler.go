package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	es_translations "github.com/go-playground/validator/v10/translations/es"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
)

// MailPublisher queues a mail message for the mail worker.
type MailPublisher interface {
	Publish(ctx context.Context, msg domain.MailMessage) error
}

type Handler struct {
	validate    *validator.Validate
	config      *config.Config
	repository  *repository.Repository
	translator  ut.Translator
	mailer      MailPublisher
	redisClient *redis.Client

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo *repository.Repository, mailer MailPublisher, rdb *redis.Client) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	es := es.New()
	uni := ut.New(es, es)
	trans, _ := uni.GetTranslator("es")
	if err := es_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:    validate,
		config:      cfg,
		repository:  repo,
		translator:  trans,
		mailer:      mailer,
		redisClient: rdb,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Route("/reset-password", func(r chi.Router) {
			r.Post("/require", h.RequireResetPassword)
			r.Post("/confirm", h.ConfirmResetPassword)
		})
	})

	// everything below needs a valid session cookie of an active account
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth, h.myInfo)
		r.Route("/my-info", func(r chi.Router) {
			r.Get("/", h.GetMyInfo)
			r.Patch("/password", h.UpdateMyPassword)
			r.Route("/update-email", func(r chi.Router) {
				r.Post("/require", h.RequireUpdateEmail)
				r.Post("/confirm", h.ConfirmUpdateEmail)
			})
		})

		r.Route("/roles", func(r chi.Router) {
			r.Get("/", h.GetAllRoles)
			r.With(h.requiredAdmin).Post("/", h.CreateRole)
			r.With(h.requiredAdmin).Delete("/{id}", h.DeleteRole)
		})

		r.With(h.requiredAdmin).Get("/matriculas/next", h.PreviewMatricula)

		r.Route("/users", func(r chi.Router) {
			r.With(h.requiredAdmin).Post("/", h.CreateUser)
			r.With(h.requiredAdmin).Get("/", h.GetAllUserInfo)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.userInfo)
				r.Get("/", h.GetUserInfo)
				r.With(h.requiredAdmin).With(h.preventOperateInitialAdmin).Patch("/", h.UpdateUser)
				r.With(h.requiredAdmin).With(h.preventOperateInitialAdmin).Delete("/", h.DeleteUser)
				r.With(h.requiredAdmin).Patch("/password", h.UpdateUserPassword)
			})
		})

		r.Route("/subjects", func(r chi.Router) {
			r.Get("/", h.GetAllSubjects)
			r.With(h.requiredAdmin).Post("/", h.CreateSubject)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.subject)
				r.Get("/", h.GetSubject)
				r.With(h.requiredAdmin).Patch("/", h.UpdateSubject)
				r.With(h.requiredAdmin).Delete("/", h.DeleteSubject)
			})
		})

		r.Route("/tutors", func(r chi.Router) {
			r.Get("/", h.GetAllTutors)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.tutor)
				r.Get("/", h.GetTutor)
				r.With(h.requiredAdmin).Put("/subjects", h.SetTutorSubjects)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.GetAllSessions)
			r.Post("/", h.CreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.session)
				r.Get("/", h.GetSession)
				r.Patch("/", h.UpdateSession)
				r.With(h.requiredAdmin).Delete("/", h.DeleteSession)
			})
		})
	})
}
