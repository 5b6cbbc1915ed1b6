package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

type AuthClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func otpKey(m, purpose string) string {
	return fmt.Sprintf("otp_%s_%s", m, purpose)
}

func (h *Handler) redisContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(h.config.Redis.OperationExpiration)*time.Second)
}

// publishMail queues msg. A broken queue must not undo work that is already
// committed, so callers only log the error.
func (h *Handler) publishMail(r *http.Request, msg domain.MailMessage) error {
	if err := h.mailer.Publish(r.Context(), msg); err != nil {
		slog.Error("failed to queue mail", "request_id", requestID(r), "type", msg.Type, "to", msg.To, "error", err)
		return err
	}
	return nil
}

// registerUser runs the shared part of self-registration and admin account
// creation. It writes the response itself when it returns false.
func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request, user *domain.User, roleName string) bool {
	err := h.repository.RegisterUser(r.Context(), user, roleName)
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, repository.ErrRoleNotFound):
		h.errorResponse(w, r, "rol inválido")
	case errors.Is(err, repository.ErrDuplicateEmail):
		h.errorResponse(w, r, "el correo ya está registrado")
	case errors.Is(err, matricula.ErrContention):
		h.serviceUnavailable(w, r, err)
	default:
		h.internalServerError(w, r, err)
	}
	return false
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"fullName" validate:"required,max=100"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8,max=72"`
		Role     string `json:"role" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// administrators are only created by other administrators
	if matricula.PrefixForRole(req.Role) == matricula.PrefixAdmin {
		h.errorResponse(w, r, "rol inválido")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	user := &domain.User{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
	}
	if !h.registerUser(w, r, user, req.Role) {
		return
	}

	_ = h.publishMail(r, domain.MailMessage{
		Type: domain.MailWelcome,
		To:   user.Email,
		Data: domain.WelcomeMailData{
			FullName:  user.FullName,
			Matricula: user.Matricula,
		},
	})

	h.successResponse(w, r, "registro exitoso", user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email" validate:"required_without=Matricula,omitempty,email"`
		Matricula string `json:"matricula" validate:"required_without=Email"`
		Password  string `json:"password" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	var (
		user *domain.User
		err  error
	)
	if req.Email != "" {
		user, err = h.repository.GetUserByEmail(r.Context(), req.Email)
	} else {
		user, err = h.repository.GetUserByMatricula(r.Context(), req.Matricula)
	}
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "usuario inexistente o contraseña incorrecta")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			h.errorResponse(w, r, "usuario inexistente o contraseña incorrecta")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	if !user.IsActive {
		h.errorResponse(w, r, "cuenta desactivada")
		return
	}

	now := time.Now()
	expiration := now.Add(time.Duration(h.config.JWT.Expiration) * time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(user.ID, 10),
		},
	})
	ss, err := token.SignedString([]byte(h.config.JWT.Secret))
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	cookie := &http.Cookie{
		Name:     tokenCookieName,
		Value:    ss,
		Expires:  expiration,
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
	}

	if h.config.Environment == "production" {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteStrictMode
	}

	http.SetCookie(w, cookie)

	h.successResponse(w, r, "inicio de sesión exitoso", user)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
	})

	h.successResponse(w, r, "sesión cerrada", nil)
}

func (h *Handler) RequireResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	const sent = "el código de verificación fue enviado por correo"

	user, err := h.repository.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// same answer as for a real account so the endpoint cannot be used to probe emails
			h.successResponse(w, r, sent, nil)
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	otp := utils.GenerateRandomOTP()

	ctx, cancel := h.redisContext(r.Context())
	defer cancel()

	if err := h.redisClient.Set(ctx, otpKey(user.Matricula, domain.MailResetPassword), otp, time.Duration(h.config.OTP.Expiration)*time.Second).Err(); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := h.publishMail(r, domain.MailMessage{
		Type: domain.MailResetPassword,
		To:   user.Email,
		Data: domain.ResetPasswordMailData{
			FullName:   user.FullName,
			OTP:        otp,
			Expiration: h.config.OTP.Expiration / 60, // minutes in the mail body
		},
	}); err != nil {
		// without the mail the code is useless
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, sent, nil)
}

func (h *Handler) ConfirmResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		OTP      string `json:"otp" validate:"required,len=6,numeric"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	user, err := h.repository.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "código de verificación incorrecto")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	ctx, cancel := h.redisContext(r.Context())
	defer cancel()

	key := otpKey(user.Matricula, domain.MailResetPassword)
	otp, err := h.redisClient.Get(ctx, key).Result()
	if err != nil || otp != req.OTP {
		h.errorResponse(w, r, "código de verificación incorrecto")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	user.PasswordHash = string(hashedPassword)

	if err := h.repository.UpdateUser(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			h.errorResponse(w, r, "inténtalo de nuevo")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	if err := h.redisClient.Del(ctx, key).Err(); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "contraseña restablecida", nil)
}
