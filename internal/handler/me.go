package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

func (h *Handler) GetMyInfo(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)
	h.successResponse(w, r, "información personal obtenida", myInfo)
}

func (h *Handler) UpdateMyPassword(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)

	var req struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(myInfo.PasswordHash), []byte(req.OldPassword)); err != nil {
		h.errorResponse(w, r, "la contraseña actual es incorrecta")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	myInfo.PasswordHash = string(hashedPassword)

	if err := h.repository.UpdateUser(r.Context(), myInfo); err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			h.errorResponse(w, r, "no se pudo actualizar la contraseña, inténtalo de nuevo")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "contraseña actualizada", nil)
}

func (h *Handler) RequireUpdateEmail(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)

	var req struct {
		NewEmail string `json:"newEmail" validate:"required,email"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	_, err := h.repository.GetUserByEmail(r.Context(), req.NewEmail)
	switch {
	case err == nil:
		h.errorResponse(w, r, "el correo ya está registrado")
		return
	case !errors.Is(err, sql.ErrNoRows):
		h.internalServerError(w, r, err)
		return
	}

	otp := utils.GenerateRandomOTP()

	ctx, cancel := h.redisContext(r.Context())
	defer cancel()

	key := otpKey(myInfo.Matricula, domain.MailChangeEmail+"_to_"+req.NewEmail)
	if err := h.redisClient.Set(ctx, key, otp, time.Duration(h.config.OTP.Expiration)*time.Second).Err(); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := h.publishMail(r, domain.MailMessage{
		Type: domain.MailChangeEmail,
		To:   req.NewEmail,
		Data: domain.ChangeEmailMailData{
			FullName:   myInfo.FullName,
			OTP:        otp,
			Expiration: h.config.OTP.Expiration / 60,
		},
	}); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "el código de verificación fue enviado al nuevo correo", nil)
}

func (h *Handler) ConfirmUpdateEmail(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)

	var req struct {
		OTP      string `json:"otp" validate:"required,len=6,numeric"`
		NewEmail string `json:"newEmail" validate:"required,email"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	ctx, cancel := h.redisContext(r.Context())
	defer cancel()

	key := otpKey(myInfo.Matricula, domain.MailChangeEmail+"_to_"+req.NewEmail)
	otp, err := h.redisClient.Get(ctx, key).Result()
	if err != nil || otp != req.OTP {
		h.errorResponse(w, r, "código de verificación incorrecto")
		return
	}

	myInfo.Email = req.NewEmail
	if err := h.repository.UpdateUser(r.Context(), myInfo); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			h.errorResponse(w, r, "el correo ya está registrado")
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

	h.successResponse(w, r, "correo actualizado", myInfo)
}
