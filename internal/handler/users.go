package handler

import (
	"errors"
	"net/http"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

func (h *Handler) GetAllUserInfo(w http.ResponseWriter, r *http.Request) {
	users, err := h.repository.GetAllUsers(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "usuarios obtenidos", users)
}

// CreateUser registers an account on someone else's behalf. Any role is
// allowed and the generated password goes out by mail.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"fullName" validate:"required,max=100"`
		Email    string `json:"email" validate:"required,email"`
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

	password := utils.GenerateRandomPassword(h.config.NewUser.PasswordLength)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
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

	if err := h.publishMail(r, domain.MailMessage{
		Type: domain.MailNewAccount,
		To:   user.Email,
		Data: domain.NewAccountMailData{
			FullName:  user.FullName,
			Matricula: user.Matricula,
			Password:  password,
		},
	}); err != nil {
		// the account exists; an admin can still set a password by hand
		h.successResponse(w, r, "usuario creado, pero no se pudo enviar el correo con la contraseña", user)
		return
	}

	h.successResponse(w, r, "usuario creado", user)
}

func (h *Handler) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(UserInfoCtx).(*domain.User)

	// non-admins may look at tutors and at themselves only
	role, _ := r.Context().Value(RoleCtxKey).(string)
	sub, _ := r.Context().Value(SubCtxKey).(string)
	caller := domain.User{Role: role}
	if !caller.IsAdmin() && !user.IsTutor() && sub != formatID(user.ID) {
		h.forbidden(w, r)
		return
	}

	h.successResponse(w, r, "usuario obtenido", user)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName *string `json:"fullName" validate:"omitempty,max=100"`
		Email    *string `json:"email" validate:"omitempty,email"`
		IsActive *bool   `json:"isActive"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	user := r.Context().Value(UserInfoCtx).(*domain.User)

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := h.repository.UpdateUser(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			h.errorResponse(w, r, "el correo ya está registrado")
		case errors.Is(err, repository.ErrEditConflict):
			h.errorResponse(w, r, "no se pudo actualizar el usuario, inténtalo de nuevo")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "usuario actualizado", user)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(UserInfoCtx).(*domain.User)

	if err := h.repository.DeleteUser(r.Context(), user.ID); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "usuario eliminado", nil)
}

func (h *Handler) UpdateUserPassword(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(UserInfoCtx).(*domain.User)

	var req struct {
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

	h.successResponse(w, r, "contraseña actualizada", nil)
}
