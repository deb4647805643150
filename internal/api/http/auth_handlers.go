package http

import (
	"net/http"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/service"
)

// Signup field checks beyond length live in the service so that its
// messages reach the user unchanged.
type signupRequest struct {
	Email           string `json:"email" validate:"max=254"`
	Username        string `json:"username" validate:"max=64"`
	Password        string `json:"password" validate:"max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"max=128"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
}

type adminLoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type userResponse struct {
	ID        domain.ID `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	user, err := h.auth.Signup(r.Context(), service.SignupInput{
		Email:           req.Email,
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	}, nil)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	session, err := h.auth.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session, nil)
}

func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	session, err := h.auth.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session, nil)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), userID(r)); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeMessage(w, http.StatusOK, "Logged out")
}
