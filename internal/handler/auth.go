package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/model"
	"github.com/dukerupert/packwise/internal/packing"
)

type AuthHandler struct {
	svc    *packing.Service
	tokens *auth.Tokens
	logger *slog.Logger
}

func NewAuthHandler(svc *packing.Service, tokens *auth.Tokens, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, tokens: tokens, logger: logger}
}

type tokenResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *model.User   `json:"user"`
	Family    *model.Family `json:"family,omitempty"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FamilyName string `json:"family_name" validate:"required,max=100"`
		Email      string `json:"email" validate:"required,email,max=254"`
		Name       string `json:"name" validate:"required,max=100"`
		Password   string `json:"password" validate:"required,min=8,max=72"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, family, err := h.svc.Register(r.Context(), req.FamilyName, req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.issue(w, http.StatusCreated, user, family)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("user logged in", "user_id", user.ID)
	h.issue(w, http.StatusOK, user, nil)
}

func (h *AuthHandler) issue(w http.ResponseWriter, status int, user *model.User, family *model.Family) {
	token, expires, err := h.tokens.Issue(packing.AuthFor(user))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, status, tokenResponse{Token: token, ExpiresAt: expires, User: user, Family: family})
}
