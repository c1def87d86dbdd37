package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/packwise/internal/model"
	"github.com/dukerupert/packwise/internal/packing"
)

type FamilyMemberHandler struct {
	svc    *packing.Service
	logger *slog.Logger
}

func NewFamilyMemberHandler(svc *packing.Service, logger *slog.Logger) *FamilyMemberHandler {
	return &FamilyMemberHandler{svc: svc, logger: logger}
}

func (h *FamilyMemberHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	members, err := h.svc.ListMembers(r.Context(), ac, familyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *FamilyMemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		Email    string     `json:"email" validate:"required,email,max=254"`
		Name     string     `json:"name" validate:"required,max=100"`
		Password string     `json:"password" validate:"required,min=8,max=72"`
		Role     model.Role `json:"role" validate:"omitempty,oneof=system_admin family_admin family_member"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.svc.AddMember(r.Context(), ac, familyID, req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
