package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/packwise/internal/packing"
	"github.com/dukerupert/packwise/internal/store"
)

type PackingListHandler struct {
	svc    *packing.Service
	logger *slog.Logger
}

func NewPackingListHandler(svc *packing.Service, logger *slog.Logger) *PackingListHandler {
	return &PackingListHandler{svc: svc, logger: logger}
}

func (h *PackingListHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	lists, err := h.svc.ListPackingLists(r.Context(), ac, familyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *PackingListHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		Name       string `json:"name" validate:"required,max=100"`
		TemplateID *int64 `json:"template_id" validate:"omitempty,gt=0"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	l, err := h.svc.CreatePackingList(r.Context(), ac, familyID, req.Name, req.TemplateID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *PackingListHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	l, err := h.svc.GetPackingList(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *PackingListHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		Name string `json:"name" validate:"required,max=100"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	l, err := h.svc.RenamePackingList(r.Context(), caller(r), id, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *PackingListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.DeletePackingList(r.Context(), caller(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PackingListHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "id", "template_id")
	if !ok {
		return
	}
	res, err := h.svc.SubscribeTemplate(r.Context(), caller(r), ids[0], ids[1])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PackingListHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "id", "template_id")
	if !ok {
		return
	}
	res, err := h.svc.UnsubscribeTemplate(r.Context(), caller(r), ids[0], ids[1])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PackingListHandler) Resync(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := h.svc.ResyncList(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PackingListHandler) Items(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	items, err := h.svc.ListItemsOf(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *PackingListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		ItemID             int64 `json:"item_id" validate:"required,gt=0"`
		AddedDuringPacking bool  `json:"added_during_packing"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	pli, err := h.svc.AddItem(r.Context(), caller(r), id, req.ItemID, req.AddedDuringPacking)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, pli)
}

func (h *PackingListHandler) AddOneOff(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		DisplayName        string `json:"display_name" validate:"required,max=200"`
		AddedDuringPacking bool   `json:"added_during_packing"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	pli, err := h.svc.AddOneOff(r.Context(), caller(r), id, req.DisplayName, req.AddedDuringPacking)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, pli)
}

func (h *PackingListHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "id", "item_id")
	if !ok {
		return
	}
	if err := h.svc.RemoveItem(r.Context(), caller(r), ids[0], ids[1]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Check sets a member's checked state, or the family-wide state when
// member_id is null.
func (h *PackingListHandler) Check(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "id", "item_id")
	if !ok {
		return
	}
	var req struct {
		MemberID *int64 `json:"member_id" validate:"omitempty,gt=0"`
		Checked  bool   `json:"checked"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.SetChecked(r.Context(), caller(r), ids[0], ids[1], req.MemberID, req.Checked); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PackingListHandler) NotNeeded(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "id", "item_id")
	if !ok {
		return
	}
	var req struct {
		MemberID  *int64 `json:"member_id" validate:"omitempty,gt=0"`
		NotNeeded bool   `json:"not_needed"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.SetNotNeeded(r.Context(), caller(r), ids[0], ids[1], req.MemberID, req.NotNeeded); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PackingListHandler) Assign(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "id", "item_id")
	if !ok {
		return
	}
	var req struct {
		MemberID *int64 `json:"member_id" validate:"omitempty,gt=0"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	pli, err := h.svc.SetAssignee(r.Context(), caller(r), ids[0], ids[1], req.MemberID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pli)
}

// Promote turns a one-off into a master item in the family catalog.
func (h *PackingListHandler) Promote(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "id", "item_id")
	if !ok {
		return
	}
	var req struct {
		CategoryID *int64 `json:"category_id" validate:"omitempty,gt=0"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	pli, item, out, err := h.svc.PromoteOneOff(r.Context(), caller(r), ids[0], ids[1], req.CategoryID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeOutcome(w, http.StatusCreated, map[string]any{"packing_list_item": pli, "item": item}, out)
}

func (h *PackingListHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	beforeID, limit, err := auditCursor(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	page, err := h.svc.ListAudit(r.Context(), caller(r), id, beforeID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *PackingListHandler) ItemAudit(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "id", "item_id")
	if !ok {
		return
	}
	beforeID, limit, err := auditCursor(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	page, err := h.svc.ListItemAudit(r.Context(), caller(r), ids[0], ids[1], beforeID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// auditCursor reads ?before_id and ?limit. A missing limit means the
// default page size.
func auditCursor(r *http.Request) (*int64, int, error) {
	beforeID, err := queryInt64(r, "before_id")
	if err != nil {
		return nil, 0, err
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		return nil, 0, err
	}
	if limit == nil {
		return beforeID, store.DefaultAuditLimit, nil
	}
	return beforeID, int(*limit), nil
}

type JobHandler struct {
	svc    *packing.Service
	logger *slog.Logger
}

func NewJobHandler(svc *packing.Service, logger *slog.Logger) *JobHandler {
	return &JobHandler{svc: svc, logger: logger}
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	job, err := h.svc.GetJob(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
