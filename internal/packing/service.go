// Package packing is the application layer over the stores and the
// reconciliation engine. It scopes every access to the caller's family,
// enforces roles, and turns template mutations into propagation.
package packing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/model"
	"github.com/dukerupert/packwise/internal/reconcile"
	"github.com/dukerupert/packwise/internal/store"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConstraint   = errors.New("constraint violation")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid input")
	ErrCredentials  = errors.New("invalid email or password")
	ErrEmailInUse   = fmt.Errorf("email already registered: %w", ErrConstraint)
	ErrTemplateGone = fmt.Errorf("template is deleted: %w", ErrNotFound)
)

type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

func (m Mode) Valid() bool {
	return m == ModeSync || m == ModeAsync
}

// Notifier receives change notifications for realtime clients.
type Notifier interface {
	Notify(familyID int64, entity, action string, id int64, extra map[string]any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(int64, string, string, int64, map[string]any) {}

// Outcome describes how a template mutation reached subscribed lists:
// reports when it ran in the request, queued jobs otherwise.
type Outcome struct {
	Mode    Mode                  `json:"mode"`
	Reports []*reconcile.Report   `json:"reports,omitempty"`
	Jobs    []*model.ReconcileJob `json:"jobs,omitempty"`
}

// Err joins the partial failures of every report.
func (o *Outcome) Err() error {
	if o == nil {
		return nil
	}
	var errs []error
	for _, r := range o.Reports {
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SucceededListIDs lists every list a synchronous propagation reached.
func (o *Outcome) SucceededListIDs() []int64 {
	ids := []int64{}
	if o == nil {
		return ids
	}
	for _, r := range o.Reports {
		ids = append(ids, r.Succeeded...)
	}
	return ids
}

// Unreached lists the templates whose subscribed lists could not be
// determined, so propagation reached none of them.
func (o *Outcome) Unreached() []int64 {
	ids := []int64{}
	if o == nil {
		return ids
	}
	for _, r := range o.Reports {
		if r.Error != "" {
			ids = append(ids, r.TemplateID)
		}
	}
	return ids
}

// FailedListIDs lists every list a synchronous propagation could not reach.
func (o *Outcome) FailedListIDs() []int64 {
	ids := []int64{}
	if o == nil {
		return ids
	}
	for _, r := range o.Reports {
		ids = append(ids, r.Failed...)
	}
	return ids
}

type Service struct {
	db         *sql.DB
	families   *store.FamilyStore
	users      *store.UserStore
	categories *store.CategoryStore
	items      *store.ItemStore
	templates  *store.TemplateStore
	lists      *store.PackingListStore
	listItems  *store.PackingListItemStore
	audit      *store.AuditStore
	jobs       *store.ReconcileJobStore
	engine     *reconcile.Engine
	mode       Mode
	notifier   Notifier
	logger     *slog.Logger
}

func NewService(db *sql.DB, engine *reconcile.Engine, mode Mode, logger *slog.Logger) *Service {
	if !mode.Valid() {
		mode = ModeSync
	}
	return &Service{
		db:         db,
		families:   store.NewFamilyStore(db),
		users:      store.NewUserStore(db),
		categories: store.NewCategoryStore(db),
		items:      store.NewItemStore(db),
		templates:  store.NewTemplateStore(db),
		lists:      store.NewPackingListStore(db),
		listItems:  store.NewPackingListItemStore(db),
		audit:      store.NewAuditStore(db),
		jobs:       store.NewReconcileJobStore(db),
		engine:     engine,
		mode:       mode,
		notifier:   nopNotifier{},
		logger:     logger.With("component", "packing"),
	}
}

func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

func (s *Service) Mode() Mode {
	return s.mode
}

// --- scoping ---

func inFamily(ac auth.AuthContext, familyID int64) bool {
	return ac.IsSystemAdmin() || ac.FamilyID == familyID
}

func requireCatalog(ac auth.AuthContext) error {
	if !ac.CanManageCatalog() {
		return ErrForbidden
	}
	return nil
}

func actor(ac auth.AuthContext) *int64 {
	if ac.UserID == 0 {
		return nil
	}
	id := ac.UserID
	return &id
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name is required: %w", ErrInvalid)
	}
	return name, nil
}

func (s *Service) category(ctx context.Context, ac auth.AuthContext, id int64) (*model.Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil || !inFamily(ac, c.FamilyID) {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	return c, nil
}

func (s *Service) item(ctx context.Context, ac auth.AuthContext, id int64) (*model.Item, error) {
	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil || it.State.IsDeleted() || !inFamily(ac, it.FamilyID) {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return it, nil
}

func (s *Service) template(ctx context.Context, ac auth.AuthContext, id int64) (*model.Template, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil || !inFamily(ac, t.FamilyID) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	if t.State.IsDeleted() {
		return nil, fmt.Errorf("template %d: %w", id, ErrTemplateGone)
	}
	return t, nil
}

func (s *Service) list(ctx context.Context, ac auth.AuthContext, id int64) (*model.PackingList, error) {
	l, err := s.lists.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil || l.State.IsDeleted() || !inFamily(ac, l.FamilyID) {
		return nil, fmt.Errorf("packing list %d: %w", id, ErrNotFound)
	}
	return l, nil
}

func (s *Service) listItem(ctx context.Context, ac auth.AuthContext, listID, pliID int64) (*model.PackingList, *model.PackingListItem, error) {
	l, err := s.list(ctx, ac, listID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.listItems.GetByID(ctx, pliID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil || p.ListID != l.ID {
		return nil, nil, fmt.Errorf("packing list item %d: %w", pliID, ErrNotFound)
	}
	return l, p, nil
}

// member checks that memberID, when set, belongs to familyID.
func (s *Service) member(ctx context.Context, familyID int64, memberID *int64) error {
	if memberID == nil {
		return nil
	}
	ok, err := s.users.IsFamilyMember(ctx, familyID, *memberID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("member %d is not in the family: %w", *memberID, ErrInvalid)
	}
	return nil
}

// --- propagation ---

type txStores struct {
	categories *store.CategoryStore
	items      *store.ItemStore
	templates  *store.TemplateStore
	listItems  *store.PackingListItemStore
}

// mutateExpansion runs mutate in a transaction, diffing the expanded item
// sets of templateIDs around it, then propagates each non-empty delta.
func (s *Service) mutateExpansion(ctx context.Context, ac auth.AuthContext, familyID int64, templateIDs []int64, mutate func(txStores) error) (*Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := txStores{
		categories: s.categories.WithTx(tx),
		items:      s.items.WithTx(tx),
		templates:  s.templates.WithTx(tx),
		listItems:  s.listItems.WithTx(tx),
	}

	before := make(map[int64][]int64, len(templateIDs))
	for _, tid := range templateIDs {
		ids, err := ts.templates.ExpandedItemIDs(ctx, tid)
		if err != nil {
			return nil, err
		}
		before[tid] = ids
	}

	if err := mutate(ts); err != nil {
		return nil, err
	}

	deltas := make([]reconcile.Delta, 0, len(templateIDs))
	for _, tid := range templateIDs {
		after, err := ts.templates.ExpandedItemIDs(ctx, tid)
		if err != nil {
			return nil, err
		}
		if d := reconcile.Diff(tid, before[tid], after); !d.Empty() {
			deltas = append(deltas, d)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.propagate(ctx, ac, familyID, deltas)
}

func (s *Service) propagate(ctx context.Context, ac auth.AuthContext, familyID int64, deltas []reconcile.Delta) (*Outcome, error) {
	out := &Outcome{Mode: s.mode}
	for _, d := range deltas {
		if s.mode == ModeAsync {
			job, err := s.jobs.Create(ctx, familyID, d.TemplateID, actor(ac), d.ToAdd, d.ToRemove)
			if err != nil {
				return nil, err
			}
			out.Jobs = append(out.Jobs, job)
			s.notifier.Notify(familyID, "reconcile_job", "queued", job.ID, map[string]any{"template_id": d.TemplateID})
			continue
		}

		report := s.engine.Apply(ctx, d, actor(ac), nil)
		out.Reports = append(out.Reports, report)
		if err := report.Err(); err != nil {
			s.logger.Warn("partial reconciliation", "template_id", d.TemplateID, "failed", report.Failed, "error", err)
		}
		for _, listID := range report.Succeeded {
			s.notifier.Notify(familyID, "packing_list", "reconciled", listID, map[string]any{"template_id": d.TemplateID})
		}
	}
	return out, nil
}

// GetJob returns a queued propagation's status.
func (s *Service) GetJob(ctx context.Context, ac auth.AuthContext, id int64) (*model.ReconcileJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil || !inFamily(ac, job.FamilyID) {
		return nil, fmt.Errorf("reconcile job %d: %w", id, ErrNotFound)
	}
	return job, nil
}

// JobFinished notifies realtime clients about a worker attempt.
func (s *Service) JobFinished(job *model.ReconcileJob, report *reconcile.Report) {
	s.notifier.Notify(job.FamilyID, "reconcile_job", string(job.Status), job.ID, map[string]any{
		"template_id": job.TemplateID,
		"failed":      report.Failed,
	})
	for _, listID := range report.Succeeded {
		s.notifier.Notify(job.FamilyID, "packing_list", "reconciled", listID, map[string]any{"template_id": job.TemplateID})
	}
}
