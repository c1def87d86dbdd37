package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/packwise/internal/model"
)

const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 100
)

// ClampAuditLimit maps a requested page size onto [1, MaxAuditLimit].
// Zero or less selects DefaultAuditLimit.
func ClampAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultAuditLimit
	case limit > MaxAuditLimit:
		return MaxAuditLimit
	}
	return limit
}

// AuditStore appends to and pages through the packing list audit log.
// Writes go through db so they can join a caller's transaction; reads use
// the sqlx handle.
type AuditStore struct {
	db DBTX
	x  *sqlx.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db, x: sqlx.NewDb(db, "sqlite")}
}

func (s *AuditStore) WithTx(tx *sql.Tx) *AuditStore {
	return &AuditStore{db: tx, x: s.x}
}

// AuditRecord is one event to append to the log.
type AuditRecord struct {
	ListID            int64
	ItemID            *int64
	ActorUserID       *int64
	Action            model.AuditAction
	AppliesToMemberID *int64
	Details           string
	Metadata          map[string]any
}

func (s *AuditStore) Record(ctx context.Context, rec AuditRecord) error {
	var metadata sql.NullString
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("packing_list_audit_log")
	ib.Cols("packing_list_id", "packing_list_item_id", "actor_user_id", "action", "scope", "applies_to_member_id", "details", "metadata")
	ib.Values(
		rec.ListID, nullInt64(rec.ItemID), nullInt64(rec.ActorUserID), string(rec.Action),
		string(model.ScopeFor(rec.AppliesToMemberID)), nullInt64(rec.AppliesToMemberID), rec.Details, metadata,
	)
	query, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

type auditRow struct {
	ID                int64          `db:"id"`
	ListID            int64          `db:"packing_list_id"`
	ItemID            sql.NullInt64  `db:"packing_list_item_id"`
	ActorUserID       sql.NullInt64  `db:"actor_user_id"`
	ActorName         sql.NullString `db:"actor_name"`
	Action            string         `db:"action"`
	Scope             string         `db:"scope"`
	AppliesToMemberID sql.NullInt64  `db:"applies_to_member_id"`
	MemberName        sql.NullString `db:"member_name"`
	Details           string         `db:"details"`
	Metadata          sql.NullString `db:"metadata"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r auditRow) entry() model.AuditEntry {
	e := model.AuditEntry{
		ID:                r.ID,
		ListID:            r.ListID,
		ItemID:            int64Ptr(r.ItemID),
		ActorUserID:       int64Ptr(r.ActorUserID),
		ActorName:         model.SystemActorName,
		Action:            model.AuditAction(r.Action),
		Scope:             model.AuditScope(r.Scope),
		AppliesToMemberID: int64Ptr(r.AppliesToMemberID),
		Details:           r.Details,
		CreatedAt:         r.CreatedAt,
	}
	if r.ActorName.Valid {
		e.ActorName = r.ActorName.String
	}
	if r.AppliesToMemberID.Valid {
		name := model.SystemActorName
		if r.MemberName.Valid {
			name = r.MemberName.String
		}
		e.AppliesToMemberName = &name
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		e.Metadata = json.RawMessage(r.Metadata.String)
	}
	return e
}

// ListForList pages through a list's history newest first. beforeID, when
// set, restricts the page to entries older than that id.
func (s *AuditStore) ListForList(ctx context.Context, listID int64, beforeID *int64, limit int) (*model.AuditPage, error) {
	return s.page(ctx, listID, nil, beforeID, limit)
}

// ListForItem is ListForList narrowed to one packing list item.
func (s *AuditStore) ListForItem(ctx context.Context, listID, pliID int64, beforeID *int64, limit int) (*model.AuditPage, error) {
	return s.page(ctx, listID, &pliID, beforeID, limit)
}

func (s *AuditStore) page(ctx context.Context, listID int64, pliID, beforeID *int64, limit int) (*model.AuditPage, error) {
	limit = ClampAuditLimit(limit)

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(
		sb.As("l.id", "id"),
		sb.As("l.packing_list_id", "packing_list_id"),
		sb.As("l.packing_list_item_id", "packing_list_item_id"),
		sb.As("l.actor_user_id", "actor_user_id"),
		sb.As("a.name", "actor_name"),
		sb.As("l.action", "action"),
		sb.As("l.scope", "scope"),
		sb.As("l.applies_to_member_id", "applies_to_member_id"),
		sb.As("m.name", "member_name"),
		sb.As("l.details", "details"),
		sb.As("l.metadata", "metadata"),
		sb.As("l.created_at", "created_at"),
	)
	sb.From(sb.As("packing_list_audit_log", "l"))
	sb.JoinWithOption(sqlbuilder.LeftJoin, sb.As("users", "a"), "a.id = l.actor_user_id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, sb.As("users", "m"), "m.id = l.applies_to_member_id")
	sb.Where(sb.Equal("l.packing_list_id", listID))
	if pliID != nil {
		sb.Where(sb.Equal("l.packing_list_item_id", *pliID))
	}
	if beforeID != nil {
		sb.Where(sb.LessThan("l.id", *beforeID))
	}
	sb.OrderBy("l.id").Desc()
	sb.Limit(limit + 1)

	query, args := sb.Build()
	var rows []auditRow
	if err := s.x.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	page := &model.AuditPage{Entries: make([]model.AuditEntry, 0, len(rows))}
	more := len(rows) > limit
	if more {
		rows = rows[:limit]
	}
	for _, r := range rows {
		page.Entries = append(page.Entries, r.entry())
	}
	if more {
		next := rows[len(rows)-1].ID
		page.NextBeforeID = &next
	}
	return page, nil
}
