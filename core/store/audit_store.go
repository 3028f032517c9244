package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lungsod-rms/core/utils"

	"github.com/gofrs/uuid/v5"
)

// AuditEntry is an append-only record of a state-changing action. Entries are
// never updated or deleted.
type AuditEntry struct {
	ID        int64     `json:"id"`
	AuditID   string    `json:"audit_id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditFilter struct {
	Actor  string
	Status string
	Search string
	Limit  int
	Offset int
}

type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	// Log is the fire-and-forget variant used outside lifecycle transactions
	// (viewing, login, account changes). Errors are reported to the caller's
	// logger, not propagated.
	Log(ctx context.Context, actor, title, status, details string)
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
	Count(ctx context.Context) (int64, error)
}

type auditStore struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewAuditStore(db *sql.DB, logger *utils.Logger) AuditStore {
	return &auditStore{db: db, logger: logger}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertAudit runs against either the pool or an open transaction, so
// lifecycle transitions can write their audit row atomically with the status
// update.
func insertAudit(ctx context.Context, q execer, entry *AuditEntry) error {
	if strings.TrimSpace(entry.AuditID) == "" {
		entry.AuditID = uuid.Must(uuid.NewV7()).String()
	}
	if strings.TrimSpace(entry.Type) == "" {
		entry.Type = "compliance"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = utils.NowUTC()
	}
	_, err := q.ExecContext(ctx, rebind(`
		INSERT INTO audit_log(audit_id, title, type, status, actor, details, created_at)
		VALUES(?,?,?,?,?,?,?)`),
		entry.AuditID, entry.Title, entry.Type, entry.Status, entry.Actor, entry.Details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func (s *auditStore) Append(ctx context.Context, entry *AuditEntry) error {
	return insertAudit(ctx, s.db, entry)
}

func (s *auditStore) Log(ctx context.Context, actor, title, status, details string) {
	entry := &AuditEntry{Title: title, Status: status, Actor: actor, Details: details}
	if err := insertAudit(ctx, s.db, entry); err != nil && s.logger != nil {
		s.logger.Errorf("audit log %q by %s: %v", title, actor, err)
	}
}

func (s *auditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	var clauses []string
	var args []any
	if filter.Actor != "" {
		clauses = append(clauses, "actor=?")
		args = append(args, filter.Actor)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR details LIKE ?)")
		q := "%" + filter.Search + "%"
		args = append(args, q, q)
	}
	query := `SELECT id, audit_id, title, type, status, actor, details, created_at FROM audit_log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.AuditID, &e.Title, &e.Type, &e.Status, &e.Actor, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *auditStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n)
	return n, err
}
