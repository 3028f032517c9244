package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"lungsod-rms/core/utils"
)

// ColumnExists reports whether a column is present on a table. Some report
// tables are mid-migration across deployments (the estimation column in
// particular), so callers must branch their SQL on the answer instead of
// assuming the column is there. An introspection failure is returned as an
// error; it must never be read as "column absent".
func ColumnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	if isPostgresDB(db) {
		var n int
		err := db.QueryRowContext(ctx, rebind(`
			SELECT COUNT(*) FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?`),
			table, column).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("probe %s.%s: %w", table, column, err)
		}
		return n > 0, nil
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("probe %s.%s: %w", table, column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt interface{}
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("probe %s.%s: %w", table, column, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Capabilities holds the optional-column flags resolved once at startup, so
// the per-request schema probe the legacy system ran is gone. Refresh exists
// for deployments that migrate while the service is up.
type Capabilities struct {
	mu         sync.RWMutex
	estimation map[Domain]bool
}

func ResolveCapabilities(ctx context.Context, db *sql.DB, logger *utils.Logger) (*Capabilities, error) {
	caps := &Capabilities{estimation: map[Domain]bool{}}
	if err := caps.refresh(ctx, db); err != nil {
		return nil, err
	}
	for _, d := range ReportDomains {
		if !caps.HasEstimation(d) {
			logger.Printf("schema: %s has no estimation column, reads default to 0", d.Table())
		}
	}
	return caps, nil
}

func (c *Capabilities) Refresh(ctx context.Context, db *sql.DB) error {
	return c.refresh(ctx, db)
}

func (c *Capabilities) refresh(ctx context.Context, db *sql.DB) error {
	next := map[Domain]bool{}
	for _, d := range append([]Domain{}, append(ReportDomains, DomainInspection)...) {
		has, err := ColumnExists(ctx, db, d.Table(), "estimation")
		if err != nil {
			return err
		}
		next[d] = has
	}
	c.mu.Lock()
	c.estimation = next
	c.mu.Unlock()
	return nil
}

func (c *Capabilities) HasEstimation(d Domain) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.estimation[d]
}
