package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"lungsod-rms/config"
	"lungsod-rms/core/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// NewDB opens the configured database. Production runs on PostgreSQL through
// pgx; tests and single-box installs use a SQLite file (cfg.DBPath).
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if cfg.DBPath != "" && (driver == "" || driver == "sqlite") {
		db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
		}
		// Serialized access keeps SQLite writers from tripping over each other.
		db.SetMaxOpenConns(1)
		setPostgresDialect(false)
		logger.Printf("db: sqlite %s", cfg.DBPath)
		return db, nil
	}
	switch driver {
	case "postgres", "pgx", "":
		db, err := sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		setPostgresDialect(true)
		logger.Printf("db: postgres")
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

func isPostgresDB(db *sql.DB) bool {
	var out string
	if err := db.QueryRow(`SELECT version()`).Scan(&out); err != nil {
		return false
	}
	return strings.Contains(out, "PostgreSQL")
}

var postgresDialect atomic.Bool

func setPostgresDialect(v bool) { postgresDialect.Store(v) }

// rebind rewrites `?` placeholders to `$n` when running against PostgreSQL.
// Store queries are written once with `?`; none of them contain a literal
// question mark.
func rebind(query string) string {
	if !postgresDialect.Load() {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
