package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"lungsod-rms/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// reportColumnsDDL is the column set shared by the three report tables. The
// estimation column is deliberately NOT part of it: damage_reports carries it
// from the start, road_maintenance_reports gains it through a follow-up
// migration and road_transportation_reports never has it. That drift is what
// the schema capabilities resolve at startup.
const reportColumnsDDL = `
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id TEXT UNIQUE NOT NULL,
	report_type TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL DEFAULT 'medium',
	status TEXT NOT NULL DEFAULT 'pending',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	latitude REAL,
	longitude REAL,
	attachments TEXT,
	created_by INTEGER,
	reporter_name TEXT NOT NULL DEFAULT '',
	reporter_email TEXT NOT NULL DEFAULT '',
	assigned_to TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
`

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		salt TEXT NOT NULL,
		require_password_change INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (user_id, role),
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		roles TEXT NOT NULL,
		csrf_token TEXT NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		audit_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'compliance',
		status TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS report_reg_counters (
		domain TEXT NOT NULL,
		year INTEGER NOT NULL,
		seq INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (domain, year)
	);`,
	`CREATE TABLE IF NOT EXISTS road_transportation_reports (` + reportColumnsDDL + `);`,
	`CREATE TABLE IF NOT EXISTS road_maintenance_reports (` + reportColumnsDDL + `);`,
	`CREATE TABLE IF NOT EXISTS damage_reports (` + reportColumnsDDL + `,
		estimation NUMERIC NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS lgu_inspections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT UNIQUE NOT NULL,
		source_report_id TEXT NOT NULL DEFAULT '',
		source_domain TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'pending',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		assigned_to TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS repair_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT UNIQUE NOT NULL,
		inspection_id INTEGER NOT NULL,
		inspection_reg_no TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		assigned_to TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rtr_status_created ON road_transportation_reports(status, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_mnt_status_created ON road_maintenance_reports(status, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_dr_status_created ON damage_reports(status, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_insp_status ON lgu_inspections(status, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);`,
}

func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if isPostgresDB(db) {
		setPostgresDialect(true)
		return applyGooseMigrations(ctx, db, logger)
	}
	setPostgresDialect(false)
	return applySQLiteMigrations(ctx, db, logger)
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if logger != nil {
		goose.SetLogger(gooseLogger{logger})
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

type gooseLogger struct{ l *utils.Logger }

func (g gooseLogger) Fatalf(format string, v ...interface{}) { g.l.Errorf(format, v...) }
func (g gooseLogger) Printf(format string, v ...interface{}) { g.l.Printf(format, v...) }

func applySQLiteMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if logger != nil {
		logger.Printf("applying sqlite migrations")
	}
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	post := []func(context.Context, *sql.DB) error{
		ensureMaintenanceEstimationColumn,
	}
	for _, fn := range post {
		if err := fn(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

// Mirrors the follow-up production migration: maintenance reports gained an
// estimation column after the table first shipped.
func ensureMaintenanceEstimationColumn(ctx context.Context, db *sql.DB) error {
	exists, err := ColumnExists(ctx, db, DomainMaintenance.Table(), "estimation")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.ExecContext(ctx, `ALTER TABLE road_maintenance_reports ADD COLUMN estimation NUMERIC NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("add column road_maintenance_reports.estimation: %w", err)
	}
	return nil
}
