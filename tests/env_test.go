package tests

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"lungsod-rms/config"
	"lungsod-rms/core/reports"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

type testEnv struct {
	cfg         *config.AppConfig
	db          *sql.DB
	caps        *store.Capabilities
	reports     store.ReportsStore
	inspections store.InspectionsStore
	feed        store.FeedStore
	audits      store.AuditStore
	users       store.UsersStore
	sessions    store.SessionStore
	svc         *reports.Service
	logger      *utils.Logger
}

func testRegFormats() store.RegFormats {
	return store.RegFormats{
		Transport:   "RTR-{year}-{seq:04}",
		Maintenance: "MNT-{year}-{seq:04}",
		Damage:      "DR-{year}-{seq:03}",
		Inspection:  "LGU-INSP-{year}-{seq:04}",
		RepairTask:  "RT-{year}-{seq:04}",
	}
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		DBPath:     filepath.Join(dir, "lungsod.db"),
		Pepper:     "pepper",
		SessionTTL: time.Hour,
		Reports: config.ReportsConfig{
			TransportRegFormat:   "RTR-{year}-{seq:04}",
			MaintenanceRegFormat: "MNT-{year}-{seq:04}",
			DamageRegFormat:      "DR-{year}-{seq:03}",
			InspectionRegFormat:  "LGU-INSP-{year}-{seq:04}",
			RepairTaskRegFormat:  "RT-{year}-{seq:04}",
			EscalateAfter:        72 * time.Hour,
		},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	caps, err := store.ResolveCapabilities(ctx, db, logger)
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	formats := testRegFormats()
	reportsStore := store.NewReportsStore(db, caps, formats, logger)
	inspections := store.NewInspectionsStore(db, formats, logger)
	feed := store.NewFeedStore(db, caps)
	audits := store.NewAuditStore(db, logger)
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	svc := reports.NewService(reportsStore, inspections, feed, audits, caps, cfg.Reports, logger)
	return &testEnv{
		cfg:         cfg,
		db:          db,
		caps:        caps,
		reports:     reportsStore,
		inspections: inspections,
		feed:        feed,
		audits:      audits,
		users:       users,
		sessions:    sessions,
		svc:         svc,
		logger:      logger,
	}
}

// setCreatedAt backdates a report row so ordering and escalation tests can
// control the timeline.
func setCreatedAt(t *testing.T, db *sql.DB, d store.Domain, id int64, ts time.Time) {
	t.Helper()
	if _, err := db.Exec("UPDATE "+d.Table()+" SET created_at=? WHERE id=?", ts, id); err != nil {
		t.Fatalf("backdate %s #%d: %v", d, id, err)
	}
}

func mustCreate(t *testing.T, env *testEnv, d store.Domain, r *store.Report) *store.Report {
	t.Helper()
	if _, err := env.reports.CreateReport(context.Background(), d, r); err != nil {
		t.Fatalf("create %s report: %v", d, err)
	}
	return r
}

func auditCount(t *testing.T, env *testEnv) int64 {
	t.Helper()
	n, err := env.audits.Count(context.Background())
	if err != nil {
		t.Fatalf("audit count: %v", err)
	}
	return n
}
