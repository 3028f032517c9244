package appbootstrap

import (
	"context"
	"database/sql"

	"lungsod-rms/api"
	"lungsod-rms/config"
	"lungsod-rms/core/auth"
	"lungsod-rms/core/rbac"
	"lungsod-rms/core/reports"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

// App holds the composed runtime: every store, the report service, the HTTP
// server and the background sweeper.
type App struct {
	Cfg      *config.AppConfig
	DB       *sql.DB
	Logger   *utils.Logger
	Server   *api.Server
	Sweeper  *reports.Sweeper
	Sessions store.SessionStore
	Users    store.UsersStore
	Caps     *store.Capabilities
}

// Compose wires the application together. Migrations must already be
// applied; optional-column capabilities are probed here, once, so request
// handling never inspects the schema.
func Compose(ctx context.Context, cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*App, error) {
	caps, err := store.ResolveCapabilities(ctx, db, logger)
	if err != nil {
		return nil, err
	}

	formats := store.RegFormats{
		Transport:   cfg.Reports.TransportRegFormat,
		Maintenance: cfg.Reports.MaintenanceRegFormat,
		Damage:      cfg.Reports.DamageRegFormat,
		Inspection:  cfg.Reports.InspectionRegFormat,
		RepairTask:  cfg.Reports.RepairTaskRegFormat,
	}

	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db, logger)
	reportsStore := store.NewReportsStore(db, caps, formats, logger)
	inspections := store.NewInspectionsStore(db, formats, logger)
	feed := store.NewFeedStore(db, caps)

	policy := rbac.NewPolicy(rbac.DefaultRoles())
	sessionMgr := auth.NewSessionManager(sessions, cfg, logger)
	reportsSvc := reports.NewService(reportsStore, inspections, feed, audits, caps, cfg.Reports, logger)
	sweeper := reports.NewSweeper(reportsStore, cfg.Reports, cfg.Scheduler, logger)

	if err := EnsureDefaultAdmin(ctx, users, cfg, logger); err != nil {
		return nil, err
	}

	server := api.NewServer(cfg, logger, users, sessions, audits, sessionMgr, policy, reportsSvc)
	return &App{
		Cfg:      cfg,
		DB:       db,
		Logger:   logger,
		Server:   server,
		Sweeper:  sweeper,
		Sessions: sessions,
		Users:    users,
		Caps:     caps,
	}, nil
}
