package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lungsod-rms/api/routegroups"
	"lungsod-rms/config"
	"lungsod-rms/core/auth"
	"lungsod-rms/core/rbac"
	"lungsod-rms/core/reports"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	users           store.UsersStore
	sessions        store.SessionStore
	audits          store.AuditStore
	sessionMgr      *auth.SessionManager
	policy          *rbac.Policy
	reportsSvc      *reports.Service
	activityTracker *sessionActivity
}

func NewServer(cfg *config.AppConfig, logger *utils.Logger, users store.UsersStore, sessions store.SessionStore,
	audits store.AuditStore, sessionMgr *auth.SessionManager, policy *rbac.Policy, reportsSvc *reports.Service) *Server {
	return &Server{
		cfg:             cfg,
		logger:          logger,
		users:           users,
		sessions:        sessions,
		audits:          audits,
		sessionMgr:      sessionMgr,
		policy:          policy,
		reportsSvc:      reportsSvc,
		activityTracker: newSessionActivity(),
	}
}

func (s *Server) guards() routegroups.Guards {
	return routegroups.Guards{
		WithSession: s.withSession,
		RequirePermission: func(p string) func(http.HandlerFunc) http.HandlerFunc {
			return s.requirePermission(rbac.Permission(p))
		},
		RequireAnyPerm: func(perms ...string) func(http.HandlerFunc) http.HandlerFunc {
			rp := make([]rbac.Permission, 0, len(perms))
			for _, p := range perms {
				rp = append(rp, rbac.Permission(p))
			}
			return s.requireAnyPermission(rp...)
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)

	h := s.newRouteHandlers()
	g := s.guards()

	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.jsonMiddleware)

		apiRouter.MethodFunc("POST", "/auth/login", s.rateLimitMiddleware(h.auth.Login))
		apiRouter.MethodFunc("POST", "/auth/logout", s.withSession(h.auth.Logout))
		apiRouter.MethodFunc("GET", "/auth/me", s.withSession(h.auth.Me))
		apiRouter.MethodFunc("POST", "/auth/change-password", s.withSession(h.auth.ChangePassword))
		apiRouter.MethodFunc("POST", "/auth/ping", s.withSession(h.auth.Ping))

		routegroups.RegisterReports(apiRouter, g, h.reports)
		routegroups.RegisterInspections(apiRouter, g, h.inspections)
		routegroups.RegisterAccounts(apiRouter, g, h.accounts)
		routegroups.RegisterLogs(apiRouter, g, h.logs)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
