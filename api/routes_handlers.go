package api

import "lungsod-rms/api/handlers"

type routeHandlers struct {
	auth        *handlers.AuthHandler
	reports     *handlers.ReportsHandler
	inspections *handlers.InspectionsHandler
	accounts    *handlers.AccountsHandler
	logs        *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:        handlers.NewAuthHandler(s.cfg, s.users, s.sessions, s.sessionMgr, s.policy, s.audits, s.logger),
		reports:     handlers.NewReportsHandler(s.reportsSvc, s.logger),
		inspections: handlers.NewInspectionsHandler(s.reportsSvc, s.logger),
		accounts:    handlers.NewAccountsHandler(s.users, s.sessions, s.policy, s.cfg, s.audits, s.logger),
		logs:        handlers.NewLogsHandler(s.audits),
	}
}
