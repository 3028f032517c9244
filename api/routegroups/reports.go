package routegroups

import (
	"github.com/go-chi/chi/v5"

	"lungsod-rms/api/handlers"
)

func RegisterReports(apiRouter chi.Router, g Guards, reports *handlers.ReportsHandler) {
	apiRouter.Route("/reports", func(reportsRouter chi.Router) {
		reportsRouter.MethodFunc("GET", "/feed", g.SessionPerm("reports.view", reports.Feed))
		reportsRouter.MethodFunc("GET", "/stats", g.SessionPerm("reports.view", reports.Stats))
		reportsRouter.MethodFunc("POST", "/", g.SessionPerm("reports.create", reports.Create))
		reportsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("reports.view", reports.Get))
		reportsRouter.MethodFunc("POST", "/{id:[0-9]+}/transition", g.SessionPerm("reports.transition", reports.Transition))
		reportsRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("reports.delete", reports.Delete))
	})
}

func RegisterInspections(apiRouter chi.Router, g Guards, inspections *handlers.InspectionsHandler) {
	apiRouter.Route("/inspections", func(inspectionsRouter chi.Router) {
		inspectionsRouter.MethodFunc("GET", "/", g.SessionPerm("inspections.view", inspections.List))
		inspectionsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("inspections.view", inspections.Get))
		inspectionsRouter.MethodFunc("POST", "/{id:[0-9]+}/decision", g.SessionPerm("inspections.review", inspections.Decide))
	})

	apiRouter.Route("/repair-tasks", func(tasksRouter chi.Router) {
		tasksRouter.MethodFunc("GET", "/", g.SessionPerm("repairs.view", inspections.ListRepairTasks))
	})
}

func RegisterLogs(apiRouter chi.Router, g Guards, logs *handlers.LogsHandler) {
	apiRouter.Route("/logs", func(logsRouter chi.Router) {
		logsRouter.MethodFunc("GET", "/", g.SessionPerm("logs.view", logs.List))
		logsRouter.MethodFunc("GET", "/export", g.SessionPerm("logs.view", logs.Export))
	})
}
