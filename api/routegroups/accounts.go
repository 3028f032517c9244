package routegroups

import (
	"github.com/go-chi/chi/v5"

	"lungsod-rms/api/handlers"
)

func RegisterAccounts(apiRouter chi.Router, g Guards, accounts *handlers.AccountsHandler) {
	apiRouter.Route("/accounts", func(accountsRouter chi.Router) {
		accountsRouter.MethodFunc("GET", "/", g.SessionPerm("accounts.manage", accounts.ListUsers))
		accountsRouter.MethodFunc("POST", "/", g.SessionPerm("accounts.manage", accounts.CreateUser))
		accountsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.SessionPerm("accounts.manage", accounts.UpdateUser))
		accountsRouter.MethodFunc("POST", "/{id:[0-9]+}/reset-password", g.SessionPerm("accounts.manage", accounts.ResetPassword))
		accountsRouter.MethodFunc("GET", "/{id:[0-9]+}/sessions", g.SessionPerm("accounts.manage", accounts.ListSessions))
		accountsRouter.MethodFunc("DELETE", "/{id:[0-9]+}/sessions", g.SessionPerm("accounts.manage", accounts.KillSessions))
	})
}
