package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "quotr/internal/api/context"
	"quotr/internal/api/handlers"
	"quotr/internal/api/middleware"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/observability"
)

type Dependencies struct {
	AuthHandler         *handlers.AuthHandler
	UserHandler         *handlers.UserHandler
	OrgHandler          *handlers.OrgHandler
	QuotaTypeHandler    *handlers.QuotaTypeHandler
	InvitationHandler   *handlers.InvitationHandler
	DefaultQuotaHandler *handlers.DefaultQuotaHandler
	TicketHandler       *handlers.TicketHandler
	QuotaHandler        *handlers.QuotaHandler
	RenderHandler       *handlers.RenderHandler
	EventHandler        *handlers.EventHandler
	MailHandler         *handlers.MailHandler
	AuditHandler        *handlers.AuditHandler
	HealthHandler       *handlers.HealthHandler
	MetricsHandler      *handlers.MetricsHandler
	AuthMiddleware      *middleware.AuthMiddleware
	Metrics             *observability.Metrics
}

const prefix = "/api/v1"

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Route not found", nil)
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusMethodNotAllowed, errors.ErrCodeInvalidInput, "Method not allowed", nil)
	})

	authMid := deps.AuthMiddleware

	// handle registers an API route. Every route resolves the caller, which
	// is anonymous when no token is sent.
	handle := func(method, path string, h http.HandlerFunc) {
		router.Handle(method, prefix+path, chain(h, middleware.Observe(prefix+path, deps.Metrics), authMid.Handle))
	}
	get := func(path string, h http.HandlerFunc) { handle(http.MethodGet, path, h) }
	post := func(path string, h http.HandlerFunc) { handle(http.MethodPost, path, h) }
	patch := func(path string, h http.HandlerFunc) { handle(http.MethodPatch, path, h) }
	del := func(path string, h http.HandlerFunc) { handle(http.MethodDelete, path, h) }

	// Ops
	router.GET("/healthz", chain(deps.HealthHandler.Check, middleware.Observe("/healthz", deps.Metrics)))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))
	get("/audit", deps.AuditHandler.List)

	// Sessions
	post("/auth/login", deps.AuthHandler.Login)
	post("/auth/refresh", deps.AuthHandler.Refresh)
	post("/auth/logout", deps.AuthHandler.Logout)
	get("/roles", deps.AuthHandler.Roles)
	get("/self", deps.AuthHandler.Self)
	patch("/self/password", deps.AuthHandler.ChangePassword)

	// Users
	get("/users", deps.UserHandler.List)
	post("/users", deps.UserHandler.Create)
	get("/users/:id", deps.UserHandler.Get)
	patch("/users/:id", deps.UserHandler.Update)
	del("/users/:id", deps.UserHandler.Delete)

	// Organisations
	get("/organisations", deps.OrgHandler.List)
	post("/organisations", deps.OrgHandler.Create)
	del("/organisations", deps.OrgHandler.DeleteBatch)
	post("/organisations/batch", deps.OrgHandler.CreateBatch)
	get("/organisations/:id", deps.OrgHandler.Get)
	patch("/organisations/:id", deps.OrgHandler.Rename)
	del("/organisations/:id", deps.OrgHandler.Delete)
	get("/organisations/:id/managers", deps.OrgHandler.Managers)
	get("/organisations/:id/invitations", deps.OrgHandler.Invitations)
	get("/organisations/:id/tickets", deps.OrgHandler.Tickets)

	// Quota types
	get("/quota-types", deps.QuotaTypeHandler.List)
	post("/quota-types", deps.QuotaTypeHandler.Create)
	get("/quota-types/:id", deps.QuotaTypeHandler.Get)
	patch("/quota-types/:id", deps.QuotaTypeHandler.Update)
	del("/quota-types/:id", deps.QuotaTypeHandler.Delete)
	get("/quota-types/:id/usage", deps.QuotaTypeHandler.Usage)

	// Invitations
	get("/invitations", deps.InvitationHandler.List)
	post("/invitations", deps.InvitationHandler.Create)
	get("/invitations/:id", deps.InvitationHandler.Get)
	patch("/invitations/:id", deps.InvitationHandler.Update)
	del("/invitations/:id", deps.InvitationHandler.Delete)
	get("/invitations/:id/public", deps.InvitationHandler.Public)
	get("/invitations/:id/tickets", deps.InvitationHandler.Tickets)
	get("/invitations/:id/defaults", deps.InvitationHandler.Defaults)

	// Default quotas
	post("/default-quotas", deps.DefaultQuotaHandler.Create)
	get("/default-quotas/:id", deps.DefaultQuotaHandler.Get)
	patch("/default-quotas/:id", deps.DefaultQuotaHandler.Update)
	del("/default-quotas/:id", deps.DefaultQuotaHandler.Delete)

	// Tickets
	get("/tickets", deps.TicketHandler.List)
	post("/tickets", deps.TicketHandler.Create)
	get("/tickets/:id", deps.TicketHandler.Get)
	patch("/tickets/:id", deps.TicketHandler.Update)
	del("/tickets/:id", deps.TicketHandler.Delete)

	// Quotas
	get("/quotas", deps.QuotaHandler.List)
	post("/quotas", deps.QuotaHandler.Create)
	get("/quotas/:id", deps.QuotaHandler.Get)
	patch("/quotas/:id", deps.QuotaHandler.Update)
	del("/quotas/:id", deps.QuotaHandler.Delete)
	post("/quotas/:id/consume", deps.QuotaHandler.Consume)

	// QR codes
	get("/render/invitation/:id", deps.RenderHandler.Invitation)
	get("/render/ticket/:id", deps.RenderHandler.Ticket)

	// Event
	get("/event", deps.EventHandler.Info)
	get("/event/details", deps.EventHandler.Details)
	get("/event/configs", deps.EventHandler.Configs)
	get("/event/configs/:name", deps.EventHandler.Config)
	patch("/event/configs/:name", deps.EventHandler.UpdateConfig)

	// Mail
	post("/mail/invitations/:id", deps.MailHandler.Invitation)
	post("/mail/tickets", deps.MailHandler.Pending)
	post("/mail/tickets/:id", deps.MailHandler.Ticket)

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
