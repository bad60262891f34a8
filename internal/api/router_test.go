package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotr/internal/api/handlers"
	"quotr/internal/api/middleware"
	"quotr/internal/engine/access"
	"quotr/internal/engine/catalog"
	"quotr/internal/engine/directory"
	"quotr/internal/engine/event"
	"quotr/internal/engine/invitations"
	"quotr/internal/engine/ledger"
	"quotr/internal/engine/mail"
	"quotr/internal/engine/render"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/auth"
	"quotr/internal/platform/config"
	"quotr/internal/platform/database"
	"quotr/internal/platform/observability"
	"quotr/internal/platform/repositories"
)

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	guard := access.NewGuard(metrics)
	auditLog := audit.NewLogger(db)

	tokens := auth.NewTokenService(config.JWTConfig{
		Secret:          "router-test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	sessions := auth.NewSessionManager(tokens, auth.NewMemorySessionStore(64, 24*time.Hour))

	dir := directory.NewService(
		repositories.NewOrganisationRepository(db),
		repositories.NewUserRepository(db),
		guard, auditLog, sessions,
	)
	require.NoError(t, dir.EnsureSuperUser(context.Background(), "root", "rootpassword"))

	catalogRepo := catalog.NewRepository(db)
	types := catalog.NewService(catalogRepo, catalog.NewCache(64, time.Minute, metrics), guard, auditLog)
	invRepo := invitations.NewRepository(db)
	inv := invitations.NewService(invRepo, catalogRepo, guard, auditLog)
	ledgerRepo := ledger.NewRepository(db)
	led := ledger.NewService(ledgerRepo, invRepo, guard, auditLog, metrics)
	links := render.NewService(inv, led, config.RenderConfig{TicketBaseURL: "https://example.com/ticket"})
	eventSvc := event.NewService(event.NewRepository(db), ledgerRepo, guard, auditLog)
	mailer := mail.NewService(nil, ledgerRepo, inv, eventSvc, links, guard, auditLog, metrics, config.MailConfig{})

	router := NewRouter(&Dependencies{
		AuthHandler:         handlers.NewAuthHandler(dir, sessions),
		UserHandler:         handlers.NewUserHandler(dir),
		OrgHandler:          handlers.NewOrgHandler(dir, inv, led),
		QuotaTypeHandler:    handlers.NewQuotaTypeHandler(types),
		InvitationHandler:   handlers.NewInvitationHandler(inv, led),
		DefaultQuotaHandler: handlers.NewDefaultQuotaHandler(inv),
		TicketHandler:       handlers.NewTicketHandler(led),
		QuotaHandler:        handlers.NewQuotaHandler(led),
		RenderHandler:       handlers.NewRenderHandler(links),
		EventHandler:        handlers.NewEventHandler(eventSvc),
		MailHandler:         handlers.NewMailHandler(mailer),
		AuditHandler:        handlers.NewAuditHandler(auditLog, guard),
		HealthHandler:       handlers.NewHealthHandler(db, nil),
		MetricsHandler:      handlers.NewMetricsHandler(metrics),
		AuthMiddleware:      middleware.NewAuthMiddleware(sessions, dir),
		Metrics:             metrics,
	})
	return &testServer{t: t, router: router}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())
	var tokens auth.TokenPair
	require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), &tokens))
	return tokens.AccessToken
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, rr, &body)
	return body.Code
}

func TestInvitationToConsumeFlow(t *testing.T) {
	s := newTestServer(t)
	root := s.login("root", "rootpassword")

	rr := s.do(http.MethodPost, "/api/v1/users", root, map[string]interface{}{
		"username":          "mia",
		"password":          "miapassword",
		"role":              2,
		"organisation_name": "acme",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	mia := s.login("mia", "miapassword")
	rr = s.do(http.MethodGet, "/api/v1/self", mia, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var self struct {
		Role           int    `json:"role"`
		OrganisationID string `json:"organisation_id"`
	}
	decodeBody(t, rr, &self)
	assert.Equal(t, 2, self.Role)
	require.NotEmpty(t, self.OrganisationID)

	rr = s.do(http.MethodPost, "/api/v1/quota-types", mia, map[string]string{"name": "meal"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(http.MethodPost, "/api/v1/quota-types", root, map[string]string{"name": "meal"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var meal struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &meal)

	rr = s.do(http.MethodPost, "/api/v1/invitations", mia, map[string]interface{}{
		"name":            "launch party",
		"organisation_id": self.OrganisationID,
		"usage_quota":     1,
		"default_quotas":  []map[string]interface{}{{"quota_type_id": meal.ID, "value": 2}},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var inv struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &inv)

	rr = s.do(http.MethodGet, "/api/v1/invitations/"+inv.ID+"/public", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var public struct {
		OrganisationName string `json:"organisation_name"`
		UsageLeft        int    `json:"usage_left"`
	}
	decodeBody(t, rr, &public)
	assert.Equal(t, "acme", public.OrganisationName)
	assert.Equal(t, 1, public.UsageLeft)

	rr = s.do(http.MethodPost, "/api/v1/tickets", "", map[string]interface{}{
		"invitation_id":  inv.ID,
		"owner_name":     "Ada",
		"owner_contacts": map[string]string{"email": "ada@example.com"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var ticket struct {
		ID     string `json:"id"`
		Quotas []struct {
			ID        string `json:"id"`
			UsageLeft int    `json:"usage_left"`
		} `json:"quotas"`
	}
	decodeBody(t, rr, &ticket)
	require.Len(t, ticket.Quotas, 1)
	assert.Equal(t, 2, ticket.Quotas[0].UsageLeft)

	rr = s.do(http.MethodPost, "/api/v1/tickets", "", map[string]interface{}{
		"invitation_id": inv.ID, "owner_name": "Bob",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(http.MethodGet, "/api/v1/render/ticket/"+ticket.ID+"?size=256", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Body.Bytes())

	consume := "/api/v1/quotas/" + ticket.Quotas[0].ID + "/consume"
	rr = s.do(http.MethodPost, consume, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	for want := 1; want >= 0; want-- {
		rr = s.do(http.MethodPost, consume, mia, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var q struct {
			UsageLeft int `json:"usage_left"`
		}
		decodeBody(t, rr, &q)
		assert.Equal(t, want, q.UsageLeft)
	}

	rr = s.do(http.MethodPost, consume, mia, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "QUOTA_EXHAUSTED", errorCode(t, rr))

	rr = s.do(http.MethodGet, "/api/v1/organisations/"+self.OrganisationID+"/tickets", mia, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var tickets []json.RawMessage
	decodeBody(t, rr, &tickets)
	assert.Len(t, tickets, 1)

	rr = s.do(http.MethodGet, "/api/v1/organisations/"+self.OrganisationID+"/invitations?usable=true", mia, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var usable []json.RawMessage
	decodeBody(t, rr, &usable)
	assert.Empty(t, usable)

	rr = s.do(http.MethodGet, "/api/v1/audit", mia, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(http.MethodGet, "/api/v1/audit?limit=100", root, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var events []json.RawMessage
	decodeBody(t, rr, &events)
	assert.NotEmpty(t, events)
}

func TestRouterErrors(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rr))

	rr = s.do(http.MethodGet, "/api/v1/users", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "root", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets", bytes.NewBufferString("{"))
	bad := httptest.NewRecorder()
	s.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	rr = s.do(http.MethodGet, "/api/v1/invitations/missing/public", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRolesAndOps(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/v1/roles", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var roles map[string]int
	decodeBody(t, rr, &roles)
	assert.Equal(t, 2, roles["ORGANISATION_MANAGER"])
	assert.Equal(t, 8, roles["SUPER_ADMIN"])

	rr = s.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var health struct {
		Status string `json:"status"`
	}
	decodeBody(t, rr, &health)
	assert.Equal(t, "healthy", health.Status)

	rr = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "quotr_http_requests_total")
}

func TestEventAndMailRoutes(t *testing.T) {
	s := newTestServer(t)
	root := s.login("root", "rootpassword")

	rr := s.do(http.MethodPost, "/api/v1/users", root, map[string]interface{}{
		"username":          "mia",
		"password":          "miapassword",
		"role":              2,
		"organisation_name": "acme",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	mia := s.login("mia", "miapassword")
	rr = s.do(http.MethodGet, "/api/v1/self", mia, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var self struct {
		OrganisationID string `json:"organisation_id"`
	}
	decodeBody(t, rr, &self)

	rr = s.do(http.MethodPost, "/api/v1/invitations", mia, map[string]interface{}{
		"name": "launch party", "organisation_id": self.OrganisationID, "usage_quota": 1,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var inv struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &inv)

	rr = s.do(http.MethodPost, "/api/v1/tickets", "", map[string]interface{}{
		"invitation_id":  inv.ID,
		"owner_name":     "Ada",
		"owner_contacts": map[string]string{"email": "ada@example.com"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var ticket struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &ticket)

	rr = s.do(http.MethodGet, "/api/v1/event", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var info struct {
		Event map[string]interface{} `json:"event"`
	}
	decodeBody(t, rr, &info)
	assert.Equal(t, "Quotr", info.Event["name"])

	rr = s.do(http.MethodGet, "/api/v1/event/details", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = s.do(http.MethodGet, "/api/v1/event/details?ticket_id=missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	details := map[string]interface{}{"value": map[string]string{"location_name": "Hall A"}}
	rr = s.do(http.MethodPatch, "/api/v1/event/configs/event_details", mia, details)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = s.do(http.MethodPatch, "/api/v1/event/configs/event_details", root, details)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = s.do(http.MethodPatch, "/api/v1/event/configs/unknown", root, details)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodGet, "/api/v1/event/details?ticket_id="+ticket.ID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var gated struct {
		Details map[string]interface{} `json:"event_details"`
	}
	decodeBody(t, rr, &gated)
	assert.Equal(t, "Hall A", gated.Details["location_name"])

	rr = s.do(http.MethodGet, "/api/v1/event/configs", mia, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = s.do(http.MethodGet, "/api/v1/event/configs", root, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var configs []json.RawMessage
	decodeBody(t, rr, &configs)
	assert.Len(t, configs, 3)

	rr = s.do(http.MethodPost, "/api/v1/mail/tickets/"+ticket.ID, mia, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = s.do(http.MethodPost, "/api/v1/mail/tickets/"+ticket.ID, root, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(t, rr))
	rr = s.do(http.MethodPost, "/api/v1/mail/tickets", root, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
