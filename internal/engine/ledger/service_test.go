package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"quotr/internal/engine/access"
	"quotr/internal/engine/catalog"
	"quotr/internal/engine/invitations"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/config"
	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
	"quotr/internal/platform/observability"
)

var (
	admin    = access.Caller{UserID: "admin", Role: models.RoleAdmin}
	acme     = access.Caller{UserID: "m-acme", Role: models.RoleOrganisationManager, OrganisationID: "acme"}
	globex   = access.Caller{UserID: "m-globex", Role: models.RoleOrganisationManager, OrganisationID: "globex"}
	observer = access.Caller{UserID: "obs", Role: models.RoleObserver}
)

type fixture struct {
	svc         *Service
	invitations *invitations.Service
	db          *sql.DB
	metrics     *observability.Metrics
}

func setup(t *testing.T) *fixture {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	return setupWith(t, db)
}

// setupFile runs the fixture on a file database opened the way the server
// opens it, with a pool of connections.
func setupFile(t *testing.T) *fixture {
	db, err := database.Open(config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "quotr.db"),
		MaxConnections: 8,
		BusyTimeout:    10 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return setupWith(t, db)
}

func setupWith(t *testing.T, db *sql.DB) *fixture {
	t.Cleanup(func() { db.Close() })

	for _, org := range []string{"acme", "globex"} {
		_, err := db.Exec(`INSERT INTO organisations (id, name, created_at) VALUES (?, ?, 0)`, org, org)
		require.NoError(t, err)
	}
	for _, qt := range []string{"meal", "drink"} {
		_, err := db.Exec(`INSERT INTO quota_types (id, name, created_at) VALUES (?, ?, 0)`, qt, qt)
		require.NoError(t, err)
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	guard := access.NewGuard(metrics)
	auditLog := audit.NewLogger(db)
	invRepo := invitations.NewRepository(db)

	return &fixture{
		svc:         NewService(NewRepository(db), invRepo, guard, auditLog, metrics),
		invitations: invitations.NewService(invRepo, catalog.NewRepository(db), guard, auditLog),
		db:          db,
		metrics:     metrics,
	}
}

func (f *fixture) invitation(t *testing.T, org string, usage int, defaults ...models.DefaultQuotaInput) *models.Invitation {
	t.Helper()
	inv, err := f.invitations.CreateInvitation(context.Background(), admin, invitations.CreateInput{
		Name: "party", OrganisationID: org, UsageQuota: &usage, Defaults: defaults,
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) ticket(t *testing.T, invitationID string) *models.Ticket {
	t.Helper()
	ticket, err := f.svc.CreateTicket(context.Background(), access.Anonymous(), CreateTicketInput{
		InvitationID: invitationID, OwnerName: "Ada",
	})
	require.NoError(t, err)
	return ticket
}

func TestCreateTicketCopiesDefaults(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.invitation(t, "acme", 1,
		models.DefaultQuotaInput{QuotaTypeID: "meal", Value: 5},
		models.DefaultQuotaInput{QuotaTypeID: "drink", Value: 3},
	)

	ticket, err := f.svc.CreateTicket(ctx, access.Anonymous(), CreateTicketInput{
		InvitationID:  inv.ID,
		OwnerName:     " Ada ",
		OwnerContacts: json.RawMessage(`{"email":"ada@example.com"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", ticket.OwnerName)
	assert.Equal(t, "acme", ticket.OwnerAffiliationID)

	got, err := f.svc.GetTicket(ctx, access.Anonymous(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, got.Quotas, 2)
	values := map[string]int{}
	for _, q := range got.Quotas {
		values[q.QuotaTypeID] = q.UsageLeft
	}
	assert.Equal(t, map[string]int{"meal": 5, "drink": 3}, values)
	assert.JSONEq(t, `{"email":"ada@example.com"}`, string(got.OwnerContacts))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TicketsIssuedTotal))
}

func TestCreateTicketValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.invitation(t, "acme", 2)
	deleted := f.invitation(t, "acme", 2)
	require.NoError(t, f.invitations.DeleteInvitation(ctx, admin, deleted.ID))

	tests := []struct {
		name string
		in   CreateTicketInput
		want error
	}{
		{"unknown invitation", CreateTicketInput{InvitationID: "nope", OwnerName: "Ada"}, errors.ErrNotFound},
		{"deleted invitation", CreateTicketInput{InvitationID: deleted.ID, OwnerName: "Ada"}, errors.ErrNotFound},
		{"missing owner", CreateTicketInput{InvitationID: inv.ID}, errors.ErrInvalidInput},
		{"contacts not an object", CreateTicketInput{InvitationID: inv.ID, OwnerName: "Ada", OwnerContacts: json.RawMessage(`["x"]`)}, errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTicket(ctx, access.Anonymous(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	full, err := f.invitations.GetFull(ctx, admin, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, full.CreatedTicketCount)
}

func TestInvitationCapacity(t *testing.T) {
	if testing.Short() {
		t.Skip("issues a thousand tickets")
	}
	f := setup(t)
	ctx := context.Background()

	const capacity = 1000
	inv := f.invitation(t, "acme", capacity)

	for i := 0; i < capacity; i++ {
		_, err := f.svc.CreateTicket(ctx, access.Anonymous(), CreateTicketInput{InvitationID: inv.ID, OwnerName: "guest"})
		require.NoError(t, err, "ticket %d", i)
	}

	_, err := f.svc.CreateTicket(ctx, access.Anonymous(), CreateTicketInput{InvitationID: inv.ID, OwnerName: "late"})
	assert.ErrorIs(t, err, errors.ErrConflict)

	full, err := f.invitations.GetFull(ctx, admin, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, full.CreatedTicketCount)

	tickets, err := f.svc.ListByInvitation(ctx, acme, inv.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, capacity)
}

func TestConsumeUntilExhausted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.invitation(t, "acme", 1, models.DefaultQuotaInput{QuotaTypeID: "meal", Value: 3})
	quota := f.ticket(t, inv.ID).Quotas[0]

	for want := 2; want >= 0; want-- {
		q, err := f.svc.Consume(ctx, acme, quota.ID)
		require.NoError(t, err)
		assert.Equal(t, want, q.UsageLeft)
	}

	for _, caller := range []access.Caller{acme, admin} {
		_, err := f.svc.Consume(ctx, caller, quota.ID)
		assert.ErrorIs(t, err, errors.ErrExhausted)
	}

	q, err := f.svc.GetQuota(ctx, access.Anonymous(), quota.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, q.UsageLeft)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.ConsumeTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ConsumeTotal.WithLabelValues("exhausted")))
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.invitation(t, "acme", 1, models.DefaultQuotaInput{QuotaTypeID: "meal", Value: 1})
	quota := f.ticket(t, inv.ID).Quotas[0]

	const workers = 16
	var succeeded, exhausted int32
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := f.svc.Consume(ctx, acme, quota.ID)
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, errors.ErrExhausted):
				atomic.AddInt32(&exhausted, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(workers-1), exhausted)
}

func TestConcurrentIssuanceStopsAtCapacity(t *testing.T) {
	f := setupFile(t)
	ctx := context.Background()

	const capacity, workers = 5, 40
	inv := f.invitation(t, "acme", capacity, models.DefaultQuotaInput{QuotaTypeID: "meal", Value: 2})

	var issued, conflicts int32
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := f.svc.CreateTicket(ctx, access.Anonymous(), CreateTicketInput{InvitationID: inv.ID, OwnerName: "guest"})
			switch {
			case err == nil:
				atomic.AddInt32(&issued, 1)
			case errors.Is(err, errors.ErrConflict):
				atomic.AddInt32(&conflicts, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(capacity), issued)
	assert.Equal(t, int32(workers-capacity), conflicts)

	full, err := f.invitations.GetFull(ctx, admin, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, full.CreatedTicketCount)

	var tickets, quotas int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM tickets`).Scan(&tickets))
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM quotas`).Scan(&quotas))
	assert.Equal(t, capacity, tickets)
	assert.Equal(t, capacity, quotas)
}

func TestConcurrentConsumeOnFileDatabase(t *testing.T) {
	f := setupFile(t)
	ctx := context.Background()

	const usage, workers = 10, 32
	inv := f.invitation(t, "acme", 1, models.DefaultQuotaInput{QuotaTypeID: "meal", Value: usage})
	quota := f.ticket(t, inv.ID).Quotas[0]

	var succeeded, exhausted int32
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := f.svc.Consume(ctx, acme, quota.ID)
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, errors.ErrExhausted):
				atomic.AddInt32(&exhausted, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(usage), succeeded)
	assert.Equal(t, int32(workers-usage), exhausted)
}

func TestUpdateQuotaTypeKeepsConcurrentConsumes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const start, consumes = 500, 300
	inv := f.invitation(t, "acme", 1, models.DefaultQuotaInput{QuotaTypeID: "meal", Value: start})
	quota := f.ticket(t, inv.ID).Quotas[0]

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < consumes; i++ {
			if _, err := f.svc.Consume(ctx, acme, quota.ID); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		types := []string{"drink", "meal"}
		for i := 0; i < consumes; i++ {
			typeID := types[i%2]
			if _, err := f.svc.UpdateQuota(ctx, acme, quota.ID, UpdateQuotaInput{QuotaTypeID: &typeID}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	q, err := f.svc.GetQuota(ctx, access.Anonymous(), quota.ID)
	require.NoError(t, err)
	assert.Equal(t, start-consumes, q.UsageLeft)
	assert.Equal(t, "meal", q.QuotaTypeID)
}

func TestConcurrentTicketUpdatesKeepBothFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.invitation(t, "acme", 1)
	ticket := f.ticket(t, inv.ID)

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < 100; i++ {
			name := "Grace"
			if _, err := f.svc.UpdateTicket(ctx, access.Anonymous(), ticket.ID, UpdateTicketInput{OwnerName: &name}); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < 100; i++ {
			contacts := json.RawMessage(`{"email":"grace@example.com"}`)
			if _, err := f.svc.UpdateTicket(ctx, access.Anonymous(), ticket.ID, UpdateTicketInput{OwnerContacts: contacts}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	got, err := f.svc.GetTicket(ctx, access.Anonymous(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.OwnerName)
	assert.JSONEq(t, `{"email":"grace@example.com"}`, string(got.OwnerContacts))
}

func TestConsumeRequiresOwnership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.invitation(t, "acme", 1, models.DefaultQuotaInput{QuotaTypeID: "meal", Value: 1})
	quota := f.ticket(t, inv.ID).Quotas[0]

	_, err := f.svc.Consume(ctx, access.Anonymous(), quota.ID)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	_, err = f.svc.Consume(ctx, observer, quota.ID)
	assert.ErrorIs(t, err, errors.ErrForbidden)
	_, err = f.svc.Consume(ctx, globex, quota.ID)
	assert.ErrorIs(t, err, errors.ErrForbidden)
	_, err = f.svc.Consume(ctx, acme, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	q, err := f.svc.GetQuota(ctx, access.Anonymous(), quota.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, q.UsageLeft, "denied consumes leave the quota alone")
}

func TestQuotaCRUD(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.invitation(t, "acme", 1, models.DefaultQuotaInput{QuotaTypeID: "meal", Value: 1})
	ticket := f.ticket(t, inv.ID)

	_, err := f.svc.CreateQuota(ctx, acme, CreateQuotaInput{TicketID: ticket.ID, QuotaTypeID: "meal", UsageLeft: 2})
	assert.ErrorIs(t, err, errors.ErrConflict, "one quota per type and ticket")
	_, err = f.svc.CreateQuota(ctx, acme, CreateQuotaInput{TicketID: ticket.ID, QuotaTypeID: "nope", UsageLeft: 2})
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = f.svc.CreateQuota(ctx, globex, CreateQuotaInput{TicketID: ticket.ID, QuotaTypeID: "drink", UsageLeft: 2})
	assert.ErrorIs(t, err, errors.ErrForbidden)
	_, err = f.svc.CreateQuota(ctx, acme, CreateQuotaInput{TicketID: ticket.ID, QuotaTypeID: "drink", UsageLeft: -1})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	drink, err := f.svc.CreateQuota(ctx, acme, CreateQuotaInput{TicketID: ticket.ID, QuotaTypeID: "drink", UsageLeft: 2})
	require.NoError(t, err)
	assert.Equal(t, "drink", drink.QuotaTypeName)

	meal := "meal"
	_, err = f.svc.UpdateQuota(ctx, acme, drink.ID, UpdateQuotaInput{QuotaTypeID: &meal})
	assert.ErrorIs(t, err, errors.ErrConflict)

	ten := 10
	updated, err := f.svc.UpdateQuota(ctx, acme, drink.ID, UpdateQuotaInput{UsageLeft: &ten})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.UsageLeft)
	assert.Equal(t, "drink", updated.QuotaTypeID)

	assert.ErrorIs(t, f.svc.DeleteQuota(ctx, globex, drink.ID), errors.ErrForbidden)
	require.NoError(t, f.svc.DeleteQuota(ctx, acme, drink.ID))
	_, err = f.svc.GetQuota(ctx, access.Anonymous(), drink.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = f.svc.ListQuotas(ctx, acme)
	assert.ErrorIs(t, err, errors.ErrForbidden)
	quotas, err := f.svc.ListQuotas(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, quotas, 1)
}

func TestTicketLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.invitation(t, "acme", 3, models.DefaultQuotaInput{QuotaTypeID: "meal", Value: 1})
	ticket := f.ticket(t, inv.ID)

	name := "Grace"
	updated, err := f.svc.UpdateTicket(ctx, access.Anonymous(), ticket.ID, UpdateTicketInput{
		OwnerName:     &name,
		OwnerContacts: json.RawMessage(`{"phone_number":"123"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Grace", updated.OwnerName)
	assert.JSONEq(t, `{"phone_number":"123"}`, string(updated.OwnerContacts))

	_, err = f.svc.UpdateTicket(ctx, access.Anonymous(), "missing", UpdateTicketInput{OwnerName: &name})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	renamed := "Ada"
	updated, err = f.svc.UpdateTicket(ctx, access.Anonymous(), ticket.ID, UpdateTicketInput{OwnerName: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.OwnerName)
	assert.JSONEq(t, `{"phone_number":"123"}`, string(updated.OwnerContacts), "contacts are kept when only the name changes")

	byOrg, err := f.svc.ListByOrganisation(ctx, acme, "acme")
	require.NoError(t, err)
	require.Len(t, byOrg, 1)
	assert.Len(t, byOrg[0].Quotas, 1)
	_, err = f.svc.ListByOrganisation(ctx, globex, "acme")
	assert.ErrorIs(t, err, errors.ErrForbidden)
	_, err = f.svc.ListTickets(ctx, observer)
	assert.ErrorIs(t, err, errors.ErrForbidden)

	assert.ErrorIs(t, f.svc.DeleteTicket(ctx, access.Anonymous(), ticket.ID), errors.ErrUnauthenticated)
	assert.ErrorIs(t, f.svc.DeleteTicket(ctx, globex, ticket.ID), errors.ErrForbidden)
	require.NoError(t, f.svc.DeleteTicket(ctx, acme, ticket.ID))

	var quotas int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM quotas`).Scan(&quotas))
	assert.Zero(t, quotas, "quotas go with their ticket")

	full, err := f.invitations.GetFull(ctx, acme, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, full.CreatedTicketCount, "deleting a ticket does not return its slot")

	all, err := f.svc.ListTickets(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, all)
}
