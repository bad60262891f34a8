package event

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotr/internal/engine/access"
	"quotr/internal/engine/ledger"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
	"quotr/internal/platform/observability"
)

var (
	admin   = access.Caller{UserID: "admin", Role: models.RoleAdmin}
	manager = access.Caller{UserID: "manager", Role: models.RoleOrganisationManager, OrganisationID: "acme"}
)

func setupService(t *testing.T) *Service {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`INSERT INTO organisations (id, name, created_at) VALUES ('acme', 'acme', 1)`,
		`INSERT INTO invitations (id, name, organisation_id, usage_quota, created_ticket_count, created_at) VALUES ('inv', 'party', 'acme', 1, 1, 1)`,
		`INSERT INTO tickets (id, owner_name, invitation_id, owner_affiliation_id, created_at) VALUES ('ticket', 'Ada', 'inv', 'acme', 1)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	guard := access.NewGuard(observability.NewMetrics(prometheus.NewRegistry()))
	return NewService(NewRepository(db), ledger.NewRepository(db), guard, audit.NewLogger(db))
}

func TestInfoIsPublicAndIncludesSocials(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, admin, ConfigSocials, json.RawMessage(`{"instagram":"@quotr"}`))
	require.NoError(t, err)

	info, err := svc.Info(ctx, access.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, "Quotr", info["name"])
	assert.Equal(t, map[string]interface{}{"instagram": "@quotr"}, info["socials"])
}

func TestDetailsNeedATicket(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, admin, ConfigDetails, json.RawMessage(`{"location_name":"Hall A"}`))
	require.NoError(t, err)

	details, err := svc.Details(ctx, access.Anonymous(), "ticket")
	require.NoError(t, err)
	assert.Equal(t, "Hall A", details["location_name"])

	_, err = svc.Details(ctx, access.Anonymous(), "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = svc.Details(ctx, access.Anonymous(), "")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestConfigAdministration(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, manager)
	assert.ErrorIs(t, err, errors.ErrForbidden)
	_, err = svc.Get(ctx, access.Anonymous(), ConfigInfo)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	_, err = svc.Update(ctx, manager, ConfigInfo, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, errors.ErrForbidden)

	configs, err := svc.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, configs, 3)

	tests := []struct {
		name   string
		config string
		value  string
		want   error
	}{
		{"unknown config", "event_theme", `{}`, errors.ErrNotFound},
		{"array", ConfigInfo, `[1, 2]`, errors.ErrInvalidInput},
		{"null", ConfigInfo, `null`, errors.ErrInvalidInput},
		{"not json", ConfigInfo, `{`, errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, admin, tt.config, json.RawMessage(tt.value))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	updated, err := svc.Update(ctx, admin, ConfigInfo, json.RawMessage(`{"name":"Launch","description":"Doors at 7"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Launch","description":"Doors at 7"}`, string(updated.Value))
	assert.NotZero(t, updated.UpdatedAt)

	got, err := svc.Get(ctx, admin, ConfigInfo)
	require.NoError(t, err)
	assert.JSONEq(t, string(updated.Value), string(got.Value))
}
