package catalog

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotr/internal/engine/access"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
	"quotr/internal/platform/observability"
)

var (
	admin   = access.Caller{UserID: "admin", Role: models.RoleAdmin}
	manager = access.Caller{UserID: "manager", Role: models.RoleOrganisationManager, OrganisationID: "org"}
)

func setupService(t *testing.T) (*Service, *sql.DB, *observability.Metrics) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := NewService(
		NewRepository(db),
		NewCache(16, time.Minute, metrics),
		access.NewGuard(metrics),
		audit.NewLogger(db),
	)
	return svc, db, metrics
}

func TestCreateRequiresAdmin(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, access.Anonymous(), "meal", "")
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)

	_, err = svc.Create(ctx, manager, "meal", "")
	assert.ErrorIs(t, err, errors.ErrForbidden)

	_, err = svc.Create(ctx, admin, "  ", "")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	qt, err := svc.Create(ctx, admin, "meal", "one lunch")
	require.NoError(t, err)
	assert.Equal(t, "meal", qt.Name)
}

func TestReadsArePublicAndCached(t *testing.T) {
	svc, _, metrics := setupService(t)
	ctx := context.Background()

	qt, err := svc.Create(ctx, admin, "meal", "")
	require.NoError(t, err)

	got, err := svc.Get(ctx, access.Anonymous(), qt.ID)
	require.NoError(t, err)
	assert.Equal(t, qt.ID, got.ID)

	_, err = svc.Get(ctx, access.Anonymous(), qt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues(cacheName)))

	list, err := svc.List(ctx, access.Anonymous())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Get(ctx, access.Anonymous(), "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	qt, err := svc.Create(ctx, admin, "meal", "")
	require.NoError(t, err)
	_, err = svc.Get(ctx, access.Anonymous(), qt.ID)
	require.NoError(t, err)

	name := "dinner"
	_, err = svc.Update(ctx, admin, qt.ID, &name, nil)
	require.NoError(t, err)

	got, err := svc.Get(ctx, access.Anonymous(), qt.ID)
	require.NoError(t, err)
	assert.Equal(t, "dinner", got.Name)

	_, err = svc.Update(ctx, manager, qt.ID, &name, nil)
	assert.ErrorIs(t, err, errors.ErrForbidden)
}

func TestDeleteGuardsReferences(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()

	qt, err := svc.Create(ctx, admin, "meal", "")
	require.NoError(t, err)

	mustExec(t, db, `INSERT INTO organisations (id, name, created_at) VALUES ('org', 'acme', 1)`)
	mustExec(t, db, `INSERT INTO invitations (id, name, organisation_id, usage_quota, created_at) VALUES ('inv', 'party', 'org', 5, 1)`)
	mustExec(t, db, `INSERT INTO default_quotas (id, invitation_id, quota_type_id, value, created_at) VALUES ('dq', 'inv', ?, 2, 1)`, qt.ID)

	usage, err := svc.Usage(ctx, admin, qt.ID)
	require.NoError(t, err)
	assert.Len(t, usage.DefaultQuotas, 1)
	assert.Empty(t, usage.Quotas)

	err = svc.Delete(ctx, admin, qt.ID)
	assert.ErrorIs(t, err, errors.ErrConflict)

	mustExec(t, db, `UPDATE default_quotas SET deleted_at = 2 WHERE id = 'dq'`)

	require.NoError(t, svc.Delete(ctx, admin, qt.ID))

	var remaining int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM default_quotas`).Scan(&remaining))
	assert.Zero(t, remaining)

	_, err = svc.Get(ctx, access.Anonymous(), qt.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	err = svc.Delete(ctx, admin, qt.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(4, 10*time.Millisecond, nil)
	c.Set(&models.QuotaType{ID: "a", Name: "meal"})

	got, ok := c.Get("a")
	require.True(t, ok)
	got.Name = "changed"

	again, _ := c.Get("a")
	assert.Equal(t, "meal", again.Name)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)

	var nilCache *Cache
	_, ok = nilCache.Get("a")
	assert.False(t, ok)
}

func TestCacheSkipsReadsOlderThanInvalidation(t *testing.T) {
	c := NewCache(4, time.Minute, nil)

	gen := c.Generation()
	c.Invalidate("a")
	assert.False(t, c.SetIfCurrent(&models.QuotaType{ID: "a", Name: "meal"}, gen))
	_, ok := c.Get("a")
	assert.False(t, ok)

	gen = c.Generation()
	assert.True(t, c.SetIfCurrent(&models.QuotaType{ID: "a", Name: "dinner"}, gen))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "dinner", got.Name)
}

func TestLookupRacingUpdateNeverServesStaleName(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	qt, err := svc.Create(ctx, admin, "meal", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = svc.Lookup(ctx, qt.ID)
		}
	}()
	name := "dinner"
	_, err = svc.Update(ctx, admin, qt.ID, &name, nil)
	require.NoError(t, err)
	wg.Wait()

	got, err := svc.Lookup(ctx, qt.ID)
	require.NoError(t, err)
	assert.Equal(t, "dinner", got.Name)
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...interface{}) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}
