package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotr/internal/platform/config"
)

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))

	applied, err := Applied(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"migrations/0001_init.sql", "migrations/0002_event_mail.sql"}, applied)
}

func TestUniqueViolationDetection(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO organisations (id, name, created_at) VALUES ('o1', 'acme', 1)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO organisations (id, name, created_at) VALUES ('o2', 'acme', 1)`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsForeignKeyViolation(err))
}

func TestForeignKeysEnforced(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO invitations (id, name, organisation_id, usage_quota, created_at) VALUES ('i1', 'x', 'missing', 1, 1)`)
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotr.db")

	db, err := Open(config.DatabaseConfig{Path: "file:" + path, MaxConnections: 2})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM quota_types`).Scan(&count))
	assert.Zero(t, count)
}
