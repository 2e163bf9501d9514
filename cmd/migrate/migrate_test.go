package main

import (
	"io/fs"
	"os"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/secops-incident-engine/migrations"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(migrations.FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestEmbeddedSchemaEnablesRowLevelSecurity(t *testing.T) {
	raw, err := fs.ReadFile(migrations.FS, "000001_incident_engine.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	for _, table := range []string{"incidents", "incident_events", "audit_log"} {
		assert.Contains(t, schema, "ALTER TABLE "+table+" ENABLE ROW LEVEL SECURITY")
	}
	assert.Contains(t, schema, "current_setting('app.tenant_id'")
}

func TestNextVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"000001_init.up.sql":      {},
		"000001_init.down.sql":    {},
		"000007_audit.up.sql":     {},
		"README.md":               {},
		"notanumber_thing.up.sql": {},
	}
	v, err := nextVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, 8, v)

	v, err = nextVersion(fstest.MapFS{})
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	up, down, err := createMigration(dir, "add_sites", now)
	require.NoError(t, err)
	assert.FileExists(t, up)
	assert.FileExists(t, down)
	assert.True(t, strings.HasSuffix(up, "000001_add_sites.up.sql"))

	body, err := os.ReadFile(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "2026-05-01T09:00:00Z")

	up, _, err = createMigration(dir, "add_zones", now)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(up, "000002_add_zones.up.sql"))

	_, _, err = createMigration(dir, "Bad Name", now)
	assert.Error(t, err)
}
