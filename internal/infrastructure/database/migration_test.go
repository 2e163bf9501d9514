package database_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/config"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/database"
	"github.com/davidleathers/secops-incident-engine/internal/testutil/containers"
)

var engineTables = []string{
	"organizations", "org_memberships", "platform_roles",
	"incidents", "incident_events", "audit_log",
}

func countTables(t *testing.T, conn *pgx.Conn, rlsOnly bool) int {
	t.Helper()
	var n int
	err := conn.QueryRow(context.Background(), `
		SELECT count(*) FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = 'public' AND c.relkind = 'r'
		  AND c.relname = ANY($1) AND (NOT $2 OR c.relrowsecurity)`,
		engineTables, rlsOnly).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestMigrations_Reversible(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping migration test in short mode")
	}
	ctx := context.Background()
	pg, err := containers.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	m, err := database.NewMigrator(pg.AdminURL, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	conn, err := pgx.Connect(ctx, pg.AdminURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	_, _, ok, err := m.Version()
	require.NoError(t, err)
	assert.False(t, ok, "fresh database has no version")

	require.NoError(t, m.Up(0))
	version, dirty, ok, err := m.Version()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, dirty)
	assert.Positive(t, version)
	assert.Equal(t, len(engineTables), countTables(t, conn, false))
	assert.Equal(t, 5, countTables(t, conn, true), "every table but organizations carries row security")

	require.NoError(t, m.Up(0), "re-running is a no-op")

	require.NoError(t, m.Down(0))
	assert.Zero(t, countTables(t, conn, false))

	require.NoError(t, m.Up(0), "down leaves a clean slate")
	assert.Equal(t, len(engineTables), countTables(t, conn, false))
}

func TestPoolCollector(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pool collector test in short mode")
	}
	ctx := context.Background()
	pg, err := containers.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	pool, err := database.NewPool(ctx, config.DatabaseConfig{URL: pg.AdminURL, MaxConns: 3, MinConns: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	collector := database.NewPoolCollector(pool)
	assert.Equal(t, 8, promtestutil.CollectAndCount(collector))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(collector))
	expected := `
# HELP soe_db_pool_max_connections Configured pool size
# TYPE soe_db_pool_max_connections gauge
soe_db_pool_max_connections 3
`
	assert.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "soe_db_pool_max_connections"))
}
