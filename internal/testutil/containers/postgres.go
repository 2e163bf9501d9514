package containers

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/database"
)

const (
	appUser     = "soe_app"
	appPassword = "soe_app"
)

// PostgresContainer is a migrated database with two logins: the superuser, which bypasses
// row level security, and an application role that is subject to it.
type PostgresContainer struct {
	*postgres.PostgresContainer
	AdminURL string
	AppURL   string
}

// NewPostgresContainer creates a new PostgreSQL test container
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("soe_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://postgres:postgres@%s:%s/soe_test?sslmode=disable", host, port.Port())
				}),
			).WithDeadline(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	adminURL, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}
	u, err := url.Parse(adminURL)
	if err != nil {
		return nil, err
	}
	u.User = url.UserPassword(appUser, appPassword)

	return &PostgresContainer{
		PostgresContainer: pgContainer,
		AdminURL:          adminURL,
		AppURL:            u.String(),
	}, nil
}

// GrantAppRole creates the application login and grants it DML on the migrated schema.
func (p *PostgresContainer) GrantAppRole(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, p.AdminURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	stmts := []string{
		fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s' NOSUPERUSER NOBYPASSRLS", appUser, appPassword),
		"GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO " + appUser,
		"GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO " + appUser,
	}
	for _, s := range stmts {
		if _, err := conn.Exec(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

// StartPostgres runs a migrated container for the test and tears it down afterwards.
// Integration tests are skipped under -short.
func StartPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	pg, err := NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	migrator, err := database.NewMigrator(pg.AdminURL, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, migrator.Up(0))
	require.NoError(t, migrator.Close())

	require.NoError(t, pg.GrantAppRole(ctx))
	return pg
}
