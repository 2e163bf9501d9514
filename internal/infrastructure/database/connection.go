package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/config"
)

// Pool wraps a pgx connection pool and runs work inside session-scoped transactions
// that row level security policies can read.
type Pool struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPool creates and pings a connection pool.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		return nil, fmt.Errorf("database: logger is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	configure(poolCfg, cfg, logger)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection pool initialized",
		zap.Int32("max_connections", poolCfg.MaxConns),
		zap.Int32("min_connections", poolCfg.MinConns),
	)
	return &Pool{pool: pool, logger: logger}, nil
}

func configure(poolCfg *pgxpool.Config, cfg config.DatabaseConfig, logger *zap.Logger) {
	poolCfg.MaxConns = 25
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolCfg.MaxConnIdleTime = 10 * time.Minute
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	for k, v := range map[string]string{
		"application_name":                    "secops_incident_engine",
		"timezone":                            "UTC",
		"lock_timeout":                        "5s",
		"statement_timeout":                   "15s",
		"idle_in_transaction_session_timeout": "30s",
	} {
		poolCfg.ConnConfig.RuntimeParams[k] = v
	}

	poolCfg.BeforeConnect = func(_ context.Context, cc *pgx.ConnConfig) error {
		logger.Debug("establishing database connection",
			zap.String("host", cc.Host),
			zap.Uint16("port", cc.Port))
		return nil
	}
}

// Session identifies the caller to the database's row level security policies.
type Session struct {
	ActorID       uuid.UUID
	TenantID      uuid.UUID
	PlatformStaff bool
}

// InSession runs fn in a transaction whose app.* settings describe s. Settings are local to
// the transaction and vanish on commit or rollback.
func (p *Pool) InSession(ctx context.Context, s Session, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if err := ApplySession(ctx, tx, s); err != nil {
			return err
		}
		return fn(tx)
	})
}

// ApplySession sets the transaction-local settings read by the policies.
func ApplySession(ctx context.Context, tx pgx.Tx, s Session) error {
	_, err := tx.Exec(ctx, `
		SELECT set_config('app.actor_id', $1, true),
		       set_config('app.tenant_id', $2, true),
		       set_config('app.platform_staff', $3, true)`,
		s.ActorID.String(), s.TenantID.String(), strconv.FormatBool(s.PlatformStaff),
	)
	if err != nil {
		return fmt.Errorf("failed to apply session settings: %w", err)
	}
	return nil
}

// Raw exposes the underlying pool for migrations and health checks.
func (p *Pool) Raw() *pgxpool.Pool {
	return p.pool
}

func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Pool) Close() {
	p.pool.Close()
	p.logger.Info("database connection pool closed")
}
