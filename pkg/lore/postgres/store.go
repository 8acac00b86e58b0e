package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

var _ lore.Store = (*Store)(nil)

// applicationName tags Lorekeeper's sessions in pg_stat_activity unless the
// DSN already sets one.
const applicationName = "lorekeeper"

// Store is the PostgreSQL [lore.Store]: entities, game logs, chunk vectors,
// chat history and the answer cache share one connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// StoreOption tunes the connection pool of a [Store].
type StoreOption func(*pgxpool.Config)

// WithMaxConns caps the pool size. Values below one keep the pgx default.
func WithMaxConns(n int32) StoreOption {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// NewStore connects to dsn, checks the connection and migrates the schema.
// The chunk vector column is created with dims dimensions; opening a database
// migrated for a different width fails.
func NewStore(ctx context.Context, dsn string, dims int, opts ...StoreOption) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	// Every connection must know the vector type before chunks are scanned.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return s, nil
}

// Ping checks that the database answers. It backs the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close waits for in-flight queries and closes every connection.
func (s *Store) Close() {
	s.pool.Close()
}
