package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/avlgate/internal/registry"
	"github.com/danmuck/avlgate/internal/tenant"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const defaultMaxOpenConns = 4

// Postgres copies rows into tenant databases, keeping one pool per endpoint.
// A pool is replaced when the endpoint's credential changes.
type Postgres struct {
	table string

	mu    sync.Mutex
	pools map[string]endpointPool
	open  func(dsn string) (*sqlx.DB, error)
}

type endpointPool struct {
	credential string
	db         *sqlx.DB
}

// NewPostgres returns a writer for table. Pools open lazily on first write.
func NewPostgres(table string) *Postgres {
	return &Postgres{
		table: table,
		pools: make(map[string]endpointPool),
		open: func(dsn string) (*sqlx.DB, error) {
			return sqlx.Open("postgres", dsn)
		},
	}
}

// Write copies rows into the route's database in one transaction.
func (s *Postgres) Write(ctx context.Context, route tenant.Route, rows []Row) error {
	db, err := s.pool(route.SinkEndpoint, route.SinkCredential)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin: %w", err)
	}
	if err := s.copyRows(ctx, tx, rows); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit: %w", err)
	}
	return nil
}

func (s *Postgres) copyRows(ctx context.Context, tx *sqlx.Tx, rows []Row) error {
	stmt, err := tx.PrepareContext(ctx, copyStatement(s.table))
	if err != nil {
		return fmt.Errorf("sink: prepare copy: %w", err)
	}
	defer stmt.Close()
	for i, row := range rows {
		values, err := row.values()
		if err != nil {
			return fmt.Errorf("sink: row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("sink: copy row %d: %w", i, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("sink: flush copy: %w", err)
	}
	return nil
}

func copyStatement(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pq.CopyInSchema(schema, name, rowColumns...)
	}
	return pq.CopyIn(table, rowColumns...)
}

func (s *Postgres) pool(endpoint, credential string) (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.pools[endpoint]
	if ok && current.credential == credential {
		return current.db, nil
	}
	dsn, err := registry.DSNWithCredential(endpoint, credential)
	if err != nil {
		return nil, err
	}
	db, err := s.open(dsn)
	if err != nil {
		return nil, fmt.Errorf("sink: open postgres: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	if ok {
		// Connections checked out by in-flight writes close when released.
		_ = current.db.Close()
	}
	s.pools[endpoint] = endpointPool{credential: credential, db: db}
	return db, nil
}

// PoolCount returns the number of open pools.
func (s *Postgres) PoolCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pools)
}

// Close closes and forgets every pool.
func (s *Postgres) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for key, p := range s.pools {
		if err := p.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.pools, key)
	}
	return firstErr
}
