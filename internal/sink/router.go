package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/avlgate/internal/observability"
	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/danmuck/avlgate/internal/registry"
	"github.com/danmuck/avlgate/internal/tenant"
	"github.com/rs/zerolog"
)

var (
	ErrUnsupportedScheme = errors.New("sink: unsupported endpoint scheme")
	ErrRejected          = errors.New("sink: write rejected")
)

// Options configures a Router.
type Options struct {
	Table      string
	HTTPClient *http.Client
	// Timeout bounds each bulk write. Zero leaves writes unbounded.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Router implements tenant.Sink by dispatching on the route's endpoint scheme.
type Router struct {
	rest     *REST
	postgres *Postgres
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewRouter validates the sink table and builds the REST and Postgres writers.
func NewRouter(opts Options) (*Router, error) {
	table := strings.TrimSpace(opts.Table)
	if table == "" {
		table = DefaultTable
	}
	if err := registry.ValidateTable(table); err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	return &Router{
		rest:     NewREST(table, opts.HTTPClient),
		postgres: NewPostgres(table),
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}, nil
}

var (
	_ tenant.Sink            = (*Router)(nil)
	_ tenant.EndpointChecker = (*Router)(nil)
)

// CheckEndpoint reports ErrUnsupportedScheme for endpoints no writer serves.
func (r *Router) CheckEndpoint(endpoint string) error {
	_, err := Kind(endpoint)
	return err
}

// Write maps records to rows and writes them with the writer for the route's scheme.

func (r *Router) Write(ctx context.Context, route tenant.Route, records []avl.Record) error {
	kind, err := Kind(route.SinkEndpoint)
	if err != nil {
		return err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	rows := NewRows(route.DeviceID, records)

	start := time.Now()
	switch kind {
	case "postgres":
		err = r.postgres.Write(ctx, route, rows)
	default:
		err = r.rest.Write(ctx, route, rows)
	}
	elapsed := time.Since(start)
	observability.RecordSinkWrite(route.TenantLabel, kind, elapsed, err == nil)

	evt := r.logger.Debug()
	if err != nil {
		evt = r.logger.Warn().Err(err)
	}
	evt.Str("imei", route.DeviceID.String()).
		Str("tenant", route.TenantLabel).
		Str("sink", kind).
		Int("records", len(rows)).
		Dur("elapsed", elapsed).
		Msg("sink write")
	return err
}

// Kind classifies an endpoint as "rest" or "postgres".
func Kind(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("sink: parse endpoint: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return "rest", nil
	case "postgres", "postgresql":
		return "postgres", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// PoolCount returns the number of open Postgres pools.
func (r *Router) PoolCount() int {
	return r.postgres.PoolCount()
}

// Close closes every Postgres pool.
func (r *Router) Close() error {
	return r.postgres.Close()
}
