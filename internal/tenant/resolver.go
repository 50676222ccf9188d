package tenant

import (
	"context"
	"fmt"

	"github.com/danmuck/avlgate/internal/observability"
	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Resolver maps identities to routes through the cache and the registry, and
// hands record batches to the sink.
type Resolver struct {
	registry Registry
	sink     Sink
	cache    *Cache
	group    singleflight.Group
}

// NewResolver builds a Resolver. A nil cache gets the default TTL on the real clock.
func NewResolver(registry Registry, sink Sink, cache *Cache) *Resolver {
	if cache == nil {
		cache = NewCache(nil, DefaultCacheTTL)
	}
	return &Resolver{
		registry: registry,
		sink:     sink,
		cache:    cache,
	}
}

// Cache returns the route cache backing the resolver.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve returns the route for id. Concurrent misses for the same identity
// share one registry lookup. Lookup failures are never cached.
func (r *Resolver) Resolve(ctx context.Context, id avl.Identity) (Route, error) {
	if route, ok := r.cache.Get(id); ok {
		observability.RecordCacheLookup(true)
		return route, nil
	}
	observability.RecordCacheLookup(false)

	v, err, _ := r.group.Do(id.String(), func() (any, error) {
		if route, ok := r.cache.Get(id); ok {
			return route, nil
		}
		row, found, err := r.registry.Lookup(ctx, id)
		if err != nil {
			return Route{}, fmt.Errorf("tenant: registry lookup %s: %w", id, err)
		}
		if !found {
			return Route{}, ErrNotFound
		}
		route, ok := routeFromRow(id, row)
		if !ok {
			log.Warn().Str("imei", id.String()).Str("tenant", row.TenantLabel).
				Msg("tenant row missing sink endpoint or credential")
			return Route{}, ErrNotFound
		}
		if checker, ok := r.sink.(EndpointChecker); ok {
			if err := checker.CheckEndpoint(route.SinkEndpoint); err != nil {
				log.Warn().Err(err).Str("imei", id.String()).Str("tenant", row.TenantLabel).
					Msg("tenant sink endpoint not supported")
				return Route{}, ErrNotFound
			}
		}
		r.cache.Put(route)
		return route, nil
	})
	if err != nil {
		return Route{}, err
	}
	return v.(Route), nil
}

// RouteRecords writes records to the route's tenant store. Failures are
// returned as-is; the tracker is expected to resend.
func (r *Resolver) RouteRecords(ctx context.Context, route Route, records []avl.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	if err := r.sink.Write(ctx, route, records); err != nil {
		return fmt.Errorf("tenant: route %d records for %s: %w", len(records), route.DeviceID, err)
	}
	return nil
}
