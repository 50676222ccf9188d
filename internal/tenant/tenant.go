package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/danmuck/avlgate/internal/protocol/avl"
)

var (
	ErrNotFound  = errors.New("tenant: device not registered")
	ErrNoRecords = errors.New("tenant: no records to route")
)

// Route is the resolved destination for one device. It is never mutated after
// construction, so cached copies are shared read-only.
type Route struct {
	DeviceID       avl.Identity
	UnitLabel      string
	TenantLabel    string
	SinkEndpoint   string
	SinkCredential string
}

// RegistryRow is one device row as stored in the master registry.
type RegistryRow struct {
	DeviceID       string `db:"imei" toml:"imei" json:"imei"`
	UnitLabel      string `db:"unit_label" toml:"unit_label" json:"unit_label"`
	TenantLabel    string `db:"tenant_label" toml:"tenant_label" json:"tenant_label"`
	SinkEndpoint   string `db:"sink_endpoint" toml:"sink_endpoint" json:"sink_endpoint"`
	SinkCredential string `db:"sink_credential" toml:"sink_credential" json:"sink_credential"`
}

// Registry looks up the tenant configuration for a device. A missing row is
// reported as ok=false with a nil error.
type Registry interface {
	Lookup(ctx context.Context, id avl.Identity) (RegistryRow, bool, error)
}

// Sink writes a batch of records into the tenant's isolated store.
type Sink interface {
	Write(ctx context.Context, route Route, records []avl.Record) error
}

// EndpointChecker is implemented by sinks that accept only some endpoints.
// Resolve treats a rejected endpoint like a missing one.
type EndpointChecker interface {
	CheckEndpoint(endpoint string) error
}

// routeFromRow builds a Route, treating a partially configured tenant as unregistered.
func routeFromRow(id avl.Identity, row RegistryRow) (Route, bool) {
	endpoint := strings.TrimSpace(row.SinkEndpoint)
	credential := strings.TrimSpace(row.SinkCredential)
	if endpoint == "" || credential == "" {
		return Route{}, false
	}
	return Route{
		DeviceID:       id,
		UnitLabel:      strings.TrimSpace(row.UnitLabel),
		TenantLabel:    strings.TrimSpace(row.TenantLabel),
		SinkEndpoint:   endpoint,
		SinkCredential: credential,
	}, true
}
