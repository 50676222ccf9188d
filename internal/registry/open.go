package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/danmuck/avlgate/internal/tenant"
)

const DefaultTable = "devices"

var (
	ErrUnsupportedScheme = errors.New("registry: unsupported endpoint scheme")
	ErrInvalidTable      = errors.New("registry: invalid table name")
	ErrMissingEndpoint   = errors.New("registry: endpoint is required")
	ErrMissingCredential = errors.New("registry: credential is required")
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Options tune how Open builds a registry client.
type Options struct {
	Table      string
	HTTPClient *http.Client
	// Timeout bounds each lookup. Zero leaves lookups unbounded.
	Timeout time.Duration
}

// Registry is a tenant.Registry that owns closable resources.
type Registry interface {
	tenant.Registry
	Close() error
}

// Open picks an implementation from the endpoint scheme:
// http(s) for PostgREST, postgres(ql) for SQL, file for a TOML device list.
func Open(ctx context.Context, endpoint, credential string, opts Options) (Registry, error) {
	endpoint = strings.TrimSpace(endpoint)
	credential = strings.TrimSpace(credential)
	if endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if credential == "" {
		return nil, ErrMissingCredential
	}
	table := strings.TrimSpace(opts.Table)
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("registry: parse endpoint: %w", err)
	}

	var reg Registry
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		reg = NewREST(endpoint, credential, table, opts.HTTPClient)
	case "postgres", "postgresql":
		reg, err = OpenPostgres(ctx, endpoint, credential, table)
	case "file":
		reg, err = LoadFile(filePath(u))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		reg = &timeoutRegistry{Registry: reg, timeout: opts.Timeout}
	}
	return reg, nil
}

// ValidateTable accepts a plain or schema-qualified SQL identifier.
func ValidateTable(table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}

func filePath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}

type timeoutRegistry struct {
	Registry
	timeout time.Duration
}

func (r *timeoutRegistry) Lookup(ctx context.Context, id avl.Identity) (tenant.RegistryRow, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.Registry.Lookup(ctx, id)
}
