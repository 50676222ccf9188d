package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/avlgate/internal/gateway"
	"github.com/danmuck/avlgate/internal/protocol/session"
	"github.com/danmuck/avlgate/internal/registry"
	"github.com/danmuck/avlgate/internal/sink"
	"github.com/danmuck/avlgate/internal/tenant"
)

const (
	EnvRegistryURL = "REGISTRY_URL"
	EnvRegistryKey = "REGISTRY_KEY"
	EnvListenAddr  = "AVLGATE_LISTEN_ADDR"
	EnvAdminAddr   = "AVLGATE_ADMIN_ADDR"
	EnvAdminToken  = "AVLGATE_ADMIN_TOKEN"
)

var (
	ErrMissingRegistryURL = errors.New("config: " + EnvRegistryURL + " is required")
	ErrMissingRegistryKey = errors.New("config: " + EnvRegistryKey + " is required")
)

// Config is the full avlgated runtime configuration.
type Config struct {
	ListenAddr         string
	AdminAddr          string
	ReadBufferBytes    int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CacheTTL           time.Duration
	CacheSweepInterval time.Duration
	Reassembly         session.Reassembly
	VerifyCRC          bool
	MaxPacketBytes     int
	RegistryURL        string
	RegistryKey        string
	RegistryTable      string
	RegistryTimeout    time.Duration
	SinkTable          string
	SinkTimeout        time.Duration
	CorsOrigins        []string
	// AdminToken is a comma separated list of accepted operator tokens.
	AdminToken string
}

// Default returns the built-in configuration. Registry URL and key have no
// default.
func Default() Config {
	return Config{
		ListenAddr:         gateway.DefaultListenAddr,
		AdminAddr:          "127.0.0.1:9102",
		ReadBufferBytes:    gateway.DefaultReadBufferBytes,
		ReadTimeout:        0,
		WriteTimeout:       gateway.DefaultWriteTimeout,
		CacheTTL:           tenant.DefaultCacheTTL,
		CacheSweepInterval: time.Minute,
		Reassembly:         session.ReassemblySingleRead,
		VerifyCRC:          false,
		MaxPacketBytes:     session.DefaultMaxPacketBytes,
		RegistryTable:      registry.DefaultTable,
		SinkTable:          sink.DefaultTable,
		CorsOrigins:        []string{"http://localhost:3000"},
	}
}

// ApplyEnv overlays environment values. Unset variables leave fields alone.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRegistryURL); ok {
		c.RegistryURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvRegistryKey); ok {
		c.RegistryKey = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvListenAddr); ok && strings.TrimSpace(v) != "" {
		c.ListenAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAdminAddr); ok && strings.TrimSpace(v) != "" {
		c.AdminAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAdminToken); ok {
		c.AdminToken = strings.TrimSpace(v)
	}
}

// Validate checks every field except the registry URL and key.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if strings.TrimSpace(c.AdminAddr) == "" {
		return fmt.Errorf("config: admin_addr is required")
	}
	if c.ReadBufferBytes <= 0 {
		return fmt.Errorf("config: read_buffer_bytes must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: cache_ttl must be positive")
	}
	if c.CacheSweepInterval <= 0 {
		return fmt.Errorf("config: cache_sweep_interval must be positive")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.RegistryTimeout < 0 || c.SinkTimeout < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if err := c.Session().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := registry.ValidateTable(c.RegistryTable); err != nil {
		return fmt.Errorf("config: registry_table: %w", err)
	}
	if err := registry.ValidateTable(c.SinkTable); err != nil {
		return fmt.Errorf("config: sink_table: %w", err)
	}
	return nil
}

// RequireRegistry reports a missing registry endpoint or credential.
func (c Config) RequireRegistry() error {
	if strings.TrimSpace(c.RegistryURL) == "" {
		return ErrMissingRegistryURL
	}
	if strings.TrimSpace(c.RegistryKey) == "" {
		return ErrMissingRegistryKey
	}
	return nil
}
