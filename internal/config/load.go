package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/avlgate/internal/protocol/session"
)

// avlgated config.toml key mapping. Durations are Go duration strings.
type fileConfig struct {
	ListenAddr         string   `toml:"listen_addr"`
	AdminAddr          string   `toml:"admin_addr"`
	ReadBufferBytes    int      `toml:"read_buffer_bytes"`
	ReadTimeout        string   `toml:"read_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	CacheTTL           string   `toml:"cache_ttl"`
	CacheSweepInterval string   `toml:"cache_sweep_interval"`
	Reassembly         string   `toml:"reassembly"`
	VerifyCRC          bool     `toml:"verify_crc"`
	MaxPacketBytes     int      `toml:"max_packet_bytes"`
	RegistryTable      string   `toml:"registry_table"`
	RegistryTimeout    string   `toml:"registry_timeout"`
	SinkTable          string   `toml:"sink_table"`
	SinkTimeout        string   `toml:"sink_timeout"`
	CorsOrigins        []string `toml:"cors_origins"`
	AdminToken         string   `toml:"admin_token"`
}

// Load overlays the keys present in path onto Default. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load avlgate config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load avlgate config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("read_buffer_bytes") {
		cfg.ReadBufferBytes = raw.ReadBufferBytes
	}
	if meta.IsDefined("reassembly") {
		cfg.Reassembly = session.Reassembly(strings.TrimSpace(raw.Reassembly))
	}
	if meta.IsDefined("verify_crc") {
		cfg.VerifyCRC = raw.VerifyCRC
	}
	if meta.IsDefined("max_packet_bytes") {
		cfg.MaxPacketBytes = raw.MaxPacketBytes
	}
	if meta.IsDefined("registry_table") {
		cfg.RegistryTable = strings.TrimSpace(raw.RegistryTable)
	}
	if meta.IsDefined("sink_table") {
		cfg.SinkTable = strings.TrimSpace(raw.SinkTable)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{key: "read_timeout", raw: raw.ReadTimeout, dst: &cfg.ReadTimeout},
		{key: "write_timeout", raw: raw.WriteTimeout, dst: &cfg.WriteTimeout},
		{key: "cache_ttl", raw: raw.CacheTTL, dst: &cfg.CacheTTL},
		{key: "cache_sweep_interval", raw: raw.CacheSweepInterval, dst: &cfg.CacheSweepInterval},
		{key: "registry_timeout", raw: raw.RegistryTimeout, dst: &cfg.RegistryTimeout},
		{key: "sink_timeout", raw: raw.SinkTimeout, dst: &cfg.SinkTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("load avlgate config: %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
