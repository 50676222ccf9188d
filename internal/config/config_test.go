package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/avlgate/internal/protocol/session"
	"github.com/danmuck/avlgate/internal/testutil/testlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplateMatchesDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite existing config")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("template drifted from defaults:\n got %+v\nwant %+v", cfg, Default())
	}
}

func TestLoadOverlaysDefinedKeysOnly(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
listen_addr = ":6000"
reassembly = "length_prefixed"
verify_crc = true
cache_ttl = "90s"
sink_timeout = "3s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":6000" || cfg.Reassembly != session.ReassemblyLengthPrefixed || !cfg.VerifyCRC {
		t.Fatalf("unexpected overlay: %+v", cfg)
	}
	if cfg.CacheTTL != 90*time.Second || cfg.SinkTimeout != 3*time.Second {
		t.Fatalf("unexpected durations: ttl=%v sink=%v", cfg.CacheTTL, cfg.SinkTimeout)
	}
	def := Default()
	if cfg.AdminAddr != def.AdminAddr || cfg.ReadBufferBytes != def.ReadBufferBytes || cfg.SinkTable != def.SinkTable {
		t.Fatalf("undefined keys should keep defaults: %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown key":        `listen_port = 5027`,
		"bad duration":       `cache_ttl = "five minutes"`,
		"zero ttl":           `cache_ttl = "0s"`,
		"unknown reassembly": `reassembly = "streaming"`,
		"empty admin":        `admin_addr = ""`,
		"bad table":          `sink_table = "records; drop"`,
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected load error", name)
		}
	}
}

func TestApplyEnvAndRequireRegistry(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	if err := cfg.RequireRegistry(); !errors.Is(err, ErrMissingRegistryURL) {
		t.Fatalf("expected ErrMissingRegistryURL, got %v", err)
	}

	env := map[string]string{
		EnvRegistryURL: " https://registry.test ",
		EnvListenAddr:  ":7000",
		EnvAdminAddr:   "",
	}
	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if cfg.RegistryURL != "https://registry.test" || cfg.ListenAddr != ":7000" {
		t.Fatalf("unexpected env overlay: %+v", cfg)
	}
	if cfg.AdminAddr != Default().AdminAddr {
		t.Fatalf("blank env addr should not clear admin addr")
	}
	if err := cfg.RequireRegistry(); !errors.Is(err, ErrMissingRegistryKey) {
		t.Fatalf("expected ErrMissingRegistryKey, got %v", err)
	}
	cfg.RegistryKey = "k"
	if err := cfg.RequireRegistry(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConversions(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.Reassembly = session.ReassemblyLengthPrefixed
	cfg.SinkTimeout = 2 * time.Second
	gw := cfg.Gateway()
	if gw.ListenAddr != cfg.ListenAddr || gw.Session.Reassembly != session.ReassemblyLengthPrefixed {
		t.Fatalf("unexpected gateway config: %+v", gw)
	}
	if err := gw.Validate(); err != nil {
		t.Fatalf("gateway config invalid: %v", err)
	}
	if opts := cfg.Registry(); opts.Table != "devices" {
		t.Fatalf("unexpected registry options: %+v", opts)
	}
	if admin := cfg.Admin(); admin.Addr != cfg.AdminAddr || len(admin.CorsOrigins) != 1 || len(admin.Tokens) != 0 {
		t.Fatalf("unexpected admin config: %+v", admin)
	}
	cfg.AdminToken = "old,new"
	if admin := cfg.Admin(); len(admin.Tokens) != 2 {
		t.Fatalf("expected two admin tokens, got %d", len(admin.Tokens))
	}
	if !strings.Contains(Template(), `reassembly = "single_read"`) {
		t.Fatalf("template missing reassembly key")
	}
}
