package config

import (
	"fmt"
	"os"
)

// Template returns the default avlgated TOML config.
func Template() string {
	return avlgateTemplate
}

// WriteTemplate writes Template to path, refusing to replace an existing file
// unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(avlgateTemplate), 0o600)
}

// Registry endpoint and credential come from REGISTRY_URL and REGISTRY_KEY.
const avlgateTemplate = `listen_addr = ":5027"
admin_addr = "127.0.0.1:9102"
read_buffer_bytes = 65536
read_timeout = "0s"
write_timeout = "10s"

cache_ttl = "5m"
cache_sweep_interval = "1m"

# single_read treats one socket read as one data message.
# length_prefixed reassembles by the declared data length.
reassembly = "single_read"
verify_crc = false
max_packet_bytes = 65536

registry_table = "devices"
registry_timeout = "0s"
sink_table = "avl_records"
sink_timeout = "0s"

cors_origins = ["http://localhost:3000"]
# Comma separated bearer tokens for /sessions and /cache. Empty leaves them open.
admin_token = ""
`
