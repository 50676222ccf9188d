package registry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/danmuck/avlgate/internal/tenant"
	"github.com/pelletier/go-toml/v2"
)

// File serves device rows loaded once from a TOML provisioning file:
//
//	[[devices]]
//	imei = "356307042441013"
//	unit_label = "truck-7"
//	tenant_label = "acme"
//	sink_endpoint = "https://acme.example.com"
//	sink_credential = "service-key"
type File struct {
	path string
	rows map[string]tenant.RegistryRow
}

type fileContents struct {
	Devices []tenant.RegistryRow `toml:"devices"`
}

// LoadFile reads a TOML device list.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry file load failed (%s): %w", path, err)
	}
	var contents fileContents
	if err := toml.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("registry file parse failed (%s): %w", path, err)
	}
	rows := make(map[string]tenant.RegistryRow, len(contents.Devices))
	for i, row := range contents.Devices {
		id, err := avl.ParseIdentity(strings.TrimSpace(row.DeviceID))
		if err != nil {
			return nil, fmt.Errorf("registry file device[%d] invalid imei %q: %w", i, row.DeviceID, err)
		}
		if _, dup := rows[id.String()]; dup {
			return nil, fmt.Errorf("registry file device[%d] duplicate imei %q", i, id)
		}
		row.DeviceID = id.String()
		rows[id.String()] = row
	}
	return &File{path: path, rows: rows}, nil
}

// Lookup returns the row for id from memory.
func (f *File) Lookup(_ context.Context, id avl.Identity) (tenant.RegistryRow, bool, error) {
	row, ok := f.rows[id.String()]
	return row, ok, nil
}

func (f *File) Len() int {
	return len(f.rows)
}

func (f *File) Close() error {
	return nil
}
