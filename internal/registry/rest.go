package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/danmuck/avlgate/internal/tenant"
)

const registryColumns = "imei,unit_label,tenant_label,sink_endpoint,sink_credential"

// REST queries a PostgREST-style endpoint: GET /rest/v1/<table>?imei=eq.<id>.
type REST struct {
	baseURL    string
	credential string
	table      string
	client     *http.Client
}

// NewREST returns a PostgREST registry client. A nil client uses http.DefaultClient.
func NewREST(baseURL, credential, table string, client *http.Client) *REST {
	if client == nil {
		client = http.DefaultClient
	}
	return &REST{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: credential,
		table:      table,
		client:     client,
	}
}

// Lookup fetches the device row with an eq filter on imei.
func (r *REST) Lookup(ctx context.Context, id avl.Identity) (tenant.RegistryRow, bool, error) {
	q := url.Values{}
	q.Set("imei", "eq."+id.String())
	q.Set("select", registryColumns)
	q.Set("limit", "1")
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", r.baseURL, r.table, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return tenant.RegistryRow{}, false, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("apikey", r.credential)
	req.Header.Set("Authorization", "Bearer "+r.credential)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return tenant.RegistryRow{}, false, fmt.Errorf("registry: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tenant.RegistryRow{}, false, fmt.Errorf(
			"registry: lookup status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)),
		)
	}

	var rows []nullableRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return tenant.RegistryRow{}, false, fmt.Errorf("registry: decode response: %w", err)
	}
	if len(rows) == 0 {
		return tenant.RegistryRow{}, false, nil
	}
	return rows[0].row(), true, nil
}

func (r *REST) Close() error {
	return nil
}

// nullableRow tolerates null columns in JSON responses.
type nullableRow struct {
	DeviceID       *string `json:"imei"`
	UnitLabel      *string `json:"unit_label"`
	TenantLabel    *string `json:"tenant_label"`
	SinkEndpoint   *string `json:"sink_endpoint"`
	SinkCredential *string `json:"sink_credential"`
}

func (n nullableRow) row() tenant.RegistryRow {
	return tenant.RegistryRow{
		DeviceID:       deref(n.DeviceID),
		UnitLabel:      deref(n.UnitLabel),
		TenantLabel:    deref(n.TenantLabel),
		SinkEndpoint:   deref(n.SinkEndpoint),
		SinkCredential: deref(n.SinkCredential),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
