package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/danmuck/avlgate/internal/tenant"
)

// REST bulk-inserts rows through POST {endpoint}/rest/v1/{table}.
type REST struct {
	table  string
	client *http.Client
}

// NewREST returns a PostgREST bulk writer. A nil client uses http.DefaultClient.
func NewREST(table string, client *http.Client) *REST {
	if client == nil {
		client = http.DefaultClient
	}
	return &REST{table: table, client: client}
}

// Write posts rows as one JSON array. Non-2xx responses wrap ErrRejected.
func (s *REST) Write(ctx context.Context, route tenant.Route, rows []Row) error {
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("sink: encode rows: %w", err)
	}
	endpoint := strings.TrimRight(route.SinkEndpoint, "/") + "/rest/v1/" + s.table
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", route.SinkCredential)
	req.Header.Set("Authorization", "Bearer "+route.SinkCredential)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
