package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/danmuck/avlgate/internal/auth"
	"github.com/danmuck/avlgate/internal/gateway"
	"github.com/danmuck/avlgate/internal/tenant"
	"github.com/danmuck/avlgate/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type stubSessions struct {
	listening bool
	sessions  []gateway.SessionInfo
}

func (s stubSessions) Sessions() []gateway.SessionInfo { return s.sessions }
func (s stubSessions) Listening() bool                 { return s.listening }
func (s stubSessions) ActiveConnections() int64        { return int64(len(s.sessions)) }
func (s stubSessions) AcceptedConnections() uint64     { return uint64(len(s.sessions)) + 2 }

func newTestServer(t *testing.T, listening bool) (*Server, *tenant.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cache := tenant.NewCache(quartz.NewMock(t), time.Minute)
	cache.Put(tenant.Route{DeviceID: "356307042441013", TenantLabel: "acme", UnitLabel: "truck-7", SinkEndpoint: "https://acme.test", SinkCredential: "secret"})
	sessions := stubSessions{
		listening: listening,
		sessions: []gateway.SessionInfo{
			{Remote: "10.0.0.7:50210", IMEI: "356307042441013", Tenant: "acme", Phase: "authenticated", Packets: 4, Records: 9, LastAck: 2},
		},
	}
	return New(Config{Name: "avlgate-test"}, sessions, cache, zerolog.Nop()), cache
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t, true)
	if rr := serve(s, http.MethodGet, "/health"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "avlgate-test") {
		t.Fatalf("health: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := serve(s, http.MethodGet, "/ready"); rr.Code != http.StatusOK {
		t.Fatalf("ready: status=%d body=%s", rr.Code, rr.Body.String())
	}

	notReady, _ := newTestServer(t, false)
	if rr := serve(notReady, http.MethodGet, "/ready"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before listening, got %d", rr.Code)
	}
}

func TestSessionsAndCacheViews(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t, true)

	rr := serve(s, http.MethodGet, "/sessions")
	if rr.Code != http.StatusOK {
		t.Fatalf("sessions: status=%d", rr.Code)
	}
	var sessions struct {
		Active   int64                 `json:"active"`
		Accepted uint64                `json:"accepted"`
		Sessions []gateway.SessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if sessions.Active != 1 || sessions.Accepted != 3 || len(sessions.Sessions) != 1 || sessions.Sessions[0].Records != 9 {
		t.Fatalf("unexpected sessions body: %s", rr.Body.String())
	}

	rr = serve(s, http.MethodGet, "/cache")
	if rr.Code != http.StatusOK {
		t.Fatalf("cache: status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret") {
		t.Fatalf("cache view leaked sink credential: %s", rr.Body.String())
	}
	var cache struct {
		TTL     string                  `json:"ttl"`
		Entries []tenant.CacheEntryInfo `json:"entries"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &cache); err != nil {
		t.Fatalf("decode cache: %v", err)
	}
	if cache.TTL != "1m0s" || len(cache.Entries) != 1 || cache.Entries[0].TenantLabel != "acme" {
		t.Fatalf("unexpected cache body: %s", rr.Body.String())
	}
}

func TestEvictCachedRoute(t *testing.T) {
	testlog.Start(t)
	s, cache := newTestServer(t, true)

	if rr := serve(s, http.MethodDelete, "/cache/12345"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad imei, got %d", rr.Code)
	}
	if rr := serve(s, http.MethodDelete, "/cache/356307042441099"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for uncached imei, got %d", rr.Code)
	}
	if rr := serve(s, http.MethodDelete, "/cache/356307042441013"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on evict, got %d body=%s", rr.Code, rr.Body.String())
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after evict, got %d", cache.Len())
	}
}

func TestTokenGuardsOperatorRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	cache := tenant.NewCache(quartz.NewMock(t), time.Minute)
	s := New(Config{Tokens: auth.StaticTokens{"ops-token"}}, stubSessions{listening: true}, cache, zerolog.Nop())

	if rr := serve(s, http.MethodGet, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health should stay open, got %d", rr.Code)
	}
	if rr := serve(s, http.MethodGet, "/sessions"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/cache", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/cache", nil)
	req.Header.Set("Authorization", "Bearer ops-token")
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t, true)
	_ = serve(s, http.MethodGet, "/health")
	rr := serve(s, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "avlgate_http_requests_total") {
		t.Fatalf("expected admin request counter in metrics output")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t, true)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve exit err: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("admin server did not stop")
	}
}
