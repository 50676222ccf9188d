package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/danmuck/avlgate/internal/tenant"
	"github.com/danmuck/avlgate/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func newTestServerOrSkip(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	func() {
		defer func() {
			if r := recover(); r != nil {
				server = nil
			}
		}()
		server = httptest.NewServer(handler)
	}()
	if server == nil {
		t.Skip("skipping listener test in restricted environment")
	}
	return server
}

func sampleRecord() avl.Record {
	return avl.Record{
		RecordedAt: time.UnixMilli(1560160861000).In(time.FixedZone("EEST", 3*3600)),
		Priority:   1,
		Longitude:  25.2,
		Latitude:   54.6,
		Altitude:   120,
		Angle:      90,
		Satellites: 9,
		Speed:      42,
		EventID:    1,
		IO:         map[uint16]uint64{1: 0, 21: 3, 66: 24079},
	}
}

func TestNewRowMapping(t *testing.T) {
	testlog.Start(t)
	row := NewRow("356307042441013", sampleRecord())
	if row.RecordedAt != "2019-06-10T10:01:01.000Z" {
		t.Fatalf("recorded_at: got %q", row.RecordedAt)
	}
	if row.IMEI != "356307042441013" || row.Latitude != 54.6 || row.Longitude != 25.2 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if len(row.IOElements) != 3 || row.IOElements["io_66"] != 24079 || row.IOElements["io_21"] != 3 {
		t.Fatalf("unexpected io elements: %+v", row.IOElements)
	}

	encoded, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(encoded, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, col := range rowColumns {
		if _, ok := fields[col]; !ok {
			t.Fatalf("missing column %q in %s", col, encoded)
		}
	}

	values, err := row.values()
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if len(values) != len(rowColumns) {
		t.Fatalf("values/columns mismatch: %d vs %d", len(values), len(rowColumns))
	}
}

func TestFormatRecordedAtMillis(t *testing.T) {
	testlog.Start(t)
	ts := time.Date(2024, 2, 29, 23, 59, 59, 123456789, time.UTC)
	if got := FormatRecordedAt(ts); got != "2024-02-29T23:59:59.123Z" {
		t.Fatalf("got %q", got)
	}
}

func TestRouterRESTWrite(t *testing.T) {
	testlog.Start(t)
	var calls atomic.Int32
	srv := newTestServerOrSkip(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/avl_records" {
			http.Error(w, "bad route", http.StatusNotFound)
			return
		}
		if r.Header.Get("apikey") != "tenant-key" || r.Header.Get("Authorization") != "Bearer tenant-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Prefer") != "return=minimal" {
			http.Error(w, "missing prefer", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var rows []Row
		if err := json.Unmarshal(body, &rows); err != nil || len(rows) != 2 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	router, err := NewRouter(Options{HTTPClient: srv.Client(), Timeout: time.Second, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	defer router.Close()

	route := tenant.Route{
		DeviceID:       "356307042441013",
		TenantLabel:    "acme",
		SinkEndpoint:   srv.URL + "/",
		SinkCredential: "tenant-key",
	}
	if err := router.Write(context.Background(), route, []avl.Record{sampleRecord(), sampleRecord()}); err != nil {
		t.Fatalf("write: %v", err)
	}

	route.SinkCredential = "wrong"
	if err := router.Write(context.Background(), route, []avl.Record{sampleRecord(), sampleRecord()}); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestRouterRejectsUnknownScheme(t *testing.T) {
	testlog.Start(t)
	router, err := NewRouter(Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	route := tenant.Route{DeviceID: "356307042441013", SinkEndpoint: "mqtt://broker", SinkCredential: "k"}
	if err := router.Write(context.Background(), route, []avl.Record{sampleRecord()}); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
	if err := router.CheckEndpoint("ftp://files.acme"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme from CheckEndpoint, got %v", err)
	}
	if err := router.CheckEndpoint("postgres://db.acme/telemetry"); err != nil {
		t.Fatalf("check postgres endpoint: %v", err)
	}
	if _, err := NewRouter(Options{Table: "bad table"}); err == nil {
		t.Fatalf("expected invalid table error")
	}
}

func TestKind(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"https://acme.example.com":       "rest",
		"HTTP://acme.example.com":        "rest",
		"postgres://db.acme/telemetry":   "postgres",
		"postgresql://db.acme/telemetry": "postgres",
	}
	for endpoint, want := range cases {
		got, err := Kind(endpoint)
		if err != nil || got != want {
			t.Fatalf("%s: got %q err=%v want %q", endpoint, got, err, want)
		}
	}
}

func TestPostgresPoolsPerEndpoint(t *testing.T) {
	testlog.Start(t)
	pg := NewPostgres(DefaultTable)
	defer pg.Close()
	a, err := pg.pool("postgres://db.acme/telemetry", "k1")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	b, err := pg.pool("postgres://db.acme/telemetry", "k1")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if a != b {
		t.Fatalf("expected shared pool for same endpoint and credential")
	}
	if _, err := pg.pool("postgres://db.beta/telemetry", "k1"); err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pg.PoolCount() != 2 {
		t.Fatalf("expected 2 pools, got %d", pg.PoolCount())
	}
	if err := pg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if pg.PoolCount() != 0 {
		t.Fatalf("expected pools released")
	}
}

func TestPostgresPoolReplacedOnCredentialChange(t *testing.T) {
	testlog.Start(t)
	pg := NewPostgres(DefaultTable)
	defer pg.Close()
	old, err := pg.pool("postgres://db.acme/telemetry", "k1")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	rotated, err := pg.pool("postgres://db.acme/telemetry", "k2")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if rotated == old {
		t.Fatalf("expected a new pool after credential change")
	}
	if pg.PoolCount() != 1 {
		t.Fatalf("expected the old pool dropped, got %d pools", pg.PoolCount())
	}
	if err := old.PingContext(context.Background()); err == nil || !strings.Contains(err.Error(), "database is closed") {
		t.Fatalf("expected old pool closed, got %v", err)
	}
}

func TestCopyStatement(t *testing.T) {
	testlog.Start(t)
	got := copyStatement("avl_records")
	if !strings.HasPrefix(got, `COPY "avl_records" (`) || !strings.Contains(got, `"io_elements"`) || !strings.HasSuffix(got, "FROM STDIN") {
		t.Fatalf("unexpected copy statement: %s", got)
	}
	if got := copyStatement("fleet.avl_records"); !strings.HasPrefix(got, `COPY "fleet"."avl_records" (`) {
		t.Fatalf("unexpected schema copy statement: %s", got)
	}
}

func TestPostgresWrite(t *testing.T) {
	testlog.Start(t)
	dsn := os.Getenv("AVLGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AVLGATE_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg := NewPostgres("avlgate_sink_test")
	defer pg.Close()
	db, err := pg.pool(dsn, "")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS avlgate_sink_test`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE avlgate_sink_test (
		imei text, recorded_at timestamptz, latitude double precision, longitude double precision,
		speed integer, angle integer, satellites integer, altitude integer, event_id integer,
		priority integer, io_elements jsonb)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	defer db.ExecContext(context.Background(), `DROP TABLE IF EXISTS avlgate_sink_test`)

	route := tenant.Route{DeviceID: "356307042441013", SinkEndpoint: dsn}
	rows := NewRows(route.DeviceID, []avl.Record{sampleRecord(), sampleRecord()})
	if err := pg.Write(ctx, route, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	var count int
	if err := db.GetContext(ctx, &count, `SELECT count(*) FROM avlgate_sink_test WHERE io_elements->>'io_66' = '24079'`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}
}
