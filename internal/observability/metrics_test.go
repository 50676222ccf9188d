package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	ConnectionOpened()
	ConnectionClosed()
	RecordHandshake("accepted")
	RecordPacket("codec8", "acked", 3)
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordSinkWrite("tenant-a", "rest", 24*time.Millisecond, true)

	if got := testutil.ToFloat64(handshakes.WithLabelValues("accepted")); got < 1 {
		t.Fatalf("expected handshake counter to advance, got %v", got)
	}
	if got := testutil.ToFloat64(activeConnections); got != 0 {
		t.Fatalf("expected balanced connection gauge, got %v", got)
	}

	log.Info().Msg("observability/metrics: registration idempotent and recording paths executed")
}
