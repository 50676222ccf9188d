package device

import (
	"math/rand"
	"time"

	"github.com/danmuck/avlgate/internal/protocol/avl"
)

// Track produces a plausible drive around an origin, one fix per Next call.
type Track struct {
	rng      *rand.Rand
	at       time.Time
	interval time.Duration
	lat      float64
	lon      float64
	angle    uint16
}

// NewTrack returns a deterministic random walk starting at lat, lon.
func NewTrack(seed int64, start time.Time, lat, lon float64, interval time.Duration) *Track {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Track{
		rng:      rand.New(rand.NewSource(seed)),
		at:       start.UTC().Truncate(time.Millisecond),
		interval: interval,
		lat:      lat,
		lon:      lon,
	}
}

// Next returns n consecutive records.
func (t *Track) Next(n int) []avl.Record {
	out := make([]avl.Record, 0, n)
	for i := 0; i < n; i++ {
		t.angle = uint16((int(t.angle) + t.rng.Intn(31) - 15 + 360) % 360)
		speed := uint16(20 + t.rng.Intn(70))
		t.lat += (t.rng.Float64() - 0.5) * 0.001
		t.lon += (t.rng.Float64() - 0.5) * 0.001
		out = append(out, avl.Record{
			RecordedAt: t.at,
			Priority:   0,
			Latitude:   t.lat,
			Longitude:  t.lon,
			Altitude:   int16(100 + t.rng.Intn(50)),
			Angle:      t.angle,
			Satellites: uint8(6 + t.rng.Intn(8)),
			Speed:      speed,
			EventID:    0,
			IO: map[uint16]uint64{
				239: 1,
				240: 1,
				21:  uint64(3 + t.rng.Intn(3)),
				66:  uint64(12000 + t.rng.Intn(2000)),
				16:  uint64(t.rng.Int63n(1 << 32)),
			},
		})
		t.at = t.at.Add(t.interval)
	}
	return out
}
