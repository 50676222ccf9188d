package sink

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/danmuck/avlgate/internal/protocol/avl"
)

const DefaultTable = "avl_records"

// RecordedAtLayout is RFC 3339 in UTC with millisecond precision.
const RecordedAtLayout = "2006-01-02T15:04:05.000Z07:00"

var rowColumns = []string{
	"imei", "recorded_at", "latitude", "longitude", "speed", "angle",
	"satellites", "altitude", "event_id", "priority", "io_elements",
}

// Row is the stored shape of one record.
type Row struct {
	IMEI       string            `json:"imei"`
	RecordedAt string            `json:"recorded_at"`
	Latitude   float64           `json:"latitude"`
	Longitude  float64           `json:"longitude"`
	Speed      uint16            `json:"speed"`
	Angle      uint16            `json:"angle"`
	Satellites uint8             `json:"satellites"`
	Altitude   int16             `json:"altitude"`
	EventID    uint16            `json:"event_id"`
	Priority   uint8             `json:"priority"`
	IOElements map[string]uint64 `json:"io_elements"`
}

// NewRow maps one record to a sink row.
func NewRow(id avl.Identity, rec avl.Record) Row {
	io := make(map[string]uint64, len(rec.IO))
	for k, v := range rec.IO {
		io[IOKey(k)] = v
	}
	return Row{
		IMEI:       id.String(),
		RecordedAt: FormatRecordedAt(rec.RecordedAt),
		Latitude:   rec.Latitude,
		Longitude:  rec.Longitude,
		Speed:      rec.Speed,
		Angle:      rec.Angle,
		Satellites: rec.Satellites,
		Altitude:   rec.Altitude,
		EventID:    rec.EventID,
		Priority:   rec.Priority,
		IOElements: io,
	}
}

// NewRows maps records in order.
func NewRows(id avl.Identity, records []avl.Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, NewRow(id, rec))
	}
	return rows
}

// IOKey names an IO element in the row's io_elements object.
func IOKey(id uint16) string {
	return "io_" + strconv.FormatUint(uint64(id), 10)
}

// FormatRecordedAt renders t in UTC with millisecond precision.
func FormatRecordedAt(t time.Time) string {
	return t.UTC().Format(RecordedAtLayout)
}

// values returns the row in rowColumns order for COPY.
func (r Row) values() ([]any, error) {
	io, err := json.Marshal(r.IOElements)
	if err != nil {
		return nil, err
	}
	return []any{
		r.IMEI, r.RecordedAt, r.Latitude, r.Longitude, int64(r.Speed), int64(r.Angle),
		int64(r.Satellites), int64(r.Altitude), int64(r.EventID), int64(r.Priority), string(io),
	}, nil
}
