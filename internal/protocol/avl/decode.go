package avl

import (
	"encoding/binary"
	"time"
)

// DecodeIdentity parses the [2B length][15B ASCII digits] handshake frame.
// A buffer holding fewer than 2+length bytes is reported as ErrShortBuffer.
func DecodeIdentity(buf []byte) (Identity, error) {
	if len(buf) < 2 {
		return "", ErrShortBuffer
	}
	n := int(binary.BigEndian.Uint16(buf[0:2]))
	if len(buf) < 2+n {
		return "", ErrShortBuffer
	}
	if n != IdentityLen {
		return "", ErrIdentityLength
	}
	return ParseIdentity(string(buf[2 : 2+n]))
}

// ParseIdentity validates a textual IMEI.
func ParseIdentity(raw string) (Identity, error) {
	if len(raw) != IdentityLen {
		return "", ErrIdentityLength
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return "", ErrIdentityDigits
		}
	}
	return Identity(raw), nil
}

// DecodePacket decodes one data message. It fails closed: an unknown codec or
// any record that cannot be fully read fails the whole packet.
func DecodePacket(buf []byte) (Packet, error) {
	c := &cursor{buf: buf}
	if _, err := c.take(4, "preamble"); err != nil {
		return Packet{}, err
	}
	dataLen, err := c.uint(4, "data_length")
	if err != nil {
		return Packet{}, err
	}
	rawCodec, err := c.uint(1, "codec")
	if err != nil {
		return Packet{}, err
	}
	codec := Codec(rawCodec)
	if !codec.Valid() {
		return Packet{}, &DecodeError{Field: "codec", Offset: c.off - 1, Err: ErrUnsupportedCodec}
	}
	count, err := c.uint(1, "record_count")
	if err != nil {
		return Packet{}, err
	}

	records := make([]Record, 0, count)
	for i := 0; i < int(count); i++ {
		rec, err := decodeRecord(c, codec)
		if err != nil {
			return Packet{}, err
		}
		records = append(records, rec)
	}
	if len(records) != int(count) {
		return Packet{}, ErrRecordCountMismatch
	}
	return Packet{
		Codec:         codec,
		DataLength:    uint32(dataLen),
		DeclaredCount: int(count),
		Records:       records,
	}, nil
}

func decodeRecord(c *cursor, codec Codec) (Record, error) {
	ts, err := c.uint(timestampLen, "timestamp")
	if err != nil {
		return Record{}, err
	}
	priority, err := c.uint(1, "priority")
	if err != nil {
		return Record{}, err
	}
	gps, err := c.take(gpsElementLen, "gps_element")
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		RecordedAt: time.UnixMilli(int64(ts)).UTC(),
		Priority:   uint8(priority),
		Longitude:  float64(int32(binary.BigEndian.Uint32(gps[0:4]))) / coordScale,
		Latitude:   float64(int32(binary.BigEndian.Uint32(gps[4:8]))) / coordScale,
		Altitude:   int16(binary.BigEndian.Uint16(gps[8:10])),
		Angle:      binary.BigEndian.Uint16(gps[10:12]),
		Satellites: gps[12],
		Speed:      binary.BigEndian.Uint16(gps[13:15]),
	}
	if err := decodeIO(c, codec, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// valueWidths is the fixed order of IO element sub-groups.
var valueWidths = [...]int{1, 2, 4, 8}

func decodeIO(c *cursor, codec Codec, rec *Record) error {
	hw := codec.headerWidth()
	eventID, err := c.uint(hw, "event_id")
	if err != nil {
		return err
	}
	rec.EventID = uint16(eventID)
	// Total element count is informational only.
	if _, err := c.uint(hw, "io_total"); err != nil {
		return err
	}
	rec.IO = make(map[uint16]uint64)
	for _, width := range valueWidths {
		n, err := c.uint(hw, "io_count")
		if err != nil {
			return err
		}
		for i := 0; i < int(n); i++ {
			id, err := c.uint(hw, "io_id")
			if err != nil {
				return err
			}
			v, err := c.uint(width, "io_value")
			if err != nil {
				return err
			}
			rec.IO[uint16(id)] = v
		}
	}
	return nil
}

const coordScale = 1e7

// cursor is a bounds-checked big-endian reader over a fixed buffer.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) take(n int, field string) ([]byte, error) {
	if n < 0 || len(c.buf)-c.off < n {
		return nil, &DecodeError{Field: field, Offset: c.off, Err: ErrShortBuffer}
	}
	out := c.buf[c.off : c.off+n]
	c.off += n
	return out, nil
}

func (c *cursor) uint(width int, field string) (uint64, error) {
	b, err := c.take(width, field)
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	default:
		return binary.BigEndian.Uint64(b), nil
	}
}
