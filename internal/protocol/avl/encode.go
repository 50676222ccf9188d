package avl

import (
	"encoding/binary"
	"math"
	"slices"
)

// EncodeAck returns the 4-byte accepted-record-count reply.
func EncodeAck(count uint32) []byte {
	buf := make([]byte, AckLen)
	binary.BigEndian.PutUint32(buf, count)
	return buf
}

// EncodeIdentity returns the handshake frame a tracker sends for id.
func EncodeIdentity(id Identity) []byte {
	buf := make([]byte, 2+len(id))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(id)))
	copy(buf[2:], id)
	return buf
}

// EncodePacket serializes p the way a tracker does: zero preamble, data length,
// data field (codec, count, records, count) and a CRC-16/IBM trailer.
// IO values are written in the narrowest of the 1/2/4/8 byte groups that holds them.
func EncodePacket(p Packet) ([]byte, error) {
	if !p.Codec.Valid() {
		return nil, ErrUnsupportedCodec
	}
	if len(p.Records) > math.MaxUint8 {
		return nil, ErrFieldOverflow
	}
	data := []byte{byte(p.Codec), byte(len(p.Records))}
	for _, rec := range p.Records {
		var err error
		data, err = appendRecord(data, p.Codec, rec)
		if err != nil {
			return nil, err
		}
	}
	data = append(data, byte(len(p.Records)))

	out := make([]byte, 8, 8+len(data)+CRCLen)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(data)))
	out = append(out, data...)
	out = binary.BigEndian.AppendUint32(out, uint32(CRC16(data)))
	return out, nil
}

func appendRecord(dst []byte, codec Codec, rec Record) ([]byte, error) {
	dst = binary.BigEndian.AppendUint64(dst, uint64(rec.RecordedAt.UnixMilli()))
	dst = append(dst, rec.Priority)
	dst = binary.BigEndian.AppendUint32(dst, uint32(scaleCoord(rec.Longitude)))
	dst = binary.BigEndian.AppendUint32(dst, uint32(scaleCoord(rec.Latitude)))
	dst = binary.BigEndian.AppendUint16(dst, uint16(rec.Altitude))
	dst = binary.BigEndian.AppendUint16(dst, rec.Angle)
	dst = append(dst, rec.Satellites)
	dst = binary.BigEndian.AppendUint16(dst, rec.Speed)

	hw := codec.headerWidth()
	groups := make(map[int][]uint16, len(valueWidths))
	for id, v := range rec.IO {
		w := narrowestWidth(v)
		groups[w] = append(groups[w], id)
	}

	var err error
	if dst, err = appendHeaderField(dst, hw, uint64(rec.EventID)); err != nil {
		return nil, err
	}
	if dst, err = appendHeaderField(dst, hw, uint64(len(rec.IO))); err != nil {
		return nil, err
	}
	for _, width := range valueWidths {
		ids := groups[width]
		slices.Sort(ids)
		if dst, err = appendHeaderField(dst, hw, uint64(len(ids))); err != nil {
			return nil, err
		}
		for _, id := range ids {
			if dst, err = appendHeaderField(dst, hw, uint64(id)); err != nil {
				return nil, err
			}
			dst = appendUint(dst, width, rec.IO[id])
		}
	}
	return dst, nil
}

func appendHeaderField(dst []byte, width int, v uint64) ([]byte, error) {
	if width == 1 && v > math.MaxUint8 {
		return nil, ErrFieldOverflow
	}
	if width == 2 && v > math.MaxUint16 {
		return nil, ErrFieldOverflow
	}
	return appendUint(dst, width, v), nil
}

func appendUint(dst []byte, width int, v uint64) []byte {
	switch width {
	case 1:
		return append(dst, byte(v))
	case 2:
		return binary.BigEndian.AppendUint16(dst, uint16(v))
	case 4:
		return binary.BigEndian.AppendUint32(dst, uint32(v))
	default:
		return binary.BigEndian.AppendUint64(dst, v)
	}
}

func narrowestWidth(v uint64) int {
	switch {
	case v <= math.MaxUint8:
		return 1
	case v <= math.MaxUint16:
		return 2
	case v <= math.MaxUint32:
		return 4
	default:
		return 8
	}
}

func scaleCoord(deg float64) int32 {
	return int32(math.Round(deg * coordScale))
}
