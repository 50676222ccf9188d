package avl

import "time"

// Codec identifies the data packet variant.
type Codec uint8

const (
	Codec8         Codec = 0x08
	Codec8Extended Codec = 0x8E
)

const (
	IdentityLen      = 15
	IdentityFrameLen = 2 + IdentityLen

	// PacketHeaderLen covers preamble, data length, codec id and record count.
	PacketHeaderLen = 4 + 4 + 1 + 1
	// MinPacketLen is the smallest buffer worth attempting to decode.
	MinPacketLen = 12
	// CRCLen is the trailer that follows the data field.
	CRCLen = 4
	AckLen = 4

	gpsElementLen = 15
	timestampLen  = 8
)

// Valid reports whether c is one of the supported codecs.
func (c Codec) Valid() bool {
	return c == Codec8 || c == Codec8Extended
}

func (c Codec) String() string {
	switch c {
	case Codec8:
		return "codec8"
	case Codec8Extended:
		return "codec8e"
	default:
		return "unknown"
	}
}

// headerWidth is the byte width of event ids, element counts and element ids.
func (c Codec) headerWidth() int {
	if c == Codec8Extended {
		return 2
	}
	return 1
}

// Identity is the 15-digit IMEI a tracker announces on connect.
type Identity string

func (id Identity) String() string {
	return string(id)
}

// Record is one decoded telemetry sample.
type Record struct {
	RecordedAt time.Time
	Priority   uint8
	Longitude  float64
	Latitude   float64
	Altitude   int16
	Angle      uint16
	Satellites uint8
	Speed      uint16
	EventID    uint16
	// IO maps element id to value. Values of every width are widened to uint64.
	IO map[uint16]uint64
}

// Packet is one decoded data message.
type Packet struct {
	Codec         Codec
	DataLength    uint32
	DeclaredCount int
	Records       []Record
}
