package avl

import "encoding/binary"

// MessageLength returns the full on-wire size of the data message at the
// start of buf (preamble, length, data field, CRC) once the length is readable.
func MessageLength(buf []byte) (int, bool) {
	if len(buf) < 8 {
		return 0, false
	}
	dataLen := binary.BigEndian.Uint32(buf[4:8])
	return 8 + int(dataLen) + CRCLen, true
}

// VerifyCRC checks the CRC-16/IBM trailer of one complete data message.
func VerifyCRC(msg []byte) error {
	total, ok := MessageLength(msg)
	if !ok || len(msg) < total {
		return ErrShortBuffer
	}
	data := msg[8 : total-CRCLen]
	want := binary.BigEndian.Uint32(msg[total-CRCLen : total])
	if uint32(CRC16(data)) != want {
		return ErrCRCMismatch
	}
	return nil
}

// CRC16 computes CRC-16/IBM (reflected polynomial 0xA001, zero init).
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
