package dubbo

import (
	"encoding/binary"
	"fmt"
)

// Wire framing constants (spec.md §6). Grounded on the teacher's tcp
// framer (framer.go), which plays the same role for the modbus MBAP
// header: a fixed-size header prefix computed once, then patched per
// request with a correlation id and body length.
const (
	// HeaderLength is the fixed size, in bytes, of a Dubbo frame header.
	HeaderLength = 16
	// Magic is the two-byte value every Dubbo frame must begin with.
	Magic = 0xdabb

	magicHigh = byte(Magic >> 8)
	magicLow  = byte(Magic & 0xff)

	flagRequest       = byte(0x80)
	flagTwoWay        = byte(0x40)
	flagEvent         = byte(0x20)
	serializationMask = byte(0x1f)

	// serializationHessian2 is the Hessian2 serialization id carried in the
	// low 5 bits of the flags byte.
	serializationHessian2 = byte(2)
)

// Response status codes, as defined by the Dubbo wire protocol.
const (
	StatusOK                             = byte(20)
	StatusClientTimeout                  = byte(30)
	StatusServerTimeout                  = byte(31)
	StatusBadRequest                     = byte(40)
	StatusBadResponse                    = byte(50)
	StatusServiceNotFound                = byte(60)
	StatusServiceError                   = byte(70)
	StatusServerError                    = byte(80)
	StatusClientError                    = byte(90)
	StatusServerThreadpoolExhaustedError = byte(100)
)

// defaultRequestFlags is the flags byte for a two-way request frame encoded
// with Hessian2 serialization.
const defaultRequestFlags = flagRequest | flagTwoWay | serializationHessian2

// DefaultRequestMeta is the fixed 12-byte header prefix for a request frame:
// magic (2 bytes), flags (1 byte), status (1 byte, always zero on a
// request), and an 8-byte zero request-id placeholder. The framer patches
// the request-id slot with the real value at send time (spec.md §4.1,
// §6). It is exported so tests can assert a frame begins with it.
var DefaultRequestMeta = [12]byte{magicHigh, magicLow, defaultRequestFlags, 0, 0, 0, 0, 0, 0, 0, 0, 0}

// writeFrame returns the 16-byte header followed by body, with requestID
// patched into the header's id slot and dataLength set to len(body).
func writeFrame(requestID int64, body []byte) []byte {
	frame := make([]byte, HeaderLength+len(body))
	copy(frame, DefaultRequestMeta[:])
	binary.BigEndian.PutUint64(frame[4:12], uint64(requestID))
	binary.BigEndian.PutUint32(frame[12:16], uint32(len(body)))
	copy(frame[HeaderLength:], body)
	return frame
}

// frameHeader is the parsed form of a 16-byte Dubbo frame header.
type frameHeader struct {
	Flags      byte
	Status     byte
	RequestID  int64
	DataLength uint32
}

// parseFrameHeader validates the magic number and decodes the remaining
// header fields. hdr must be exactly HeaderLength bytes.
func parseFrameHeader(hdr []byte) (frameHeader, error) {
	if len(hdr) != HeaderLength {
		return frameHeader{}, fmt.Errorf("dubbo: malformed frame header: want %d bytes, got %d", HeaderLength, len(hdr))
	}
	if hdr[0] != magicHigh || hdr[1] != magicLow {
		return frameHeader{}, fmt.Errorf("dubbo: malformed frame header: bad magic 0x%02x%02x", hdr[0], hdr[1])
	}
	return frameHeader{
		Flags:      hdr[2],
		Status:     hdr[3],
		RequestID:  int64(binary.BigEndian.Uint64(hdr[4:12])),
		DataLength: binary.BigEndian.Uint32(hdr[12:16]),
	}, nil
}
