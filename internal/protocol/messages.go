// ABOUTME: Berkeley clock-sync message definitions
// ABOUTME: Encodes and decodes the fixed-width timestamp payload carried in every frame
package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Kind identifies what a timestamp payload means
type Kind uint8

const (
	// KindClockReport is sent by participants: their local wall clock at send time
	KindClockReport Kind = 1

	// KindCorrectedTime is broadcast by the coordinator once per synchronization cycle
	KindCorrectedTime Kind = 2
)

// PayloadSize is the size of every message payload: 1 byte kind + 8 byte timestamp
const PayloadSize = 1 + 8

func (k Kind) String() string {
	switch k {
	case KindClockReport:
		return "clock-report"
	case KindCorrectedTime:
		return "corrected-time"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DecodeError reports a frame whose payload is not a valid timestamp message.
// It never affects the connection the frame arrived on.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode: " + e.Reason
}

// EncodeTimestamp builds a payload: [kind:1][unix micros:8 big-endian]
func EncodeTimestamp(kind Kind, t time.Time) []byte {
	payload := make([]byte, PayloadSize)
	payload[0] = byte(kind)
	binary.BigEndian.PutUint64(payload[1:], uint64(t.UnixMicro()))
	return payload
}

// DecodeTimestamp parses a payload and checks it carries the expected kind
func DecodeTimestamp(want Kind, payload []byte) (time.Time, error) {
	if len(payload) != PayloadSize {
		return time.Time{}, &DecodeError{Reason: fmt.Sprintf("payload is %d bytes, want %d", len(payload), PayloadSize)}
	}

	kind := Kind(payload[0])
	if kind != want {
		return time.Time{}, &DecodeError{Reason: fmt.Sprintf("unexpected message %s, want %s", kind, want)}
	}

	micros := int64(binary.BigEndian.Uint64(payload[1:]))
	return time.UnixMicro(micros), nil
}

// Truncate rounds t down to the resolution carried on the wire
func Truncate(t time.Time) time.Time {
	return time.UnixMicro(t.UnixMicro())
}
