// ABOUTME: Length-prefixed framing for byte-stream transports
// ABOUTME: One frame is [length:4 big-endian][payload], independent of read/write boundaries
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is the size of the length prefix
	FrameHeaderSize = 4

	// MaxFrameSize bounds the payload a peer may announce
	MaxFrameSize = 64
)

var (
	// ErrFrameTooLarge is returned when a header announces more than MaxFrameSize bytes
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrEmptyFrame is returned when a header announces a zero-length payload
	ErrEmptyFrame = errors.New("empty frame")
)

// WriteFrame writes payload as a single frame with one Write call
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:FrameHeaderSize], uint32(len(payload)))
	copy(buf[FrameHeaderSize:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame blocks until one complete frame has been read.
// A header announcing an empty or oversized payload leaves the stream
// unsynchronised, so it is reported as an error rather than skipped.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, ErrEmptyFrame
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
