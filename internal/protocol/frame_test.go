// ABOUTME: Tests for length-prefixed framing
// ABOUTME: Verifies frames survive arbitrary stream chunking and reject bad headers
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	first := EncodeTimestamp(KindClockReport, time.UnixMicro(1_700_000_000_000_000))
	second := EncodeTimestamp(KindCorrectedTime, time.UnixMicro(42))

	req.NoError(WriteFrame(&buf, first))
	req.NoError(WriteFrame(&buf, second))

	got, err := ReadFrame(&buf)
	req.NoError(err)
	req.Equal(first, got)

	got, err = ReadFrame(&buf)
	req.NoError(err)
	req.Equal(second, got)

	_, err = ReadFrame(&buf)
	req.ErrorIs(err, io.EOF)
}

func TestFrameSurvivesByteAtATimeReads(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	payload := EncodeTimestamp(KindClockReport, time.UnixMicro(123456789))
	req.NoError(WriteFrame(&buf, payload))
	req.NoError(WriteFrame(&buf, payload))

	// Given a stream that delivers one byte per Read
	r := iotest.OneByteReader(&buf)

	// Then both frames are reassembled intact
	for i := 0; i < 2; i++ {
		got, err := ReadFrame(r)
		req.NoError(err)
		req.Equal(payload, got)
	}
}

func TestFrameCoalescedWrites(t *testing.T) {
	req := require.New(t)

	// Given two frames that arrive in a single read
	var one, two bytes.Buffer
	req.NoError(WriteFrame(&one, []byte{1, 2, 3}))
	req.NoError(WriteFrame(&two, []byte{4, 5}))
	stream := bytes.NewReader(append(one.Bytes(), two.Bytes()...))

	got, err := ReadFrame(stream)
	req.NoError(err)
	req.Equal([]byte{1, 2, 3}, got)

	got, err = ReadFrame(stream)
	req.NoError(err)
	req.Equal([]byte{4, 5}, got)
}

func TestReadFrameRejectsBadHeaders(t *testing.T) {
	tests := []struct {
		name string
		size uint32
		want error
	}{
		{name: "empty", size: 0, want: ErrEmptyFrame},
		{name: "oversized", size: MaxFrameSize + 1, want: ErrFrameTooLarge},
		{name: "huge", size: 1 << 31, want: ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := make([]byte, FrameHeaderSize)
			binary.BigEndian.PutUint32(header, tt.size)

			_, err := ReadFrame(bytes.NewReader(header))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	header := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint32(header, PayloadSize)
	stream := append(header, 1, 2, 3)

	_, err := ReadFrame(bytes.NewReader(stream))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestWriteFrameRejectsBadPayloads(t *testing.T) {
	var buf bytes.Buffer

	require.ErrorIs(t, WriteFrame(&buf, nil), ErrEmptyFrame)
	require.ErrorIs(t, WriteFrame(&buf, make([]byte, MaxFrameSize+1)), ErrFrameTooLarge)
	require.Zero(t, buf.Len(), "nothing should be written for rejected payloads")
}
