package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

func statusFrame(t *testing.T) []byte {
	t.Helper()
	msg, err := wire.NewDataMessage(wire.GetDCStatusUpdate, wire.StatusUpdate{
		Channel:  1,
		Position: 1234,
		Status:   wire.StatusDefault,
	})
	if err != nil {
		t.Fatalf("NewDataMessage: %v", err)
	}
	return wire.MustEncode(msg)
}

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name  string
		frame func(t *testing.T) []byte
	}{
		{
			name: "header only",
			frame: func(*testing.T) []byte {
				return wire.MustEncode(wire.NewHeaderMessage(wire.HWReqInfo, 0, 0))
			},
		},
		{
			name: "header with params",
			frame: func(*testing.T) []byte {
				return wire.MustEncode(wire.NewHeaderMessage(wire.MoveJog, 1, 2))
			},
		},
		{
			name:  "data frame",
			frame: statusFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := tt.frame(t)
			buf := new(bytes.Buffer)

			writer := NewFrameWriter(buf)
			if err := writer.WriteFrame(frame); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != len(frame) {
				t.Errorf("wrote %d bytes, want %d", buf.Len(), len(frame))
			}

			reader := NewFrameReader(buf)
			got, err := reader.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, frame) {
				t.Errorf("frame mismatch: got %x, want %x", got, frame)
			}
		})
	}
}

func TestFrameWriterEmptyFrame(t *testing.T) {
	writer := NewFrameWriter(new(bytes.Buffer))

	if err := writer.WriteFrame(nil); !errors.Is(err, ErrFrameEmpty) {
		t.Errorf("expected ErrFrameEmpty, got %v", err)
	}
}

func TestFrameWriterMessage(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := NewFrameWriter(buf)

	if err := writer.WriteMessage(wire.NewHeaderMessage(wire.MoveHome, 1, 0)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	msg, err := NewFrameReader(buf).ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msg.Kind != wire.MoveHome || msg.Param1 != 1 {
		t.Errorf("got %s", msg)
	}

	// Header-only kinds may not carry a payload.
	bad := wire.Message{Kind: wire.MoveHome, Payload: []byte{1}}
	if err := writer.WriteMessage(bad); !errors.Is(err, wire.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestFrameReaderUnknownKind(t *testing.T) {
	var hdr [wire.HeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:2], 0x7FFF)

	_, err := NewFrameReader(bytes.NewReader(hdr[:])).ReadFrame()
	if !errors.Is(err, wire.ErrMalformedHeader) {
		t.Errorf("expected ErrMalformedHeader, got %v", err)
	}
}

func TestFrameReaderTruncatedHeader(t *testing.T) {
	_, err := NewFrameReader(bytes.NewReader([]byte{0x05, 0x00, 0x00})).ReadFrame()
	if !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("expected ErrFrameTruncated, got %v", err)
	}
}

func TestFrameReaderTruncatedPayload(t *testing.T) {
	frame := statusFrame(t)

	_, err := NewFrameReader(bytes.NewReader(frame[:len(frame)-3])).ReadFrame()
	if !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("expected ErrFrameTruncated, got %v", err)
	}

	// Header alone, payload missing entirely.
	_, err = NewFrameReader(bytes.NewReader(frame[:wire.HeaderSize])).ReadFrame()
	if !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("expected ErrFrameTruncated, got %v", err)
	}
}

func TestFrameReaderEOF(t *testing.T) {
	_, err := NewFrameReader(new(bytes.Buffer)).ReadFrame()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestMultipleFrames(t *testing.T) {
	frames := [][]byte{
		wire.MustEncode(wire.NewHeaderMessage(wire.HWReqInfo, 0, 0)),
		statusFrame(t),
		wire.MustEncode(wire.NewHeaderMessage(wire.MoveStop, 1, 2)),
	}
	stream := bytes.Join(frames, nil)

	reader := NewFrameReader(bytes.NewReader(stream))
	for i, want := range frames {
		got, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %x, want %x", i, got, want)
		}
	}
	if _, err := reader.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}

func TestSplitterChunked(t *testing.T) {
	a := statusFrame(t)
	b := wire.MustEncode(wire.NewHeaderMessage(wire.MoveHomed, 1, 0))
	stream := append(append([]byte{}, a...), b...)

	var s splitter
	var got [][]byte
	// Feed three bytes at a time so frames straddle chunk boundaries.
	for i := 0; i < len(stream); i += 3 {
		frames, err := s.feed(stream[i:min(i+3, len(stream))])
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		got = append(got, frames...)
	}

	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("frames reassembled incorrectly")
	}
	if len(s.pending) != 0 {
		t.Errorf("pending = %d bytes, want 0", len(s.pending))
	}
}

func TestSplitterRejectsUnknownKind(t *testing.T) {
	var s splitter
	_, err := s.feed([]byte{0xFF, 0x7F, 0, 0, 0, 0})
	if !errors.Is(err, wire.ErrMalformedHeader) {
		t.Errorf("expected ErrMalformedHeader, got %v", err)
	}
}

// capturingLogger captures log events for testing.
type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func TestFramerLogsWithConnectionID(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &capturingLogger{}

	framer := NewFramer(buf)
	framer.SetLogger(logger, "conn-123")

	frame := statusFrame(t)
	if err := framer.WriteFrame(frame); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	events := logger.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for i, dir := range []log.Direction{log.DirectionOut, log.DirectionIn} {
		e := events[i]
		if e.ConnectionID != "conn-123" {
			t.Errorf("event %d ConnectionID = %q", i, e.ConnectionID)
		}
		if e.Direction != dir {
			t.Errorf("event %d Direction = %v, want %v", i, e.Direction, dir)
		}
		if e.Layer != log.LayerTransport || e.Category != log.CategoryMessage {
			t.Errorf("event %d layer/category = %v/%v", i, e.Layer, e.Category)
		}
		if e.Frame == nil || e.Frame.Size != len(frame) || !bytes.Equal(e.Frame.Data, frame) {
			t.Errorf("event %d frame = %+v", i, e.Frame)
		}
	}
}

func TestFramerNoLoggerNoPanic(t *testing.T) {
	buf := new(bytes.Buffer)
	framer := NewFramer(buf)
	framer.SetLogger(nil, "")

	if err := framer.WriteFrame(statusFrame(t)); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
}
