package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// MaxFrameSize is the largest APT frame the mock knows about.
const MaxFrameSize = wire.HeaderSize + 255

// Framing errors.
var (
	// ErrFrameEmpty indicates an attempt to write zero bytes.
	ErrFrameEmpty = errors.New("frame is empty")

	// ErrFrameTruncated indicates the stream ended inside a frame.
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameWriter writes whole APT frames to an underlying writer.
type FrameWriter struct {
	w  io.Writer
	mu sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.logger = logger
	fw.connID = connID
}

// WriteFrame writes one encoded frame in a single Write call.
// Thread-safe: can be called from multiple goroutines.
func (fw *FrameWriter) WriteFrame(frame []byte) error {
	if len(frame) == 0 {
		return ErrFrameEmpty
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(frameEvent(fw.connID, frame, log.DirectionOut))
	}
	return nil
}

// WriteMessage encodes and writes a message.
func (fw *FrameWriter) WriteMessage(msg wire.Message) error {
	frame, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return fw.WriteFrame(frame)
}

// FrameReader splits an APT byte stream into frames. The header's kind
// determines how many payload bytes follow, so an unknown kind leaves the
// stream unsynchronised and is returned as wire.ErrMalformedHeader.
type FrameReader struct {
	r      io.Reader
	header [wire.HeaderSize]byte

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.logger = logger
	fr.connID = connID
}

// ReadFrame reads one frame and returns its raw bytes, header included.
// A clean end of stream between frames returns io.EOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	h, err := wire.DecodeHeader(fr.header[:])
	if err != nil {
		return nil, err
	}

	frame := make([]byte, wire.HeaderSize+h.DataLength())
	copy(frame, fr.header[:])
	if h.HasData() {
		if _, err := io.ReadFull(fr.r, frame[wire.HeaderSize:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
				return nil, ErrFrameTruncated
			}
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
	}

	if fr.logger != nil {
		fr.logger.Log(frameEvent(fr.connID, frame, log.DirectionIn))
	}
	return frame, nil
}

// ReadMessage reads and decodes one frame.
func (fr *FrameReader) ReadMessage() (wire.Message, error) {
	frame, err := fr.ReadFrame()
	if err != nil {
		return wire.Message{}, err
	}
	return wire.Decode(frame)
}

func frameEvent(connID string, frame []byte, direction log.Direction) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size: len(frame),
			Data: frame,
		},
	}
}

// Framer combines frame reading and writing.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a new framer for bidirectional communication.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw),
		FrameWriter: NewFrameWriter(rw),
	}
}

// SetLogger configures logging for both reader and writer.
// Pass nil to disable logging.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}

// splitter reassembles frames from arbitrarily chunked writes. Bytes that
// do not yet form a whole frame stay pending.
type splitter struct {
	pending []byte
}

// feed appends p and returns every complete frame now available.
func (s *splitter) feed(p []byte) ([][]byte, error) {
	s.pending = append(s.pending, p...)
	var frames [][]byte
	for len(s.pending) >= wire.HeaderSize {
		h, err := wire.DecodeHeader(s.pending[:wire.HeaderSize])
		if err != nil {
			s.pending = nil
			return frames, err
		}
		n := wire.HeaderSize + h.DataLength()
		if len(s.pending) < n {
			break
		}
		frame := make([]byte, n)
		copy(frame, s.pending[:n])
		frames = append(frames, frame)
		s.pending = s.pending[n:]
	}
	return frames, nil
}
