package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type stubLogger struct {
	mock.Mock
}

func (s *stubLogger) Log(event Event) {
	s.Called(event)
}

func TestMultiLoggerCallsAll(t *testing.T) {
	a, b := &stubLogger{}, &stubLogger{}
	event := Event{Timestamp: time.Now(), ConnectionID: "conn-123", Layer: LayerTransport}
	a.On("Log", event).Once()
	b.On("Log", event).Once()

	multi := NewMultiLogger(a, nil, b)
	assert.Equal(t, 2, multi.Len())

	multi.Log(event)

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestMultiLoggerEmpty(t *testing.T) {
	multi := NewMultiLogger()
	assert.NotPanics(t, func() { multi.Log(Event{}) })
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	assert.NotPanics(t, func() { l.Log(Event{Timestamp: time.Now()}) })
}
