package grounding

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// ErrStreamClosed is returned for any event after Complete.
var ErrStreamClosed = errors.New("reasoning stream closed")

// Sink receives reasoning events in emission order.
type Sink interface {
	Emit(ev models.ReasoningEvent) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev models.ReasoningEvent) error

// Emit calls f(ev).
func (f SinkFunc) Emit(ev models.ReasoningEvent) error { return f(ev) }

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	events []models.ReasoningEvent
}

// Emit appends ev.
func (r *Recorder) Emit(ev models.ReasoningEvent) error {
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []models.ReasoningEvent {
	return append([]models.ReasoningEvent{}, r.events...)
}

// Stream emits zero or more progress events followed by exactly one complete
// event. It is not safe for concurrent use.
type Stream struct {
	sink   Sink
	next   int
	closed bool
}

// NewStream returns a Stream writing to sink.
func NewStream(sink Sink) *Stream {
	return &Stream{sink: sink}
}

// Progress emits one reasoning step.
func (s *Stream) Progress(step string) error {
	if s.closed {
		return ErrStreamClosed
	}
	if err := s.sink.Emit(models.ReasoningEvent{Type: models.EventProgress, Index: s.next, Step: step}); err != nil {
		return fmt.Errorf("emit progress %d: %w", s.next, err)
	}
	s.next++
	return nil
}

// Complete emits the terminal event. The stream is closed afterwards even if
// the sink rejects the event.
func (s *Stream) Complete() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	if err := s.sink.Emit(models.ReasoningEvent{Type: models.EventComplete, Index: s.next}); err != nil {
		return fmt.Errorf("emit complete: %w", err)
	}
	return nil
}

// Closed reports whether Complete has been called.
func (s *Stream) Closed() bool {
	return s.closed
}
