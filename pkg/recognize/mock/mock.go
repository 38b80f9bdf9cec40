// Package mock provides scripted recognition streams for tests.
package mock

import (
	"context"
	"sync"

	"github.com/polyvox/polyvox/pkg/recognize"
)

// Recognizer implements [recognize.Recognizer] by handing out scripted
// streams. Each Open call consumes the next script; when the scripts run
// out, Open returns OpenErr if set, otherwise an empty stream.
type Recognizer struct {
	mu sync.Mutex

	// Scripts are the per-call event sequences, consumed in order.
	Scripts [][]recognize.Event

	// StreamErr, when non-nil, is reported by every stream's Err after its
	// events are consumed.
	StreamErr error

	// OpenErr, when non-nil, is returned by Open once Scripts is exhausted.
	OpenErr error

	// Opens counts Open calls.
	Opens int
}

var _ recognize.Recognizer = (*Recognizer)(nil)

// Open implements [recognize.Recognizer.Open].
func (r *Recognizer) Open(_ context.Context, _ string) (recognize.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Opens++

	var script []recognize.Event
	if len(r.Scripts) > 0 {
		script = r.Scripts[0]
		r.Scripts = r.Scripts[1:]
	} else if r.OpenErr != nil {
		return nil, r.OpenErr
	}

	s := &Stream{
		events: make(chan recognize.Event, len(script)+1),
		err:    r.StreamErr,
	}
	for _, ev := range script {
		s.events <- ev
	}
	close(s.events)
	return s, nil
}

// Name implements [recognize.Recognizer.Name].
func (r *Recognizer) Name() string {
	return "mock"
}

// OpenCount returns how many times Open was invoked.
func (r *Recognizer) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Opens
}

// Stream is a pre-filled [recognize.Stream]. Its events channel is already
// closed, so consumers drain it and observe end-of-stream immediately after.
type Stream struct {
	events chan recognize.Event
	err    error

	mu     sync.Mutex
	closed bool
}

var _ recognize.Stream = (*Stream)(nil)

// NewStream creates a standalone scripted stream.
func NewStream(events []recognize.Event, err error) *Stream {
	s := &Stream{
		events: make(chan recognize.Event, len(events)+1),
		err:    err,
	}
	for _, ev := range events {
		s.events <- ev
	}
	close(s.events)
	return s
}

// Events implements [recognize.Stream.Events].
func (s *Stream) Events() <-chan recognize.Event { return s.events }

// Err implements [recognize.Stream.Err].
func (s *Stream) Err() error { return s.err }

// Close implements [recognize.Stream.Close].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
