// Package ws provides a recognition stream backed by a WebSocket gateway
// that emits JSON recognition events. It implements [recognize.Recognizer].
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/polyvox/polyvox/pkg/recognize"
)

// Option is a functional option for configuring the Recognizer.
type Option func(*Recognizer)

// WithToken sets the bearer token sent on the dial request.
func WithToken(token string) Option {
	return func(r *Recognizer) {
		r.token = token
	}
}

// WithInterimResults controls whether the gateway sends interim events.
// Defaults to true.
func WithInterimResults(enabled bool) Option {
	return func(r *Recognizer) {
		r.interim = enabled
	}
}

// Recognizer implements [recognize.Recognizer] against a WebSocket gateway.
type Recognizer struct {
	endpoint string
	token    string
	interim  bool
}

// New creates a Recognizer for the given gateway endpoint (a ws:// or wss://
// URL).
func New(endpoint string, opts ...Option) (*Recognizer, error) {
	if endpoint == "" {
		return nil, errors.New("recognize ws: endpoint must not be empty")
	}
	r := &Recognizer{endpoint: endpoint, interim: true}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

var _ recognize.Recognizer = (*Recognizer)(nil)

// Open implements [recognize.Recognizer.Open].
func (r *Recognizer) Open(ctx context.Context, language string) (recognize.Stream, error) {
	wsURL, err := r.buildURL(language)
	if err != nil {
		return nil, fmt.Errorf("recognize ws: build URL: %w", err)
	}

	headers := http.Header{}
	if r.token != "" {
		headers.Set("Authorization", "Bearer "+r.token)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("recognize ws: dial: %w", err)
	}

	s := &stream{
		conn:   conn,
		events: make(chan recognize.Event, 64),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop(ctx)
	return s, nil
}

// Name implements [recognize.Recognizer.Name].
func (r *Recognizer) Name() string {
	return "ws"
}

func (r *Recognizer) buildURL(language string) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if language != "" {
		q.Set("language", language)
	}
	if r.interim {
		q.Set("interim_results", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// gatewayEvent is the JSON structure the gateway emits per result.
type gatewayEvent struct {
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	IsFinal   bool    `json:"is_final"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	SpeakerID string  `json:"speaker_id"`
}

// stream is a live gateway session. It implements [recognize.Stream].
type stream struct {
	conn   *websocket.Conn
	events chan recognize.Event

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// Events implements [recognize.Stream.Events].
func (s *stream) Events() <-chan recognize.Event { return s.events }

// Err implements [recognize.Stream.Err].
func (s *stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close implements [recognize.Stream.Close].
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
		s.wg.Wait()
	})
	return nil
}

// readLoop receives JSON messages from the gateway and dispatches them to
// the events channel.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Closed by us, not an error.
			default:
				s.setErr(fmt.Errorf("recognize ws: read: %w", err))
			}
			return
		}

		ev, ok := parseEvent(msg)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *stream) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// parseEvent parses a raw gateway message. Returns (zero, false) for message
// types that should be ignored (keepalives, metadata).
func parseEvent(data []byte) (recognize.Event, bool) {
	var ge gatewayEvent
	if err := json.Unmarshal(data, &ge); err != nil {
		return recognize.Event{}, false
	}
	if ge.Type != "result" {
		return recognize.Event{}, false
	}
	return recognize.Event{
		Text:      ge.Text,
		IsFinal:   ge.IsFinal,
		Start:     time.Duration(ge.Start * float64(time.Second)),
		End:       time.Duration(ge.End * float64(time.Second)),
		SpeakerID: ge.SpeakerID,
	}, true
}
