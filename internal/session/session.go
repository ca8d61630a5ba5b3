// Package session runs one streamed chat exchange: it opens the transport,
// decodes each response line and emits the text as ordered Delta events,
// then exactly one Terminal event.
//
// A Session never touches a transcript. Its single consumer drains Events
// until the channel is closed and applies what it receives.
package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/bz888/modeler/internal/api/client"
	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/credentials"
	"github.com/bz888/modeler/internal/event"
	"github.com/bz888/modeler/internal/logger"
	"github.com/bz888/modeler/internal/transport"
	"github.com/google/uuid"
)

const defaultBuffer = 64

type Request struct {
	// TurnID is the pending assistant turn the deltas belong to.
	TurnID     string
	Target     string
	Payload    []byte
	Credential credentials.Credential
}

type Stats struct {
	Deltas  int
	Skipped int
	Dropped int
}

type Session struct {
	id        string
	req       Request
	transport transport.Transport
	bus       *event.Bus
	log       *logger.Logger
	buffer    int

	events chan Event
	done   chan struct{}

	mu              sync.Mutex
	state           State
	cancelRequested bool
	cancelCtx       context.CancelFunc
	stream          transport.Stream
	stats           Stats
}

type Option func(*Session)

func WithBus(bus *event.Bus) Option {
	return func(s *Session) { s.bus = bus }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithBuffer sets the capacity of the events channel.
func WithBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.buffer = n
		}
	}
}

func New(req Request, tr transport.Transport, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		req:       req,
		transport: tr,
		log:       logger.NewLogger("session"),
		buffer:    defaultBuffer,
		done:      make(chan struct{}),
		state:     StateCreated,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan Event, s.buffer)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) TurnID() string { return s.req.TurnID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Events is closed right after the Terminal event.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session is terminal and its connection released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start opens the connection on a new goroutine and returns immediately.
// Cancelling ctx has the same effect as Cancel.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelCtx = cancel
	s.state = StateActive
	s.mu.Unlock()

	s.log.Info().Str("session", s.id).Str("turn", s.req.TurnID).Str("target", s.req.Target).Msg("session started")
	s.bus.Publish(event.Event{Type: event.SessionStarted, SessionID: s.id, TurnID: s.req.TurnID})

	go s.run(ctx)
	return nil
}

// Cancel closes the transport so the in-flight read unblocks and the session
// ends Cancelled. It is a no-op on a terminal or already-cancelling session.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state.Terminal() || s.cancelRequested {
		s.mu.Unlock()
		return
	}
	s.cancelRequested = true

	if s.state == StateCreated {
		s.state = StateCancelled
		s.mu.Unlock()
		s.emitTerminal(OutcomeCancelled, ErrCancelled)
		return
	}

	stream := s.stream
	cancel := s.cancelCtx
	s.mu.Unlock()

	cancel()
	if stream != nil {
		stream.Close()
	}
}

func (s *Session) run(ctx context.Context) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/x-ndjson")
	if s.req.Credential.Key != "" {
		s.req.Credential.Apply(header)
	}

	stream, err := s.transport.Open(ctx, s.req.Target, header, s.req.Payload)
	if err != nil {
		s.finish(ctx, nil, err)
		return
	}

	s.mu.Lock()
	s.stream = stream
	cancelled := s.cancelRequested
	s.mu.Unlock()
	if cancelled {
		s.finish(ctx, stream, ErrCancelled)
		return
	}

	for {
		line, err := stream.Next()
		if errors.Is(err, transport.ErrLineTooLong) {
			s.dropFragment(nil, err)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			s.finish(ctx, stream, err)
			return
		}
		if ctx.Err() != nil {
			s.finish(ctx, stream, ctx.Err())
			return
		}

		text, ok, err := client.DecodeFragment(line)
		if apperr.IsTransport(err) {
			// The server gave up after the first bytes.
			s.finish(ctx, stream, err)
			return
		}
		if err != nil {
			s.dropFragment(line, err)
			continue
		}
		if !ok {
			s.mu.Lock()
			s.stats.Skipped++
			s.mu.Unlock()
			continue
		}

		select {
		case s.events <- Delta{SessionID: s.id, TurnID: s.req.TurnID, Text: text}:
			s.mu.Lock()
			s.stats.Deltas++
			s.mu.Unlock()
		case <-ctx.Done():
			s.finish(ctx, stream, ctx.Err())
			return
		}
	}
}

func (s *Session) dropFragment(line []byte, err error) {
	s.mu.Lock()
	s.stats.Dropped++
	s.mu.Unlock()

	preview := string(line)
	if len(preview) > 200 {
		preview = preview[:200]
	}
	s.log.Warn().Err(err).Str("session", s.id).Str("fragment", preview).Msg("dropped fragment")
	s.bus.Publish(event.Event{Type: event.FragmentDropped, SessionID: s.id, TurnID: s.req.TurnID, Detail: err.Error()})
}

func (s *Session) finish(ctx context.Context, stream transport.Stream, err error) {
	if stream != nil {
		stream.Close()
	}

	s.mu.Lock()
	var outcome Outcome
	switch {
	case s.cancelRequested, err != nil && ctx.Err() != nil:
		outcome, err = OutcomeCancelled, ErrCancelled
		s.state = StateCancelled
	case err == nil:
		outcome = OutcomeCompleted
		s.state = StateCompleted
	default:
		if apperr.KindOf(err) == "" {
			err = apperr.Transport("stream", err)
		}
		outcome = OutcomeFailed
		s.state = StateFailed
	}
	s.mu.Unlock()

	s.cancelCtx()
	s.emitTerminal(outcome, err)
}

func (s *Session) emitTerminal(outcome Outcome, err error) {
	s.events <- Terminal{SessionID: s.id, TurnID: s.req.TurnID, Outcome: outcome, Err: err}
	close(s.events)
	close(s.done)

	stats := s.Stats()
	ev := event.Event{SessionID: s.id, TurnID: s.req.TurnID}
	switch outcome {
	case OutcomeCompleted:
		ev.Type = event.SessionCompleted
		s.log.Info().Str("session", s.id).Int("deltas", stats.Deltas).Int("dropped", stats.Dropped).Msg("session completed")
	case OutcomeCancelled:
		ev.Type = event.SessionCancelled
		s.log.Info().Str("session", s.id).Int("deltas", stats.Deltas).Msg("session cancelled")
	default:
		ev.Type = event.SessionFailed
		ev.Detail = err.Error()
		s.log.Error().Err(err).Str("session", s.id).Int("deltas", stats.Deltas).Msg("session failed")
	}
	s.bus.Publish(ev)
}
