// Package supervisor owns the conversation transcript and at most one
// in-flight streaming session. It is the single consumer of session events:
// every delta and terminal notification is applied to the transcript on the
// pump goroutine, under the supervisor lock, and then forwarded to Updates.
package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bz888/modeler/internal/api/client"
	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/credentials"
	"github.com/bz888/modeler/internal/event"
	"github.com/bz888/modeler/internal/logger"
	"github.com/bz888/modeler/internal/session"
	"github.com/bz888/modeler/internal/storage"
	"github.com/bz888/modeler/internal/transcript"
	"github.com/bz888/modeler/internal/transport"
)

const defaultUpdateBuffer = 256

var (
	ErrSessionActive = errors.New("a response is still streaming")
	ErrClosed        = errors.New("supervisor closed")
)

type UpdateKind int

const (
	UpdateDelta UpdateKind = iota
	UpdateTerminal
	// UpdateReset means the whole transcript was replaced or cleared.
	UpdateReset
)

type Update struct {
	Kind    UpdateKind
	TurnID  string
	Text    string
	Outcome session.Outcome
	Err     error
}

type Options struct {
	Client      *client.Client
	Transport   transport.Transport
	Credentials credentials.Provider
	Store       storage.Store
	Bus         *event.Bus

	Model      string
	Precontext string

	// UpdateBuffer is the capacity of the Updates channel.
	UpdateBuffer int
}

type Supervisor struct {
	client    *client.Client
	transport transport.Transport
	creds     credentials.Provider
	store     storage.Store
	bus       *event.Bus
	log       *logger.Logger

	updates chan Update
	closing chan struct{}

	mu         sync.Mutex
	transcript *transcript.Transcript
	model      string
	precontext string
	active     *session.Session
	pumpDone   chan struct{}
	closed     bool
}

func New(opts Options) *Supervisor {
	buffer := opts.UpdateBuffer
	if buffer <= 0 {
		buffer = defaultUpdateBuffer
	}
	return &Supervisor{
		client:     opts.Client,
		transport:  opts.Transport,
		creds:      opts.Credentials,
		store:      opts.Store,
		bus:        opts.Bus,
		log:        logger.NewLogger("supervisor"),
		updates:    make(chan Update, buffer),
		closing:    make(chan struct{}),
		transcript: transcript.New(),
		model:      opts.Model,
		precontext: opts.Precontext,
	}
}

// Updates delivers applied deltas, terminal outcomes and resets in order.
// The pump blocks while the channel is full, so a reader must keep draining
// it until Close. The channel is never closed.
func (s *Supervisor) Updates() <-chan Update { return s.updates }

// Send appends text as a user turn and starts streaming the reply into a new
// pending assistant turn, whose id is returned. Input, endpoint and
// credential problems are reported before the transcript is touched.
func (s *Supervisor) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperr.Usage("message is empty")
	}
	if !utf8.ValidString(text) {
		return "", apperr.Serialization("message is not valid UTF-8", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	if s.active != nil {
		return "", ErrSessionActive
	}
	if strings.TrimSpace(s.model) == "" {
		return "", apperr.Configuration("no model selected", nil)
	}
	if s.client == nil || s.transport == nil {
		return "", apperr.Configuration("no endpoint configured", nil)
	}

	target, err := s.client.ChatURL(client.ChatRoute(s.precontext))
	if err != nil {
		return "", err
	}
	var cred credentials.Credential
	if s.creds != nil {
		if cred, err = s.creds.Credential(ctx); err != nil {
			return "", err
		}
	}

	user, err := s.transcript.AppendUser(text)
	if err != nil {
		return "", err
	}
	payload, err := client.BuildChatRequest(s.transcript, s.model, s.precontext, true)
	if err != nil {
		s.log.Error().Err(err).Str("turn", user.ID).Msg("failed to build chat request")
		return "", err
	}
	reply, err := s.transcript.BeginAssistant()
	if err != nil {
		return "", err
	}

	sess := session.New(session.Request{
		TurnID:     reply.ID,
		Target:     target,
		Payload:    payload,
		Credential: cred,
	}, s.transport, session.WithBus(s.bus))
	if err := sess.Start(ctx); err != nil {
		s.transcript.Seal(reply.ID)
		return "", err
	}

	done := make(chan struct{})
	s.active = sess
	s.pumpDone = done
	go s.pump(sess, done)

	s.log.Debug().Str("session", sess.ID()).Str("turn", reply.ID).Str("model", s.model).
		Str("precontext", s.precontext).Msg("message sent")
	return reply.ID, nil
}

func (s *Supervisor) pump(sess *session.Session, done chan struct{}) {
	defer close(done)

	for ev := range sess.Events() {
		switch ev := ev.(type) {
		case session.Delta:
			s.mu.Lock()
			applied := s.transcript.AppendContent(ev.TurnID, ev.Text)
			s.mu.Unlock()
			if !applied {
				s.log.Debug().Str("turn", ev.TurnID).Msg("discarded delta for missing turn")
				continue
			}
			s.emit(Update{Kind: UpdateDelta, TurnID: ev.TurnID, Text: ev.Text})

		case session.Terminal:
			s.mu.Lock()
			s.transcript.Seal(ev.TurnID)
			if s.active == sess {
				s.active = nil
			}
			s.mu.Unlock()
			s.emit(Update{Kind: UpdateTerminal, TurnID: ev.TurnID, Outcome: ev.Outcome, Err: ev.Err})
		}
	}
}

func (s *Supervisor) emit(u Update) {
	select {
	case s.updates <- u:
	case <-s.closing:
	}
}

// Cancel stops the in-flight session. It reports whether there was one.
func (s *Supervisor) Cancel() bool {
	s.mu.Lock()
	sess := s.active
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	sess.Cancel()
	return true
}

func (s *Supervisor) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Supervisor) Turns() []transcript.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Turns()
}

// Clear empties the transcript. A session still streaming keeps running but
// its deltas are discarded.
func (s *Supervisor) Clear() {
	s.mu.Lock()
	s.transcript.Clear()
	s.mu.Unlock()
	s.emit(Update{Kind: UpdateReset})
}

func (s *Supervisor) Exists(ctx context.Context, key string) bool {
	if s.store == nil {
		return false
	}
	return s.store.Exists(ctx, key)
}

// Save writes a snapshot of the current transcript under key.
func (s *Supervisor) Save(ctx context.Context, key string) error {
	if s.store == nil {
		return apperr.Configuration("no transcript store configured", nil)
	}

	s.mu.Lock()
	snapshot, err := transcript.FromTurns(s.transcript.Turns())
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.store.Save(ctx, key, snapshot); err != nil {
		return err
	}
	s.bus.Publish(event.Event{Type: event.TranscriptSaved, Key: key})
	return nil
}

// Load replaces the transcript with the one stored under key. It is rejected
// while a session is streaming, and leaves the transcript untouched on error.
func (s *Supervisor) Load(ctx context.Context, key string) error {
	if s.store == nil {
		return apperr.Configuration("no transcript store configured", nil)
	}
	if s.Busy() {
		return ErrSessionActive
	}

	loaded, err := s.store.Load(ctx, key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.transcript = loaded
	s.mu.Unlock()

	s.log.Info().Str("key", key).Int("turns", loaded.Len()).Msg("transcript loaded")
	s.bus.Publish(event.Event{Type: event.TranscriptLoaded, Key: key})
	s.emit(Update{Kind: UpdateReset})
	return nil
}

func (s *Supervisor) Models(ctx context.Context) ([]client.Model, error) {
	if s.client == nil {
		return nil, apperr.Configuration("no endpoint configured", nil)
	}
	var cred credentials.Credential
	if s.creds != nil {
		var err error
		if cred, err = s.creds.Credential(ctx); err != nil {
			return nil, err
		}
	}
	return s.client.ListModels(ctx, cred)
}

// SetModel takes effect from the next Send.
func (s *Supervisor) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// SetPrecontext selects a server-side precontext; an empty name switches to
// plain chat.
func (s *Supervisor) SetPrecontext(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.precontext = name
}

func (s *Supervisor) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Supervisor) Precontext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.precontext
}

// Wait blocks until the most recently started pump has applied its terminal
// event.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	done := s.pumpDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close cancels any in-flight session and waits for its pump to exit.
// Pending updates that nobody reads are dropped.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.closing)
	sess := s.active
	s.mu.Unlock()

	if sess != nil {
		sess.Cancel()
	}
	s.Wait()
}
