// Package event carries observability events (session lifecycle, dropped
// fragments, persistence) over a watermill in-process pub/sub. It is not on the
// delta path: deltas travel on the session's own ordered channel.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bz888/modeler/internal/logger"
)

type EventType string

const (
	SessionStarted   EventType = "session.started"
	SessionCompleted EventType = "session.completed"
	SessionFailed    EventType = "session.failed"
	SessionCancelled EventType = "session.cancelled"
	FragmentDropped  EventType = "fragment.dropped"
	TranscriptSaved  EventType = "transcript.saved"
	TranscriptLoaded EventType = "transcript.loaded"
)

// AllTypes lists every event type, in the order above.
var AllTypes = []EventType{
	SessionStarted,
	SessionCompleted,
	SessionFailed,
	SessionCancelled,
	FragmentDropped,
	TranscriptSaved,
	TranscriptLoaded,
}

type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	TurnID    string    `json:"turn_id,omitempty"`
	Key       string    `json:"key,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Time      time.Time `json:"time"`
}

type Bus struct {
	pubsub *gochannel.GoChannel
	log    *logger.Logger

	mu     sync.RWMutex
	closed bool
}

func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		log: logger.NewLogger("event"),
	}
}

// Publish is fire-and-forget: events with no subscriber are dropped and a
// publish failure is logged, never returned.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Str("type", string(ev.Type)).Msg("encode event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(string(ev.Type), msg); err != nil {
		b.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("publish event")
	}
}

// Subscribe merges the requested event types (all of them when none are given)
// into one channel. The channel closes when ctx is done or the bus is closed.
// Each type travels on its own topic, so events of different types may arrive
// out of publish order.
func (b *Bus) Subscribe(ctx context.Context, types ...EventType) (<-chan Event, error) {
	if len(types) == 0 {
		types = AllTypes
	}

	out := make(chan Event, 100)
	var wg sync.WaitGroup
	for _, typ := range types {
		messages, err := b.pubsub.Subscribe(ctx, string(typ))
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range messages {
				var ev Event
				if err := json.Unmarshal(msg.Payload, &ev); err != nil {
					b.log.Warn().Err(err).Msg("decode event")
					msg.Ack()
					continue
				}
				select {
				case out <- ev:
					msg.Ack()
				case <-ctx.Done():
					msg.Nack()
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
