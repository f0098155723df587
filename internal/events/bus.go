// Package events carries session notices from the exam loop to the
// terminal and browser renderers over an in-process watermill pub/sub.
//
// Every notice becomes an [Event] tagged with its session ID and a sequence
// number, JSON-encoded and published on [Topic]. Publishing blocks until
// each subscriber has acknowledged the message, which keeps delivery in
// publish order.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/SalahAli20/ADCAI/internal/exam"
)

// Topic is the watermill topic all session events are published on.
const Topic = "exam.events"

// subscriberBuffer is the channel depth between the pub/sub and each
// subscriber's consumer.
const subscriberBuffer = 64

// Event is one session notice on the wire.
type Event struct {
	Session string          `json:"session"`
	Seq     uint64          `json:"seq"`
	Kind    exam.NoticeKind `json:"kind"`
	Text    string          `json:"text"`
	Time    time.Time       `json:"time"`
}

// Bus is an in-process event bus. It is safe for concurrent use.
type Bus struct {
	pubsub *gochannel.GoChannel
	now    func() time.Time
}

// NewBus creates a Bus that logs watermill diagnostics through slog.
func NewBus() *Bus {
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            subscriberBuffer,
		BlockPublishUntilSubscriberAck: true,
	}, newLogger(slog.Default()))
	return &Bus{pubsub: ps, now: time.Now}
}

// Publish encodes ev and publishes it on [Topic].
func (b *Bus) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("session", ev.Session)
	msg.Metadata.Set("kind", string(ev.Kind))
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// Reporter returns an [exam.Reporter] that publishes a session's notices
// with increasing sequence numbers starting at 1.
func (b *Bus) Reporter(sessionID string) exam.Reporter {
	var seq atomic.Uint64
	return exam.ReporterFunc(func(n exam.Notice) {
		ev := Event{
			Session: sessionID,
			Seq:     seq.Add(1),
			Kind:    n.Kind,
			Text:    n.Text,
			Time:    b.now().UTC(),
		}
		if err := b.Publish(ev); err != nil {
			slog.Warn("events: dropping notice", "session_id", sessionID, "kind", n.Kind, "err", err)
		}
	})
}

// Subscribe streams decoded events until ctx is cancelled or the bus is
// closed. A non-empty sessionID filters the stream to that session. The
// returned channel is closed when the subscription ends.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (<-chan Event, error) {
	msgs, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("events: subscribe: %w", err)
	}
	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				slog.Warn("events: undecodable message", "uuid", msg.UUID, "err", err)
				msg.Ack()
				continue
			}
			msg.Ack()
			if sessionID != "" && ev.Session != sessionID {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				// Keep acking so publishers never block on an abandoned
				// subscription while gochannel tears it down.
				for m := range msgs {
					m.Ack()
				}
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the pub/sub down and ends every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
