// Package events publishes scene transitions to a watermill topic.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/scene"
)

const component = "scene.events"

// Publisher implements scene.Observer by publishing every transition as a
// JSON message. Dispatch events are skipped unless WithDispatch is set.
type Publisher struct {
	pub      message.Publisher
	topic    string
	dispatch bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithDispatch also publishes one message per dispatched update.
func WithDispatch() Option {
	return func(p *Publisher) { p.dispatch = true }
}

// NewPublisher wraps pub. Messages go to topic.
func NewPublisher(pub message.Publisher, topic string, opts ...Option) *Publisher {
	p := &Publisher{pub: pub, topic: topic}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// NewGoChannel returns an in-process pub/sub logging through slog.
func NewGoChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewSlogLogger(slog.Default().With("component", component)),
	)
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string { return p.topic }

// Observe publishes ev. Failures are logged and never reach the stage.
func (p *Publisher) Observe(ctx context.Context, ev scene.Event) {
	if ev.Kind == scene.EventDispatch && !p.dispatch {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		logger.Warn(ctx, component, "events.encode",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	msg := message.NewMessage(uuid.NewString(), body)
	msg.Metadata.Set("kind", string(ev.Kind))
	msg.Metadata.Set("session_id", ev.SessionID)
	msg.Metadata.Set("scene", ev.Scene)
	msg.Metadata.Set("step", strconv.Itoa(ev.Step))
	msg.SetContext(ctx)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		logger.Warn(ctx, component, "events.publish",
			slog.String("status", "fail"),
			slog.String("topic", p.topic),
			slog.String("kind", string(ev.Kind)),
			slog.String("err", err.Error()),
		)
	}
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}
