package scene

import (
	"context"
	"time"
)

// EventKind classifies stage events.
type EventKind string

const (
	EventEnter    EventKind = "enter"
	EventLeave    EventKind = "leave"
	EventStep     EventKind = "step"
	EventExpire   EventKind = "expire"
	EventStale    EventKind = "stale"
	EventDispatch EventKind = "dispatch"
)

// Event describes a scene transition or a finished dispatch.
type Event struct {
	Kind      EventKind     `json:"kind"`
	SessionID string        `json:"session_id"`
	Scene     string        `json:"scene,omitempty"`
	From      string        `json:"from,omitempty"`
	Step      int           `json:"step,omitempty"`
	Handled   bool          `json:"handled,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	At        time.Time     `json:"at"`
}

// Observer receives stage events synchronously; implementations must be fast.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}
