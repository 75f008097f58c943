// Package metrics exports stage activity as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/telegram/sender"
)

// Collector implements scene.Observer on top of Prometheus collectors.
type Collector struct {
	transitions *prometheus.CounterVec
	dispatches  *prometheus.CounterVec
	duration    prometheus.Histogram
	sends       *prometheus.CounterVec
}

// New builds a Collector and registers it with reg. A nil reg uses the
// default Prometheus registerer.
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scene_transitions_total",
			Help:      "Scene transitions by kind and scene.",
		}, []string{"kind", "scene"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_dispatch_total",
			Help:      "Updates offered to the stage, by handled flag.",
		}, []string{"handled"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_dispatch_duration_seconds",
			Help:      "Time spent handling one update under the session lock.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_sends_total",
			Help:      "Outbound Bot API calls by endpoint and result.",
		}, []string{"endpoint", "result"}),
	}
	for _, col := range []prometheus.Collector{c.transitions, c.dispatches, c.duration, c.sends} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return c, nil
}

// Observe records ev.
func (c *Collector) Observe(_ context.Context, ev scene.Event) {
	if ev.Kind == scene.EventDispatch {
		handled := "false"
		if ev.Handled {
			handled = "true"
		}
		c.dispatches.WithLabelValues(handled).Inc()
		c.duration.Observe(ev.Duration.Seconds())
		return
	}
	c.transitions.WithLabelValues(string(ev.Kind), ev.Scene).Inc()
}

// ObserveSend records the outcome of one dispatcher job. It fits
// sender.Options.OnResult.
func (c *Collector) ObserveSend(res sender.Result) {
	result := "ok"
	if res.Err != nil {
		result = res.Kind
	}
	c.sends.WithLabelValues(res.Endpoint, result).Inc()
}
