// Package metrics turns relay events into Prometheus metrics.
//
// Observer implements observability.Observer, so it is combined with the
// slog and span observers rather than called directly:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	observability.RegisterObserver(metrics.ObserverName, m)
//
// Metric operations are safe for concurrent use.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tailored-agentic-units/relay/exchange"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/poll"
	"github.com/tailored-agentic-units/relay/session"
)

// ObserverName is the name Observer is registered under.
const ObserverName = "metrics"

const namespace = "relay"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Observer records exchange, stream, poll and session events.
type Observer struct {
	// ExchangesTotal counts finished exchanges.
	// Labels: mode (sync, stream), status (success, error)
	ExchangesTotal *prometheus.CounterVec

	// ErrorsTotal counts failed exchanges by fault kind.
	// Labels: mode, kind
	ErrorsTotal *prometheus.CounterVec

	// ExchangeDurationSeconds measures successful exchanges end to end.
	// Labels: mode
	ExchangeDurationSeconds *prometheus.HistogramVec

	ChunksTotal      prometheus.Counter
	FrameErrorsTotal prometheus.Counter

	PollAttemptsTotal prometheus.Counter

	// PollFallbacksTotal counts replies that did not come from an answer.
	// Labels: outcome (verbose, greeting)
	PollFallbacksTotal *prometheus.CounterVec

	// SessionEventsTotal counts registry changes.
	// Labels: event (bind, evict, clear, missing, prune)
	SessionEventsTotal *prometheus.CounterVec

	// SessionsPruned counts records removed by the idle sweeper.
	SessionsPruned prometheus.Counter
}

// New creates an Observer and registers its collectors with reg.
func New(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)

	return &Observer{
		ExchangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Total exchanges by mode and status",
		}, []string{"mode", "status"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_errors_total",
			Help:      "Total failed exchanges by fault kind",
		}, []string{"mode", "kind"}),
		ExchangeDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Duration of successful exchanges in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"mode"}),
		ChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "chunks_total",
			Help:      "Total answer chunks forwarded to callers",
		}),
		FrameErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frame_errors_total",
			Help:      "Total stream frames that could not be interpreted",
		}),
		PollAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "attempts_total",
			Help:      "Total message listings issued while polling for answers",
		}),
		PollFallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "fallbacks_total",
			Help:      "Total synchronous replies recovered without an answer message",
		}, []string{"outcome"}),
		SessionEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Total session registry changes by event",
		}, []string{"event"}),
		SessionsPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "pruned_total",
			Help:      "Total idle sessions removed by the sweeper",
		}),
	}
}

// RegisterRegistryGauges exposes the registry's live session and
// conversation counts as gauges on reg.
func RegisterRegistryGauges(reg prometheus.Registerer, registry *session.Registry) {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently held by the registry",
	}, func() float64 { return float64(registry.Len()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "conversations",
		Help:      "Conversations currently bound to a session",
	}, func() float64 { return float64(registry.Conversations()) })
}

func (o *Observer) OnEvent(ctx context.Context, event observability.Event) {
	switch event.Type {
	case exchange.EventComplete:
		mode := label(event, "mode")
		o.ExchangesTotal.WithLabelValues(mode, statusSuccess).Inc()
		if ms, ok := event.Data["duration_ms"].(int64); ok {
			o.ExchangeDurationSeconds.WithLabelValues(mode).Observe(float64(ms) / 1000)
		}
	case exchange.EventError:
		mode := label(event, "mode")
		o.ExchangesTotal.WithLabelValues(mode, statusError).Inc()
		o.ErrorsTotal.WithLabelValues(mode, label(event, "kind")).Inc()
	case exchange.EventChunk:
		o.ChunksTotal.Inc()
	case exchange.EventFrameError:
		o.FrameErrorsTotal.Inc()
	case poll.EventAttempt:
		o.PollAttemptsTotal.Inc()
	case poll.EventFallback:
		o.PollFallbacksTotal.WithLabelValues(label(event, "outcome")).Inc()
	case exchange.EventSessionBind:
		o.SessionEventsTotal.WithLabelValues("bind").Inc()
	case exchange.EventSessionEvict:
		o.SessionEventsTotal.WithLabelValues("evict").Inc()
	case exchange.EventSessionClear:
		o.SessionEventsTotal.WithLabelValues("clear").Inc()
	case exchange.EventSessionMissing:
		o.SessionEventsTotal.WithLabelValues("missing").Inc()
	case session.EventPrune:
		o.SessionEventsTotal.WithLabelValues("prune").Inc()
		if n, ok := event.Data["removed"].(int); ok {
			o.SessionsPruned.Add(float64(n))
		}
	}
}

func label(event observability.Event, key string) string {
	if s := event.Text(key); s != "" {
		return s
	}
	return "unknown"
}
