package observability

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"ibco/core/events"
)

type eventMetrics struct {
	committed *prometheus.CounterVec
	transfers *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed engine events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			committed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ibco",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Count of committed engine events segmented by type.",
			}, []string{"type"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ibco",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of token transfers segmented by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(eventRegistry.committed, eventRegistry.transfers)
	})
	return eventRegistry
}

// RecordEvent counts a committed event.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.committed.WithLabelValues(eventType).Inc()
}

// RecordTransfer increments the transfer counter for the supplied asset ticker.
func (m *eventMetrics) RecordTransfer(asset string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(labelAsset(asset)).Inc()
}

// EventSink is the downstream emitter of the host: it receives events only
// after their operation committed, counts them and logs them at debug level.
type EventSink struct {
	log     *slog.Logger
	metrics *eventMetrics
}

// NewEventSink constructs a sink logging through l, or slog.Default when nil.
func NewEventSink(l *slog.Logger) *EventSink {
	if l == nil {
		l = slog.Default()
	}
	return &EventSink{log: l.With(slog.String("component", "events")), metrics: Events()}
}

// Emit implements events.Emitter.
func (s *EventSink) Emit(e events.Event) {
	if s == nil || e == nil {
		return
	}
	s.metrics.RecordEvent(e.EventType())
	if transfer, ok := e.(events.Transfer); ok {
		s.metrics.RecordTransfer(transfer.Asset)
	}
	s.log.Debug("event committed", slog.String("type", e.EventType()))
}
