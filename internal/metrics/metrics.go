package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the relay.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionDuration prometheus.Histogram
	SessionErrors   *prometheus.CounterVec

	// Audio forwarding metrics
	AudioChunksForwarded prometheus.Counter
	AudioBytesForwarded  prometheus.Counter

	// Transcript metrics
	TranscriptEvents  *prometheus.CounterVec
	MalformedMessages prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Current number of registered client sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_started_total",
			Help: "Total number of client sessions registered",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_session_duration_seconds",
			Help:    "Lifetime of client sessions",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_session_errors_total",
			Help: "Session-ending errors by kind",
		}, []string{"kind"}),
		AudioChunksForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_audio_chunks_forwarded_total",
			Help: "Audio chunks forwarded from clients to the provider",
		}),
		AudioBytesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_audio_bytes_forwarded_total",
			Help: "Audio bytes forwarded from clients to the provider",
		}),
		TranscriptEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_transcript_events_total",
			Help: "Transcript events delivered to clients by event name",
		}, []string{"event"}),
		MalformedMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_malformed_provider_messages_total",
			Help: "Provider messages skipped because they could not be decoded",
		}),
	}
}

// SessionOpened records a newly registered session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// SessionClosed records the end of a session that lasted d.
func (m *Metrics) SessionClosed(d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(d.Seconds())
}

// SessionError counts a session-ending error of the given kind.
func (m *Metrics) SessionError(kind string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(kind).Inc()
}

// AudioForwarded counts one forwarded chunk of n bytes.
func (m *Metrics) AudioForwarded(n int) {
	if m == nil {
		return
	}
	m.AudioChunksForwarded.Inc()
	m.AudioBytesForwarded.Add(float64(n))
}

// TranscriptEmitted counts one delivered transcript event.
func (m *Metrics) TranscriptEmitted(event string) {
	if m == nil {
		return
	}
	m.TranscriptEvents.WithLabelValues(event).Inc()
}

// MalformedMessage counts one skipped provider message.
func (m *Metrics) MalformedMessage() {
	if m == nil {
		return
	}
	m.MalformedMessages.Inc()
}
