// Package metrics 定义客户端与后端的 Prometheus 指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so that tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	DialogueRequests  *prometheus.CounterVec
	DialogueRetries   prometheus.Counter
	DialogueFallbacks prometheus.Counter
	DialogueLatency   prometheus.Histogram

	ChatRequests  *prometheus.CounterVec
	ActiveSession prometheus.Gauge

	SpeechQueueLength prometheus.Gauge
	MotionEvents      *prometheus.CounterVec
	EmotionEvents     *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DialogueRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digital_human_dialogue_requests_total",
			Help: "Dialogue requests by outcome status code",
		}, []string{"status"}),
		DialogueRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "digital_human_dialogue_retries_total",
			Help: "Dialogue request retries",
		}),
		DialogueFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "digital_human_dialogue_fallbacks_total",
			Help: "Dialogue turns answered by the local fallback reply",
		}),
		DialogueLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "digital_human_dialogue_latency_seconds",
			Help:    "End-to-end dialogue request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digital_human_chat_requests_total",
			Help: "Backend chat requests by reply source",
		}, []string{"source"}),
		ActiveSession: factory.NewGauge(prometheus.GaugeOpts{
			Name: "digital_human_chat_sessions",
			Help: "Backend sessions currently holding history",
		}),
		SpeechQueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "digital_human_speech_queue_length",
			Help: "Pending utterances in the speech output queue",
		}),
		MotionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digital_human_vision_motion_events_total",
			Help: "Motion events emitted by the vision pipeline",
		}, []string{"motion"}),
		EmotionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digital_human_vision_emotion_events_total",
			Help: "Emotion events emitted by the vision pipeline",
		}, []string{"emotion"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDialogue implements the dialogue client's recorder.
func (m *Metrics) ObserveDialogue(status int, retries int, fallback bool, elapsed time.Duration) {
	m.DialogueRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	m.DialogueRetries.Add(float64(retries))
	if fallback {
		m.DialogueFallbacks.Inc()
	}
	m.DialogueLatency.Observe(elapsed.Seconds())
}

// ObserveChat counts one backend reply by source ("llm" or "mock").
func (m *Metrics) ObserveChat(source string) {
	m.ChatRequests.WithLabelValues(source).Inc()
}

// SetSessions records the number of live backend sessions.
func (m *Metrics) SetSessions(n int) {
	m.ActiveSession.Set(float64(n))
}

// SetSpeechQueueLength records the speech queue depth.
func (m *Metrics) SetSpeechQueueLength(n int) {
	m.SpeechQueueLength.Set(float64(n))
}

// ObserveMotion counts one emitted motion.
func (m *Metrics) ObserveMotion(motion string) {
	m.MotionEvents.WithLabelValues(motion).Inc()
}

// ObserveEmotion counts one emitted emotion.
func (m *Metrics) ObserveEmotion(emotion string) {
	m.EmotionEvents.WithLabelValues(emotion).Inc()
}
