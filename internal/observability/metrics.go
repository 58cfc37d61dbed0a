package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Turn metrics
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voyxa_turns_total",
		Help: "Total number of call turns by outcome",
	}, []string{"outcome"}) // prompt, reply, farewell, failure

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voyxa_turn_duration_seconds",
		Help:    "Time to produce a call-control document",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	// Dialogue metrics
	dialogueRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voyxa_dialogue_requests_total",
		Help: "Total number of dialogue generation requests",
	}, []string{"status"})

	dialogueLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voyxa_dialogue_latency_seconds",
		Help:    "Dialogue generation latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voyxa_tts_requests_total",
		Help: "Total number of TTS requests",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voyxa_tts_latency_seconds",
		Help:    "TTS processing latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voyxa_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voyxa_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voyxa_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio storage metrics
	audioFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voyxa_audio_files",
		Help: "Number of generated audio files on disk",
	})

	audioServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voyxa_audio_served_total",
		Help: "Audio file requests by result",
	}, []string{"status"}) // ok, not_found, rejected

	audioBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voyxa_audio_bytes_written_total",
		Help: "Total bytes of generated audio written to disk",
	})
)

// Metrics tracks metrics for a single call turn
type Metrics struct {
	startTime         time.Time
	dialogueStartTime time.Time
	ttsStartTime      time.Time
	mu                sync.Mutex
}

// NewTurnMetrics creates a new metrics tracker for a turn
func NewTurnMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordTurnEnd records the outcome and duration of the turn
func (m *Metrics) RecordTurnEnd(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordDialogueStart records the start of dialogue generation
func (m *Metrics) RecordDialogueStart() {
	m.mu.Lock()
	m.dialogueStartTime = time.Now()
	m.mu.Unlock()
}

// RecordDialogueEnd records the end of dialogue generation
func (m *Metrics) RecordDialogueEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dialogueStartTime.IsZero() {
		dialogueLatency.Observe(time.Since(m.dialogueStartTime).Seconds())
	}
	dialogueRequests.WithLabelValues(statusLabel(success)).Inc()
}

// RecordTTSStart records the start of TTS processing
func (m *Metrics) RecordTTSStart() {
	m.mu.Lock()
	m.ttsStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTTSEnd records the end of TTS processing
func (m *Metrics) RecordTTSEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ttsStartTime.IsZero() {
		ttsLatency.Observe(time.Since(m.ttsStartTime).Seconds())
	}
	ttsRequests.WithLabelValues(statusLabel(success)).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordError records an error outside of a turn
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// SetAudioFiles sets the number of generated audio files on disk
func SetAudioFiles(n int) {
	audioFiles.Set(float64(n))
}

// RecordAudioWritten records bytes of a generated audio file
func RecordAudioWritten(bytes int64) {
	audioBytesWritten.Add(float64(bytes))
}

// RecordAudioServed records the result of an audio file request
func RecordAudioServed(status string) {
	audioServed.WithLabelValues(status).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
