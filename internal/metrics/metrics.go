// Package metrics provides Prometheus instrumentation for the streaming
// transcription engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics holds every counter/gauge/histogram the stream scheduler and
// its WebRTC host report. Constructed once per process and shared across
// every peer session's Controller.
type StreamMetrics struct {
	chunksProcessedTotal *prometheus.CounterVec
	segmentsEmittedTotal prometheus.Counter
	sessionsStartedTotal prometheus.Counter
	sessionsAbortedTotal prometheus.Counter
	modelLoadErrors      *prometheus.CounterVec
	activeSessions       prometheus.Gauge
	workerBusy           *prometheus.GaugeVec
	chunkDuration        *prometheus.HistogramVec
}

// NewStreamMetrics registers every stream metric against registry and
// returns the collector. Pass a fresh *prometheus.Registry in tests to
// avoid collisions with the process-wide default registry.
func NewStreamMetrics(registry prometheus.Registerer) (*StreamMetrics, error) {
	m := &StreamMetrics{
		chunksProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whisperstream",
			Subsystem: "stream",
			Name:      "chunks_processed_total",
			Help:      "Chunks handed to the inference engine, by worker parity and outcome.",
		}, []string{"parity", "status"}),
		segmentsEmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whisperstream",
			Subsystem: "stream",
			Name:      "segments_emitted_total",
			Help:      "Transcript segments emitted to the host across all sessions.",
		}),
		sessionsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whisperstream",
			Subsystem: "stream",
			Name:      "sessions_started_total",
			Help:      "control.start commands accepted.",
		}),
		sessionsAbortedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whisperstream",
			Subsystem: "stream",
			Name:      "sessions_aborted_total",
			Help:      "Sessions that ended via control.stop rather than running to completion.",
		}),
		modelLoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whisperstream",
			Subsystem: "stream",
			Name:      "model_load_errors_total",
			Help:      "Failed model loads into a Controller slot, by slot.",
		}, []string{"slot"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "whisperstream",
			Subsystem: "stream",
			Name:      "active_sessions",
			Help:      "Sessions currently running (peer connections with a stream.Controller mid-run).",
		}),
		workerBusy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "whisperstream",
			Subsystem: "stream",
			Name:      "worker_busy",
			Help:      "1 while a worker's engine.Run call for its current chunk is in flight, else 0.",
		}, []string{"parity"}),
		chunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "whisperstream",
			Subsystem: "stream",
			Name:      "chunk_decode_seconds",
			Help:      "Wall-clock time spent inside the engine for one chunk, by worker parity.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"parity"}),
	}

	collectors := []prometheus.Collector{
		m.chunksProcessedTotal,
		m.segmentsEmittedTotal,
		m.sessionsStartedTotal,
		m.sessionsAbortedTotal,
		m.modelLoadErrors,
		m.activeSessions,
		m.workerBusy,
		m.chunkDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordChunkProcessed records the outcome of one worker's chunk decode.
func (m *StreamMetrics) RecordChunkProcessed(parity int, status string, seconds float64) {
	if m == nil {
		return
	}
	label := parityLabel(parity)
	m.chunksProcessedTotal.WithLabelValues(label, status).Inc()
	m.chunkDuration.WithLabelValues(label).Observe(seconds)
}

// RecordSegmentEmitted increments the emitted-segment counter.
func (m *StreamMetrics) RecordSegmentEmitted() {
	if m == nil {
		return
	}
	m.segmentsEmittedTotal.Inc()
}

// RecordSessionStarted marks a control.start as accepted and bumps the
// active-session gauge.
func (m *StreamMetrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStartedTotal.Inc()
	m.activeSessions.Inc()
}

// RecordSessionEnded decrements the active-session gauge and, if the session
// was stopped rather than run to completion, bumps the aborted counter.
func (m *StreamMetrics) RecordSessionEnded(aborted bool) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	if aborted {
		m.sessionsAbortedTotal.Inc()
	}
}

// RecordModelLoadError records a failed model load into slot slotIdx.
func (m *StreamMetrics) RecordModelLoadError(slotIdx int) {
	if m == nil {
		return
	}
	m.modelLoadErrors.WithLabelValues(slotLabel(slotIdx)).Inc()
}

// SetWorkerBusy reports whether the parity worker currently has an engine
// call in flight.
func (m *StreamMetrics) SetWorkerBusy(parity int, busy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if busy {
		v = 1.0
	}
	m.workerBusy.WithLabelValues(parityLabel(parity)).Set(v)
}

func parityLabel(parity int) string {
	if parity == 0 {
		return "0"
	}
	return "1"
}

func slotLabel(slotIdx int) string {
	return parityLabel(slotIdx)
}
