package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

type engineCollectors struct {
	answersTotal      *prometheus.CounterVec
	fallbackTotal     *prometheus.CounterVec
	insufficientTotal *prometheus.CounterVec
	retrievedChunks   *prometheus.HistogramVec
	answerDuration    *prometheus.HistogramVec

	buildsTotal   *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	corpusChunks  prometheus.Gauge

	corpusEventsTotal *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
}

func newEngineCollectors() engineCollectors {
	return engineCollectors{
		answersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "qa",
				Name:      "answers_total",
				Help:      "Total answered questions by final answer mode.",
			},
			[]string{"mode"},
		),
		fallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "qa",
				Name:      "synthesis_fallback_total",
				Help:      "Synthesis requests answered by extraction instead.",
			},
			[]string{"mode"},
		),
		insufficientTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "qa",
				Name:      "insufficient_total",
				Help:      "Questions answered with the insufficient-information result.",
			},
			[]string{"mode"},
		),
		retrievedChunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "qa",
				Name:      "retrieved_chunks",
				Help:      "Distribution of retrieved chunks per answer.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"mode"},
		),
		answerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "qa",
				Name:      "answer_duration_seconds",
				Help:      "Question answering duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "builds_total",
				Help:      "Corpus builds by status.",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "build_duration_seconds",
				Help:      "Corpus build duration in seconds by status.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		corpusChunks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "chunks",
				Help:      "Chunks in the published snapshot.",
			},
		),
		corpusEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "events_total",
				Help:      "Corpus change events handled by outcome.",
			},
			[]string{"origin", "status"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_open",
				Help:      "1 while the circuit breaker for an operation is open or half-open.",
			},
			[]string{"operation"},
		),
	}
}

func (c engineCollectors) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.answersTotal,
		c.fallbackTotal,
		c.insufficientTotal,
		c.retrievedChunks,
		c.answerDuration,
		c.buildsTotal,
		c.buildDuration,
		c.corpusChunks,
		c.corpusEventsTotal,
		c.breakerState,
	}
}

func (m *Metrics) RecordAnswer(mode domain.AnswerMode, fallback bool, insufficient bool, retrieved int, duration time.Duration) {
	label := string(mode)
	if label == "" {
		label = "unknown"
	}
	m.engine.answersTotal.WithLabelValues(label).Inc()
	m.engine.retrievedChunks.WithLabelValues(label).Observe(float64(retrieved))
	m.engine.answerDuration.WithLabelValues(label).Observe(duration.Seconds())
	if fallback {
		m.engine.fallbackTotal.WithLabelValues(label).Inc()
	}
	if insufficient {
		m.engine.insufficientTotal.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) RecordCorpusBuild(status string, chunks int, fromSnapshot bool, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.engine.buildsTotal.WithLabelValues(status).Inc()
	m.engine.buildDuration.WithLabelValues(status).Observe(duration.Seconds())
	if status != "failed" {
		m.engine.corpusChunks.Set(float64(chunks))
	}
}

// RecordCorpusEvent counts rebuild triggers from the queue or the watcher.
func (m *Metrics) RecordCorpusEvent(origin string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.engine.corpusEventsTotal.WithLabelValues(origin, status).Inc()
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *Metrics) ObserveBreakerState(operation, _, to string) {
	value := 0.0
	if to != "closed" {
		value = 1
	}
	m.engine.breakerState.WithLabelValues(operation).Set(value)
}
