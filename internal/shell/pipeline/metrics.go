package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/artpar/cutover/internal/core/domain"
)

var stageBuckets = []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200}

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs           *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	lockContention prometheus.Counter
	advisories     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// that are already registered are reused. Every stage's duration series is
// exported from the start, before any job has run.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutover",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished deployment jobs by terminal status",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cutover",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   stageBuckets,
		}, []string{"stage"}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cutover",
			Subsystem: "pipeline",
			Name:      "lock_contention_total",
			Help:      "Job requests rejected because another job was running",
		}),
		advisories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutover",
			Subsystem: "cutover",
			Name:      "advisories_total",
			Help:      "Best-effort steps that failed without failing the job",
		}, []string{"step"}),
	}

	if reg != nil {
		m.runs = register(reg, m.runs)
		m.stageDuration = register(reg, m.stageDuration)
		m.lockContention = register(reg, m.lockContention)
		m.advisories = register(reg, m.advisories)
	}

	for _, stage := range domain.StageOrder() {
		m.stageDuration.WithLabelValues(string(stage))
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observeRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) observeContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *Metrics) observeAdvisory(step string) {
	if m == nil {
		return
	}
	m.advisories.WithLabelValues(step).Inc()
}
