package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: записи в память по типу доверия писателя
	EpisodesWritten *prometheus.CounterVec // labels: signed ("true"/"false")
	RulesWritten    *prometheus.CounterVec // labels: source

	// Attack surface: сколько яда влито харнессом
	PoisonInjections *prometheus.CounterVec // labels: kind (episodic/semantic)

	// Defense: что отбросила защита перед планированием
	DiscardedEpisodes *prometheus.CounterVec // labels: reason (unsigned/bad_signature)
	RejectedRules     *prometheus.CounterVec // labels: reason

	// Planning: итоговые решения супервизора
	Exclusions *prometheus.CounterVec // labels: cause

	// Latency: длительность планирования+исполнения этапа
	StageDuration prometheus.Histogram

	// Audit: заполненность буфера decision trail (backpressure)
	AuditBufferFill prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EpisodesWritten: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memtrust_episodes_written_total",
			Help: "Total number of episodes appended to the store.",
		}, []string{"signed"}),

		RulesWritten: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memtrust_rules_written_total",
			Help: "Total number of semantic rules appended to the store.",
		}, []string{"source"}),

		PoisonInjections: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memtrust_poison_injections_total",
			Help: "Total number of adversarial writes performed by the attack harness.",
		}, []string{"kind"}),

		DiscardedEpisodes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memtrust_discarded_episodes_total",
			Help: "Episodes discarded by the defense layer before planning.",
		}, []string{"reason"}), // reason: unsigned, bad_signature

		RejectedRules: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memtrust_rejected_rules_total",
			Help: "Rules rejected by the semantic validator.",
		}, []string{"reason"}),

		Exclusions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memtrust_plan_exclusions_total",
			Help: "Sub-tasks dropped from stage plans.",
		}, []string{"cause"}),

		StageDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "memtrust_stage_duration_seconds",
			Help:    "Histogram of mission stage durations (planning + execution).",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "memtrust_audit_buffer_utilization",
			Help: "Current number of events in the decision trail buffer.",
		}),
	}
}
