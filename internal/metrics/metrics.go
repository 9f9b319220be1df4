package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LeaseAcquired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settleflow_lease_acquired_total",
			Help: "Leases acquired, by key.",
		},
		[]string{"key"},
	)
	LeaseSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settleflow_lease_skipped_total",
			Help: "Lease ticks skipped because another holder was active.",
		},
		[]string{"key"},
	)
	SagaOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settleflow_saga_outcomes_total",
			Help: "Gateway dispatch outcomes, by operation kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	DeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settleflow_dead_lettered_total",
			Help: "Events forwarded to the dead-letter topic, by operation kind.",
		},
		[]string{"kind"},
	)
	OutboxPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settleflow_outbox_published_total",
			Help: "Events flushed from the outbox to the broker.",
		},
	)
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settleflow_operation_cache_hits_total",
			Help: "Operation reads served from the cache.",
		},
	)
	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settleflow_operation_cache_misses_total",
			Help: "Operation reads that fell through to storage.",
		},
	)
	BotStepErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settleflow_bot_step_errors_total",
			Help: "Trading steps that forced a bot into ERROR, by bot name.",
		},
		[]string{"bot"},
	)
	BotStepsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settleflow_bot_steps_skipped_total",
			Help: "Step ticks skipped because a step was already in flight.",
		},
		[]string{"bot"},
	)
)

func init() {
	prometheus.MustRegister(LeaseAcquired, LeaseSkipped)
	prometheus.MustRegister(SagaOutcomes, DeadLettered, OutboxPublished)
	prometheus.MustRegister(CacheHits, CacheMisses)
	prometheus.MustRegister(BotStepErrors, BotStepsSkipped)
}
