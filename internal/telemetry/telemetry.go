package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are package-level and promauto-registered once, so every
// engine and test constructed in a process shares them without duplicate
// registration panics.
var (
	researchRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planscribe",
		Name:      "research_rounds_total",
		Help:      "Research rounds by depth and outcome.",
	}, []string{"depth", "outcome"})

	llmLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "planscribe",
		Name:      "llm_completion_seconds",
		Help:      "Wall time of LLM completions.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	parseRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "planscribe",
		Name:      "parse_repairs_total",
		Help:      "Model responses that parsed only after repair.",
	})

	parseFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "planscribe",
		Name:      "parse_fallbacks_total",
		Help:      "Model responses that could not be parsed at all.",
	})

	degradedBundles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planscribe",
		Name:      "degraded_evidence_bundles_total",
		Help:      "Evidence bundles missing a source kind.",
	}, []string{"mode"}) // rag_empty, web_empty, fallback

	conflictTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planscribe",
		Name:      "conflict_transitions_total",
		Help:      "Conflict lifecycle transitions by resulting status.",
	}, []string{"status"})

	mergeRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "planscribe",
		Name:      "merge_version_conflicts_total",
		Help:      "Plan merges rejected by the stale-write check.",
	})
)

func ResearchRound(depth, outcome string) { researchRounds.WithLabelValues(depth, outcome).Inc() }
func LLMCompletion(elapsed time.Duration) { llmLatency.Observe(elapsed.Seconds()) }
func ParseRepaired()                      { parseRepairs.Inc() }
func ParseFallback()                      { parseFallbacks.Inc() }
func DegradedBundle(mode string)          { degradedBundles.WithLabelValues(mode).Inc() }
func ConflictTransition(status string)    { conflictTransitions.WithLabelValues(status).Inc() }
func MergeRejected()                      { mergeRejections.Inc() }
