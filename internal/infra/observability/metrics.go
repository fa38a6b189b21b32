package observability

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

const (
	metricOperationDuration = "treeshop_operation_duration_seconds"
	metricStageTransitions  = "treeshop_stage_transitions_total"
	metricProposalOutcomes  = "treeshop_proposal_outcomes_total"
	metricCalculationErrors = "treeshop_calculation_errors_total"
	metricVersionConflicts  = "treeshop_version_conflicts_total"
	metricExternalErrors    = "treeshop_external_errors_total"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	stageTransitions  *prometheus.CounterVec
	proposalOutcomes  *prometheus.CounterVec
	calculationErrors *prometheus.CounterVec
	versionConflicts  *prometheus.CounterVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricOperationDuration,
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		stageTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricStageTransitions,
				Help: "Lead workflow stage transitions.",
			},
			[]string{"from", "to"},
		),
		proposalOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricProposalOutcomes,
				Help: "Proposals reaching a status (sent, accepted, declined, expired).",
			},
			[]string{"status"},
		),
		calculationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricCalculationErrors,
				Help: "Rejected inputs to the pricing engines.",
			},
			[]string{"engine"},
		),
		versionConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricVersionConflicts,
				Help: "Optimistic concurrency conflicts on update.",
			},
			[]string{"resource"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricExternalErrors,
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treeshop_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treeshop_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStageTransition counts a lead moving between workflow stages.
func (m *Metrics) IncrStageTransition(from, to domain.WorkflowStage) {
	m.stageTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) IncrProposalOutcome(status domain.ProposalStatus) {
	m.proposalOutcomes.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) IncrCalculationError(engine string) {
	m.calculationErrors.WithLabelValues(engine).Inc()
}

func (m *Metrics) IncrVersionConflict(resource string) {
	m.versionConflicts.WithLabelValues(resource).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// Snapshot reads the registry for the GET /v1/metrics/ops endpoint.
// Counters are cumulative since process start.
func (m *Metrics) Snapshot(cache string, now time.Time) *domain.OpsMetrics {
	out := &domain.OpsMetrics{
		StageTransitions:  map[string]float64{},
		ProposalOutcomes:  map[string]float64{},
		CalculationErrors: map[string]float64{},
		VersionConflicts:  map[string]float64{},
		ExternalErrors:    map[string]float64{},
		CollectedAt:       now.UTC().Format(time.RFC3339),
	}

	families, err := m.Registry.Gather()
	if err != nil {
		return out
	}
	var durationSum float64
	for _, mf := range families {
		switch mf.GetName() {
		case metricStageTransitions:
			collectCounters(mf, out.StageTransitions)
		case metricProposalOutcomes:
			collectCounters(mf, out.ProposalOutcomes)
		case metricCalculationErrors:
			collectCounters(mf, out.CalculationErrors)
		case metricVersionConflicts:
			collectCounters(mf, out.VersionConflicts)
		case metricExternalErrors:
			collectCounters(mf, out.ExternalErrors)
		case metricOperationDuration:
			for _, metric := range mf.GetMetric() {
				h := metric.GetHistogram()
				out.OperationCount += h.GetSampleCount()
				durationSum += h.GetSampleSum()
			}
		}
	}
	if out.OperationCount > 0 {
		out.AvgOperationMs = durationSum / float64(out.OperationCount) * 1000
	}

	hits := getCounterValue(m.cacheHits, cache)
	misses := getCounterValue(m.cacheMisses, cache)
	if hits+misses > 0 {
		out.CacheHitRate = hits / (hits + misses)
	}
	return out
}

// collectCounters keys each series by its label values joined with "->".
func collectCounters(mf *dto.MetricFamily, into map[string]float64) {
	for _, metric := range mf.GetMetric() {
		values := make([]string, 0, len(metric.GetLabel()))
		for _, lp := range metric.GetLabel() {
			values = append(values, lp.GetValue())
		}
		into[strings.Join(values, "->")] += metric.GetCounter().GetValue()
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
