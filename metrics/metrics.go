// Package metrics provides Prometheus observability metrics for the roster processor.
// It covers the assignment outcome of each run and the health of the input pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bpo-assigner/models"
)

// Registry is the custom prometheus registry for our application
var Registry = prometheus.NewRegistry()

// factory allows us to register metrics to our custom Registry directly
var factory = promauto.With(Registry)

// =============================================================================
// ASSIGNMENT METRICS - Workload Distribution Visibility
// =============================================================================

// RecordsAssigned tracks the final record count per agent for the last run.
var RecordsAssigned = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "assigner",
	Name:      "records_assigned",
	Help:      "Records owned by each agent at the end of the last run",
}, []string{"agent"})

// AgentQuota tracks the theoretical quota per agent for the last run.
var AgentQuota = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "assigner",
	Name:      "agent_quota",
	Help:      "Theoretical weighted quota of each agent in the last run",
}, []string{"agent"})

// SentinelRecords tracks records tagged with the sentinel category.
var SentinelRecords = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "assigner",
	Name:      "sentinel_records",
	Help:      "Records matched by the unreachable list in the last run",
})

// OverflowRecords tracks records assigned past every quota.
// Non-zero values are expected from rounding; large values mean forced
// overrides are eating the quotas.
var OverflowRecords = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "assigner",
	Name:      "overflow_records",
	Help:      "Records assigned by the overflow fallback in the last run",
})

// BalancerTransfers tracks records moved by the balancer.
var BalancerTransfers = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "assigner",
	Name:      "balancer_transfers",
	Help:      "Records moved between agents by the balancer in the last run",
})

// AssignmentsBySource counts assignments by the stage that decided them.
var AssignmentsBySource = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "assigner",
	Name:      "assignments_total",
	Help:      "Total assignments by deciding stage",
}, []string{"source"})

// RunsTotal counts pipeline runs by outcome.
var RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "assigner",
	Name:      "runs_total",
	Help:      "Total pipeline runs by status",
}, []string{"status"})

// RecordsProcessedTotal counts records that went through the pipeline.
var RecordsProcessedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "assigner",
	Name:      "records_processed_total",
	Help:      "Total records processed",
})

// PipelineDurationSeconds tracks time to run the assignment pipeline.
var PipelineDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "assigner",
	Name:      "duration_seconds",
	Help:      "Time taken to normalize, classify, allocate and balance a roster",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
})

// =============================================================================
// INPUT METRICS - Operational Health
// =============================================================================

// DataErrorsTotal tracks recoverable per-field problems by column.
var DataErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "parser",
	Name:      "data_errors_total",
	Help:      "Total recoverable data errors by column",
}, []string{"column"})

// ParserErrorsTotal tracks fatal input errors by error type.
var ParserErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "parser",
	Name:      "errors_total",
	Help:      "Total fatal input errors by error type",
}, []string{"error_type"})

// ParserRecordsTotal tracks total rows successfully read.
var ParserRecordsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "parser",
	Name:      "records_total",
	Help:      "Total input rows successfully read",
})

// ParserDurationSeconds tracks time to read input files.
var ParserDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "parser",
	Name:      "duration_seconds",
	Help:      "Time taken to read an input workbook or CSV",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
})

// =============================================================================
// Helper Functions
// =============================================================================

// ResetRunGauges resets all per-run gauges before a new run.
func ResetRunGauges() {
	RecordsAssigned.Reset()
	AgentQuota.Reset()
	SentinelRecords.Set(0)
	OverflowRecords.Set(0)
	BalancerTransfers.Set(0)
}

// ObserveResult publishes the outcome of a finished run.
func ObserveResult(res *models.Result) {
	ResetRunGauges()
	for agent, n := range res.Counts {
		RecordsAssigned.WithLabelValues(agent).Set(float64(n))
	}
	for agent, q := range res.Quotas {
		AgentQuota.WithLabelValues(agent).Set(float64(q))
	}
	for _, r := range res.Records {
		AssignmentsBySource.WithLabelValues(string(r.AssignedBy)).Inc()
	}
	SentinelRecords.Set(float64(res.SentinelCount))
	OverflowRecords.Set(float64(res.Overflow))
	BalancerTransfers.Set(float64(res.Transfers))
	RecordsProcessedTotal.Add(float64(len(res.Records)))
}
