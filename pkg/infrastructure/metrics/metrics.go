package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Commit outcomes
const (
	OutcomeCommitted       = "committed"
	OutcomeStale           = "stale"
	OutcomeAlreadyConsumed = "already_consumed"
	OutcomeRejected        = "rejected"
)

// Recorder holds the planning metrics on its own registry. A nil Recorder
// records nothing.
type Recorder struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runProblems  *prometheus.CounterVec
	commits      *prometheus.CounterVec
	batchValue   prometheus.Counter
	snapshotVers prometheus.Gauge
}

// NewRecorder registers the planning metrics on a fresh registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodplan",
			Name:      "runs_total",
			Help:      "Engine runs by kind and result.",
		}, []string{"kind", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "prodplan",
			Name:      "run_duration_seconds",
			Help:      "Engine run duration by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"kind"}),
		runProblems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodplan",
			Name:      "run_problems_total",
			Help:      "Non-fatal record problems reported by engine runs.",
		}, []string{"kind"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodplan",
			Name:      "commits_total",
			Help:      "Purchase batch commits by outcome.",
		}, []string{"outcome"}),
		batchValue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prodplan",
			Name:      "committed_batch_value_total",
			Help:      "Estimated value of committed purchase batches.",
		}),
		snapshotVers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "prodplan",
			Name:      "inventory_snapshot_version",
			Help:      "Last observed inventory snapshot version.",
		}),
	}
	r.registry.MustRegister(r.runs, r.runDuration, r.runProblems, r.commits, r.batchValue, r.snapshotVers)
	return r
}

// ObserveRun records one engine run
func (r *Recorder) ObserveRun(kind string, elapsed time.Duration, problems int, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.runs.WithLabelValues(kind, result).Inc()
	r.runDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if problems > 0 {
		r.runProblems.WithLabelValues(kind).Add(float64(problems))
	}
}

// ObserveCommit records a commit outcome and, on success, the committed
// value
func (r *Recorder) ObserveCommit(outcome string, value float64) {
	if r == nil {
		return
	}
	r.commits.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCommitted && value > 0 {
		r.batchValue.Add(value)
	}
}

// SetSnapshotVersion records the latest snapshot version
func (r *Recorder) SetSnapshotVersion(version int64) {
	if r == nil {
		return
	}
	r.snapshotVers.Set(float64(version))
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
