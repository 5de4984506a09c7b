// Package metrics exposes Prometheus counters and histograms for the
// orchestrator's attempt/escalation/merge outcomes, grounded on the
// prometheus/client_golang usage exercised by the kubernaut integration
// suite (pack: jordigilh-kubernaut, gateway/metrics_emission and
// health_monitoring tests assert against a registered collector set
// the same way this package registers one). Scraped at /metrics by
// pkg/api and additionally snapshotted to live-metrics.json on a timer
// so a terminal dashboard can poll a plain file instead of speaking
// the Prometheus exposition format.
package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns every metric this module emits, registered against its
// own Registry so embedding this package in a test doesn't collide with
// the global default registry.
type Collector struct {
	Registry *prometheus.Registry

	AttemptsTotal    *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	MergesTotal      *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	ActiveTasks      prometheus.Gauge
}

// New registers and returns a Collector. Each process should construct
// exactly one.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		Registry: reg,
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "undercity",
			Name:      "attempts_total",
			Help:      "Total worker attempts, labeled by tier and outcome.",
		}, []string{"tier", "outcome"}),
		EscalationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "undercity",
			Name:      "escalations_total",
			Help:      "Total tier escalations, labeled by from/to tier.",
		}, []string{"from_tier", "to_tier"}),
		MergesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "undercity",
			Name:      "merges_total",
			Help:      "Total merge elevator outcomes, labeled by result.",
		}, []string{"result"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "undercity",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of a task from dispatch to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"outcome"}),
		ActiveTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "undercity",
			Name:      "active_tasks",
			Help:      "Number of tasks currently in flight.",
		}),
	}
}

// RecordAttempt increments the attempts counter for a tier/outcome pair.
func (c *Collector) RecordAttempt(tier, outcome string) {
	c.AttemptsTotal.WithLabelValues(tier, outcome).Inc()
}

// RecordEscalation increments the escalations counter.
func (c *Collector) RecordEscalation(fromTier, toTier string) {
	c.EscalationsTotal.WithLabelValues(fromTier, toTier).Inc()
}

// RecordMerge increments the merges counter for a result ("merged",
// "conflict", "retrying").
func (c *Collector) RecordMerge(result string) {
	c.MergesTotal.WithLabelValues(result).Inc()
}

// ObserveTaskDuration records a completed task's wall-clock duration.
func (c *Collector) ObserveTaskDuration(outcome string, d time.Duration) {
	c.TaskDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetActiveTasks sets the current in-flight task gauge.
func (c *Collector) SetActiveTasks(n int) {
	c.ActiveTasks.Set(float64(n))
}

// Snapshot is the shape written to live-metrics.json: a plain-JSON
// sibling of the Prometheus exposition for consumers that don't want to
// parse the text format (a terminal dashboard polling the state dir).
type Snapshot struct {
	Timestamp   time.Time          `json:"timestamp"`
	Attempts    map[string]float64 `json:"attempts"`
	Escalations map[string]float64 `json:"escalations"`
	Merges      map[string]float64 `json:"merges"`
	ActiveTasks float64            `json:"activeTasks"`
}

// WriteSnapshot gathers the current counter values and writes them to
// path atomically (temp file + rename), matching the rest of the
// module's persisted-state write discipline.
func (c *Collector) WriteSnapshot(path string) error {
	snap := Snapshot{
		Timestamp:   time.Now().UTC(),
		Attempts:    sumCounterVec(c.AttemptsTotal),
		Escalations: sumCounterVec(c.EscalationsTotal),
		Merges:      sumCounterVec(c.MergesTotal),
		ActiveTasks: readGauge(c.ActiveTasks),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func sumCounterVec(vec *prometheus.CounterVec) map[string]float64 {
	out := map[string]float64{}
	ch := make(chan prometheus.Metric, 64)
	go func() {
		vec.Collect(ch)
		close(ch)
	}()
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			continue
		}
		out[labelKey(pb.GetLabel())] = pb.GetCounter().GetValue()
	}
	return out
}

func readGauge(g prometheus.Gauge) float64 {
	var pb dto.Metric
	if err := g.Write(&pb); err != nil {
		return 0
	}
	return pb.GetGauge().GetValue()
}

func labelKey(labels []*dto.LabelPair) string {
	key := ""
	for _, lp := range labels {
		if key != "" {
			key += "/"
		}
		key += lp.GetValue()
	}
	return key
}
