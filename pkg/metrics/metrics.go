// Package metrics collects gate and remediation counters for a node-exporter textfile.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dtnitsch/content-gate/models"
)

const namespace = "content_gate"

type Recorder struct {
	reg *prometheus.Registry

	evaluated   *prometheus.CounterVec
	publishable prometheus.Counter
	scores      prometheus.Histogram
	issues      *prometheus.CounterVec
	fixes       *prometheus.CounterVec
	queue       *prometheus.GaugeVec
}

// New builds a recorder on its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		evaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_evaluated_total",
			Help:      "Articles evaluated by the gate, by verdict.",
		}, []string{"gate"}),
		publishable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_publishable_total",
			Help:      "Articles that passed the gate with no content-policy blockers.",
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quality_score",
			Help:      "Distribution of quality scores.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Hard validation issues, by kind.",
		}, []string{"kind"}),
		fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remediations_total",
			Help:      "Remediation attempts, by resulting queue status.",
		}, []string{"status"}),
		queue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_items",
			Help:      "Remediation queue items, by status.",
		}, []string{"status"}),
	}
	r.reg.MustRegister(r.evaluated, r.publishable, r.scores, r.issues, r.fixes, r.queue)
	return r
}

// ObserveReport counts one evaluated article.
func (r *Recorder) ObserveReport(rep models.Report) {
	verdict := "fail"
	if rep.Gate.Pass {
		verdict = "pass"
	}
	r.evaluated.WithLabelValues(verdict).Inc()
	if rep.Gate.Publishable {
		r.publishable.Inc()
	}
	r.scores.Observe(float64(rep.Score.Value))
	for _, is := range rep.Validation.Issues {
		r.issues.WithLabelValues(string(is.Kind)).Inc()
	}
}

// ObserveRemediation counts the status an item ended a run attempt in.
func (r *Recorder) ObserveRemediation(status models.QueueStatus) {
	r.fixes.WithLabelValues(string(status)).Inc()
}

// SetQueue publishes the current queue counts.
func (r *Recorder) SetQueue(counts map[models.QueueStatus]int) {
	for status, n := range counts {
		r.queue.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes every metric in the text exposition format.
// The file is replaced atomically, as node-exporter expects.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
