// Package prometheus exposes knnlm operational metrics through client_golang.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements knnlm.MetricsCollector.
type Collector struct {
	opLatency   *prometheus.HistogramVec
	operations  *prometheus.CounterVec
	queries     prometheus.Counter
	tokens      prometheus.Counter
	sweepPoints prometheus.Counter
	sweepMean   *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers it with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of datastore searches, scored batches and sweep points",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total operations by kind and status",
		}, []string{"op", "status"}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Total query rows searched against the datastore",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scored_tokens_total",
			Help:      "Total target positions scored",
		}),
		sweepPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_points_total",
			Help:      "Total persisted sweep temperatures",
		}),
		sweepMean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweep_mean_log_prob",
			Help:      "Mean kNN log-probability of the reference token per temperature",
		}, []string{"temperature"}),
	}

	for _, m := range []prometheus.Collector{c.opLatency, c.operations, c.queries, c.tokens, c.sweepPoints, c.sweepMean} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordSearch implements knnlm.MetricsCollector.
func (c *Collector) RecordSearch(queries, _ int, d time.Duration, err error) {
	s := status(err)
	c.opLatency.WithLabelValues("search", s).Observe(d.Seconds())
	c.operations.WithLabelValues("search", s).Inc()
	if err == nil {
		c.queries.Add(float64(queries))
	}
}

// RecordScore implements knnlm.MetricsCollector.
func (c *Collector) RecordScore(_, tokens int, d time.Duration, err error) {
	s := status(err)
	c.opLatency.WithLabelValues("score", s).Observe(d.Seconds())
	c.operations.WithLabelValues("score", s).Inc()
	if err == nil {
		c.tokens.Add(float64(tokens))
	}
}

// RecordSweepPoint implements knnlm.MetricsCollector.
func (c *Collector) RecordSweepPoint(temperature float64, _ int, meanLogProb float64, d time.Duration) {
	c.opLatency.WithLabelValues("sweep_point", "success").Observe(d.Seconds())
	c.operations.WithLabelValues("sweep_point", "success").Inc()
	c.sweepPoints.Inc()
	c.sweepMean.WithLabelValues(strconv.FormatFloat(temperature, 'g', -1, 64)).Set(meanLogProb)
}
