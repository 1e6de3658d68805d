// Package metrics registers the application's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors updated by the monitor daemon and job
// registry.
type Metrics struct {
	PollCycles    prometheus.Counter
	JobsScheduled prometheus.Counter
	JobStatus     *prometheus.GaugeVec
}

// New registers collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "lunarchive_poll_cycles_total",
			Help: "Completed feed poll cycles.",
		}),
		JobsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "lunarchive_jobs_scheduled_total",
			Help: "Download jobs created by the monitor.",
		}),
		JobStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lunarchive_jobs",
			Help: "Jobs currently tracked, by status.",
		}, []string{"status"}),
	}
}
