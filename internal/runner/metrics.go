// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package runner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics about runs.
type Metrics struct {
	runs          prometheus.Counter
	projects      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	recent        *prometheus.CounterVec
	duration      prometheus.Histogram
}

// NewMetrics creates Metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weblatebot_runs_total",
			Help: "Total number of poll runs.",
		}),
		projects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weblatebot_project_polls_total",
			Help: "Total number of processed projects by result (ok, failed or skipped).",
		}, []string{"project", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weblatebot_notifications_sent_total",
			Help: "Total number of delivered notifications.",
		}, []string{"project"}),
		recent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weblatebot_recent_changes_total",
			Help: "Total number of changes found inside the recency window.",
		}, []string{"project"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weblatebot_run_duration_seconds",
			Help:    "Duration of poll runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.runs, m.projects, m.notifications, m.recent, m.duration)
	return m
}

func (m *Metrics) observe(sum Summary) {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.duration.Observe(float64(sum.ExecutionTimeMS) / 1000)
	for _, res := range sum.Projects {
		m.projects.WithLabelValues(res.Project, result(res)).Inc()
		m.notifications.WithLabelValues(res.Project).Add(float64(res.ChangesSent))
		m.recent.WithLabelValues(res.Project).Add(float64(res.RecentCount))
	}
}

func result(res ProjectResult) string {
	switch {
	case res.Success:
		return "ok"
	case res.Error == ErrDeadlineExceeded.Error():
		return "skipped"
	default:
		return "failed"
	}
}
