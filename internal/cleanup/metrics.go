// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package cleanup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep names used as metric labels and log attributes.
const (
	SweepNameExpired = "expired"
	SweepNameStale   = "stale"
)

// Metrics holds the Prometheus collectors for token cleanup.
type Metrics struct {
	DeletedTotal  *prometheus.CounterVec
	SweepDuration *prometheus.HistogramVec
}

// NewMetrics creates cleanup metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cleanup_deleted_tokens_total",
			Help: "Total number of tokens deleted by cleanup sweeps",
		}, []string{"sweep"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_cleanup_sweep_duration_seconds",
			Help:    "Duration of cleanup sweeps",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep", "outcome"}),
	}
	reg.MustRegister(m.DeletedTotal, m.SweepDuration)
	return m
}

func (m *Metrics) observe(sweep string, deleted int64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.SweepDuration.WithLabelValues(sweep, outcome).Observe(elapsed.Seconds())
	if deleted > 0 {
		m.DeletedTotal.WithLabelValues(sweep).Add(float64(deleted))
	}
}
