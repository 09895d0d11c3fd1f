// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Metrics records the outcome of Service operations.
type Metrics struct {
	OperationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers auth metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
	reg.MustRegister(m.OperationsTotal)
	return m
}

// record is safe to call on a nil receiver.
func (m *Metrics) record(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}
