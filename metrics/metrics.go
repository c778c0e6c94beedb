// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics defines the node's Prometheus instrumentation, in the
// shape of relayer/application_relayer_metrics.go and
// peers/app_request_network_metrics.go: one struct of *CounterVec/
// *GaugeVec fields, constructed once against a prometheus.Registerer
// and passed down to every component that emits a signal.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge the node reports (§2's added
// Metrics component).
type Metrics struct {
	emittedCount  *prometheus.CounterVec
	droppedCount  *prometheus.CounterVec
	retryCount    *prometheus.CounterVec
	featureCount  *prometheus.CounterVec
	dedupHitCount *prometheus.CounterVec
	peerCount     prometheus.Gauge
}

// New constructs and registers every metric against registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		emittedCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vladiator_emitted_frame_count",
				Help: "Number of outbound gossip frames published, by topic.",
			},
			[]string{"topic"},
		),
		droppedCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vladiator_dropped_request_count",
				Help: "Number of requests dropped without a signature, by reason.",
			},
			[]string{"chain_id", "reason"},
		),
		retryCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vladiator_retry_count",
				Help: "Number of retry-counter increments, by chain.",
			},
			[]string{"chain_id"},
		),
		featureCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vladiator_feature_outcome_count",
				Help: "Number of feature-stage outcomes, by feature and result.",
			},
			[]string{"feature", "outcome"},
		),
		dedupHitCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vladiator_dedup_hit_count",
				Help: "Number of frames (published or received) suppressed by the dedup window, by topic.",
			},
			[]string{"topic"},
		),
		peerCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vladiator_peer_count",
				Help: "Number of live gossip-mesh peer connections.",
			},
		),
	}

	registerer.MustRegister(
		m.emittedCount,
		m.droppedCount,
		m.retryCount,
		m.featureCount,
		m.dedupHitCount,
		m.peerCount,
	)
	return m
}

func (m *Metrics) ObserveEmitted(topic string) {
	m.emittedCount.WithLabelValues(topic).Inc()
}

func (m *Metrics) ObserveDropped(chainID, reason string) {
	m.droppedCount.WithLabelValues(chainID, reason).Inc()
}

func (m *Metrics) ObserveRetry(chainID string) {
	m.retryCount.WithLabelValues(chainID).Inc()
}

func (m *Metrics) ObserveFeature(feature, outcome string) {
	m.featureCount.WithLabelValues(feature, outcome).Inc()
}

func (m *Metrics) ObserveDedupHit(topic string) {
	m.dedupHitCount.WithLabelValues(topic).Inc()
}

func (m *Metrics) SetPeerCount(n int) {
	m.peerCount.Set(float64(n))
}
