package eph

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "eventhub"
	metricsSubsystem = "eph"

	labelResult = "result"
	labelReason = "reason"

	resultSuccess   = "success"
	resultFailure   = "failure"
	resultAbandoned = "abandoned"

	reasonUnowned = "unowned"
	reasonClosing = "closing"
)

type (
	metrics struct {
		checkpointWrites        *prometheus.CounterVec
		checkpointWriteDuration prometheus.Histogram
		completionsDropped      *prometheus.CounterVec
		completionsRejected     prometheus.Counter
		partitionsOwned         prometheus.Gauge
	}
)

func newMetrics() *metrics {
	return &metrics{
		checkpointWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "checkpoint_writes_total",
				Help:      "Total number of checkpoint flushes by outcome",
			},
			[]string{labelResult},
		),
		checkpointWriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "checkpoint_write_duration_seconds",
				Help:      "Duration of checkpoint flushes including retries",
				Buckets:   prometheus.DefBuckets,
			},
		),
		completionsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "completions_dropped_total",
				Help:      "Total number of completions ignored because the partition was not owned or was closing",
			},
			[]string{labelReason},
		),
		completionsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "completions_rejected_total",
				Help:      "Total number of completions rejected because their position regressed",
			},
		),
		partitionsOwned: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "partitions_owned",
				Help:      "Number of partitions currently holding a checkpoint lock",
			},
		),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.checkpointWrites,
		m.checkpointWriteDuration,
		m.completionsDropped,
		m.completionsRejected,
		m.partitionsOwned,
	}
}

// register adds the collectors to reg, or none of them when one fails. A nil registerer leaves the metrics
// unexported.
func (m *metrics) register(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	collectors := m.collectors()
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, registered := range collectors[:i] {
				reg.Unregister(registered)
			}
			return errors.Wrap(err, "failed to register event processor host metrics")
		}
	}
	return nil
}

func (m *metrics) unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}
