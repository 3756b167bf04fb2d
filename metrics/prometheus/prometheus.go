// Package prometheus 基于 Prometheus 的指标采集实现
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weisyn/ledger-flow-go/metrics"
)

// Collector 实现 metrics.Collector
type Collector struct {
	submits       *prometheus.CounterVec
	submitLatency *prometheus.HistogramVec
	receipts      *prometheus.CounterVec
	receiptWait   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	circuitState  *prometheus.GaugeVec
	circuitOpens  *prometheus.CounterVec
}

var _ metrics.Collector = (*Collector)(nil)

// NewCollector 创建采集器
func NewCollector(namespace string) *Collector {
	return &Collector{
		submits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submits_total",
				Help:      "Total number of transaction submissions per kind and result",
			},
			[]string{"kind", "result"},
		),
		submitLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "submit_duration_seconds",
				Help:      "Transaction submission latency including retries",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"kind"},
		),
		receipts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "receipts_total",
				Help:      "Total number of resolved receipts per kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		receiptWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "receipt_wait_seconds",
				Help:      "Time spent waiting for a receipt",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"kind"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retried network operations",
			},
			[]string{"operation"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
	}
}

// Register 注册到指定 Registerer
func (c *Collector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.submits,
		c.submitLatency,
		c.receipts,
		c.receiptWait,
		c.retries,
		c.circuitState,
		c.circuitOpens,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// RecordSubmit 记录提交
func (c *Collector) RecordSubmit(kind string, ok bool, duration time.Duration) {
	result := "accepted"
	if !ok {
		result = "rejected"
	}
	c.submits.WithLabelValues(kind, result).Inc()
	c.submitLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordReceipt 记录收据
func (c *Collector) RecordReceipt(kind string, outcome string, wait time.Duration) {
	c.receipts.WithLabelValues(kind, outcome).Inc()
	c.receiptWait.WithLabelValues(kind).Observe(wait.Seconds())
}

// RecordRetry 记录重试
func (c *Collector) RecordRetry(operation string) {
	c.retries.WithLabelValues(operation).Inc()
}

// RecordCircuitState 记录熔断状态
func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(name).Inc()
	}
}
