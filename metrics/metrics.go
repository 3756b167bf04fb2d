// Package metrics 交易流水线指标接口
package metrics

import "time"

// Collector 指标采集接口，可对接 Prometheus 等后端
type Collector interface {
	// RecordSubmit 记录一次提交（kind 为交易类型，ok 表示网络已受理）
	RecordSubmit(kind string, ok bool, duration time.Duration)

	// RecordReceipt 记录收据结果（success / pending / failure）与等待时长
	RecordReceipt(kind string, outcome string, wait time.Duration)

	// RecordRetry 记录一次重试
	RecordRetry(operation string)

	// RecordCircuitState 记录熔断器状态变化
	RecordCircuitState(name string, state CircuitState)
}

// CircuitState 熔断器状态
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String 状态名
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector 空实现（未启用指标时的默认值）
type NoOpCollector struct{}

// RecordSubmit 空操作
func (NoOpCollector) RecordSubmit(kind string, ok bool, duration time.Duration) {}

// RecordReceipt 空操作
func (NoOpCollector) RecordReceipt(kind string, outcome string, wait time.Duration) {}

// RecordRetry 空操作
func (NoOpCollector) RecordRetry(operation string) {}

// RecordCircuitState 空操作
func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}

// OrNoOp 非空时返回 c，否则返回 NoOpCollector
func OrNoOp(c Collector) Collector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}
