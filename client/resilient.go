package client

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/metrics"
	"github.com/weisyn/ledger-flow-go/types"
)

// ResilientConfig 熔断与超时配置
type ResilientConfig struct {
	// Name 熔断器名称（用于日志与指标）
	Name string

	// Timeout 单次调用超时，0 表示不限制
	Timeout time.Duration

	// MaxRequests 半开状态允许通过的请求数
	MaxRequests uint32

	// Interval 闭合状态下清零计数的周期，0 表示不清零
	Interval time.Duration

	// OpenTimeout 打开状态持续多久后转为半开
	OpenTimeout time.Duration

	// ConsecutiveFailures 连续失败多少次后打开
	ConsecutiveFailures uint32
}

// DefaultResilientConfig 默认配置
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Name:                "ledger",
		Timeout:             10 * time.Second,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// ResilientNetwork 为 Network 增加熔断、超时与指标
//
// 只有网络类错误计入失败；预检拒绝等业务错误说明节点工作正常，不会触发熔断。
type ResilientNetwork struct {
	next    Network
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
}

var _ Network = (*ResilientNetwork)(nil)

// NewResilientNetwork 包装 Network
func NewResilientNetwork(next Network, config ResilientConfig, collector metrics.Collector, logger *logging.Logger) *ResilientNetwork {
	if config.Name == "" {
		config.Name = "ledger"
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 5
	}

	rn := &ResilientNetwork{
		next:    next,
		timeout: config.Timeout,
		metrics: metrics.OrNoOp(collector),
		logger:  logging.OrGlobal(logger).Named("resilience").Named(config.Name),
	}

	rn.logger.Debug("resilient network initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.MaxRequests),
		zap.Duration("circuit_interval", config.Interval),
		zap.Duration("circuit_timeout", config.OpenTimeout),
	)

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, types.ErrNetwork)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			rn.logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			rn.metrics.RecordCircuitState(name, state)
		},
	}
	rn.cb = gobreaker.NewCircuitBreaker(settings)

	return rn
}

// State 当前熔断状态
func (rn *ResilientNetwork) State() gobreaker.State {
	return rn.cb.State()
}

func (rn *ResilientNetwork) execute(ctx context.Context, operation string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if rn.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rn.timeout)
		defer cancel()
	}

	result, err := rn.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == nil {
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		rn.logger.Warn("circuit breaker open - request rejected", zap.String("operation", operation))
		return nil, &Error{Code: ErrCodeCircuitOpen, Message: "circuit breaker open", Err: err}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rn.logger.Warn("operation timeout",
			zap.String("operation", operation),
			zap.Duration("timeout", rn.timeout),
		)
		return nil, &Error{Code: ErrCodeTimeout, Message: "request timeout", Err: err}
	}
	return nil, err
}

// SubmitTransaction 提交交易
func (rn *ResilientNetwork) SubmitTransaction(ctx context.Context, signedTx []byte) (*SubmitAck, error) {
	result, err := rn.execute(ctx, "submit", func(ctx context.Context) (interface{}, error) {
		return rn.next.SubmitTransaction(ctx, signedTx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SubmitAck), nil
}

// GetReceipt 查询收据
func (rn *ResilientNetwork) GetReceipt(ctx context.Context, txID string) (*types.Receipt, error) {
	result, err := rn.execute(ctx, "receipt", func(ctx context.Context) (interface{}, error) {
		return rn.next.GetReceipt(ctx, txID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.Receipt), nil
}

// GetAccountBalance 查询余额
func (rn *ResilientNetwork) GetAccountBalance(ctx context.Context, accountID types.AccountID) (*types.AccountBalance, error) {
	result, err := rn.execute(ctx, "balance", func(ctx context.Context) (interface{}, error) {
		return rn.next.GetAccountBalance(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.AccountBalance), nil
}

// GetScheduleInfo 查询计划交易
func (rn *ResilientNetwork) GetScheduleInfo(ctx context.Context, scheduleID types.ScheduleID) (*types.ScheduleInfo, error) {
	result, err := rn.execute(ctx, "schedule_info", func(ctx context.Context) (interface{}, error) {
		return rn.next.GetScheduleInfo(ctx, scheduleID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.ScheduleInfo), nil
}

// SubscribeTopic 订阅主题（订阅建立受熔断保护，后续推送不经过熔断器）
func (rn *ResilientNetwork) SubscribeTopic(ctx context.Context, topicID types.TopicID, start time.Time) (<-chan *types.TopicMessage, error) {
	result, err := rn.cb.Execute(func() (interface{}, error) {
		return rn.next.SubscribeTopic(ctx, topicID, start)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Code: ErrCodeCircuitOpen, Message: "circuit breaker open", Err: err}
		}
		return nil, err
	}
	return result.(<-chan *types.TopicMessage), nil
}

// Close 关闭底层网络
func (rn *ResilientNetwork) Close() error {
	return rn.next.Close()
}
