package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/services"
	"github.com/weisyn/ledger-flow-go/services/transaction"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

// Service 计划交易协调服务
//
// 状态：Draft → Created → {Executed | Expired | Deleted}。
// 子交易所需签名是否齐备由网络判定，签名齐备后网络立即执行子交易。
type Service interface {
	// Freeze 构建并绑定 ScheduleCreate，用给定密钥部分签名，不提交（用于离线传递给其他签名方）
	Freeze(req *CreateRequest, signers ...tx.Signer) (*tx.Signed, error)

	// CreateSchedule 构建、签名并提交 ScheduleCreate
	CreateSchedule(ctx context.Context, req *CreateRequest, signers ...tx.Signer) (*Result, error)

	// SubmitFrozen 提交经过传递、补签后的 ScheduleCreate
	SubmitFrozen(ctx context.Context, signed *tx.Signed) (*Result, error)

	// AddSignature 提交 ScheduleSign，signers 为付款账户密钥与补签密钥
	AddSignature(ctx context.Context, scheduleID types.ScheduleID, payer types.AccountID, signers ...tx.Signer) (*types.Receipt, error)

	// GetSchedule 查询计划交易状态
	GetSchedule(ctx context.Context, scheduleID types.ScheduleID) (*types.ScheduleInfo, error)

	// DeleteSchedule 删除计划交易（需要管理密钥签名）
	DeleteSchedule(ctx context.Context, scheduleID types.ScheduleID, payer types.AccountID, signers ...tx.Signer) (*types.Receipt, error)

	// AwaitExecution 等待子交易收据；未执行前为 Pending
	AwaitExecution(ctx context.Context, scheduledTxID string, timeout time.Duration) (*types.Receipt, error)
}

// CreateRequest 计划交易创建请求
type CreateRequest struct {
	// Child 被计划执行的子交易；未设置付款账户时使用 Payer
	Child tx.Draft
	// Payer ScheduleCreate 的付款账户
	Payer types.AccountID
	Memo  string
	// AdminKey 管理公钥（hex），为空时计划交易不可删除
	AdminKey string
	// Expiry 有效期，零值使用网络默认值
	Expiry time.Duration
}

// Result 计划交易创建结果
type Result struct {
	Receipt                *types.Receipt
	ScheduleID             types.ScheduleID
	ScheduledTransactionID string
}

type scheduleService struct {
	services.Config
	logger *logging.Logger
}

// NewService 创建 Schedule 服务
func NewService(cfg services.Config) Service {
	return &scheduleService{
		Config: cfg,
		logger: logging.OrGlobal(cfg.Logger).Named("schedule"),
	}
}

// Freeze 冻结 ScheduleCreate
func (s *scheduleService) Freeze(req *CreateRequest, signers ...tx.Signer) (*tx.Signed, error) {
	if req == nil {
		return nil, types.NewError(types.CodeInvalidParameters, "create request is nil")
	}
	if req.Expiry < 0 {
		return nil, types.NewError(types.CodeInvalidParameters, "negative schedule expiry %s", req.Expiry)
	}

	d, err := tx.NewScheduleCreate(req.Child, req.Memo, req.AdminKey, int64(req.Expiry/time.Second))
	if err != nil {
		return nil, err
	}
	return s.Sign(d, req.Payer, signers...)
}

// CreateSchedule 创建计划交易
func (s *scheduleService) CreateSchedule(ctx context.Context, req *CreateRequest, signers ...tx.Signer) (*Result, error) {
	signed, err := s.Freeze(req, signers...)
	if err != nil {
		return nil, err
	}
	return s.SubmitFrozen(ctx, signed)
}

// SubmitFrozen 提交 ScheduleCreate
func (s *scheduleService) SubmitFrozen(ctx context.Context, signed *tx.Signed) (*Result, error) {
	if signed == nil || signed.Kind() != tx.KindScheduleCreate {
		return nil, types.NewError(types.CodeInvalidParameters, "expected a signed %s transaction", tx.KindScheduleCreate)
	}

	r, err := s.Transactions.Execute(ctx, signed)
	if err != nil {
		return nil, err
	}
	if r.Outcome() == types.OutcomePending {
		return &Result{Receipt: r}, nil
	}

	s.logger.Info("schedule created",
		zap.String("schedule_id", string(r.ScheduleID)),
		zap.String("scheduled_tx_id", r.ScheduledTransactionID),
		zap.Int("signatures", signed.SignatureCount()),
	)
	return &Result{
		Receipt:                r,
		ScheduleID:             r.ScheduleID,
		ScheduledTransactionID: r.ScheduledTransactionID,
	}, nil
}

// AddSignature 补签计划交易
//
// 已过期的计划交易直接返回 ErrScheduleExpired，不再提交。
func (s *scheduleService) AddSignature(ctx context.Context, scheduleID types.ScheduleID, payer types.AccountID, signers ...tx.Signer) (*types.Receipt, error) {
	info, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if info.State == types.ScheduleExpired {
		return nil, types.NewError(types.CodeScheduleExpired, "schedule %s expired at %s", scheduleID, info.Expiry.Format(time.RFC3339)).
			WithStatus(types.StatusScheduleExpired)
	}

	d, err := tx.NewScheduleSign(scheduleID)
	if err != nil {
		return nil, err
	}
	signed, err := s.Sign(d, payer, signers...)
	if err != nil {
		return nil, err
	}

	r, err := s.Transactions.Execute(ctx, signed)
	if err != nil {
		return r, err
	}
	s.logger.Debug("schedule signed",
		zap.String("schedule_id", string(scheduleID)),
		zap.Strings("signers", signed.Signers()),
	)
	return r, nil
}

// GetSchedule 查询计划交易
func (s *scheduleService) GetSchedule(ctx context.Context, scheduleID types.ScheduleID) (*types.ScheduleInfo, error) {
	if err := scheduleID.Validate(); err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "invalid schedule id")
	}
	return s.Network.GetScheduleInfo(ctx, scheduleID)
}

// DeleteSchedule 删除计划交易
func (s *scheduleService) DeleteSchedule(ctx context.Context, scheduleID types.ScheduleID, payer types.AccountID, signers ...tx.Signer) (*types.Receipt, error) {
	d, err := tx.NewScheduleDelete(scheduleID)
	if err != nil {
		return nil, err
	}
	signed, err := s.Sign(d, payer, signers...)
	if err != nil {
		return nil, err
	}
	return s.Transactions.Execute(ctx, signed)
}

// AwaitExecution 等待子交易收据
func (s *scheduleService) AwaitExecution(ctx context.Context, scheduledTxID string, timeout time.Duration) (*types.Receipt, error) {
	if scheduledTxID == "" {
		return nil, types.NewError(types.CodeInvalidParameters, "scheduled transaction id is empty")
	}
	return s.Transactions.AwaitReceipt(ctx, &transaction.PendingResult{
		TransactionID: scheduledTxID,
		Kind:          "scheduled",
	}, timeout)
}
