package topic

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/services"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/utils"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// Service 共识主题服务
type Service interface {
	// CreateTopic 创建主题
	CreateTopic(ctx context.Context, req *CreateRequest, wallets ...wallet.Wallet) (*CreateResult, error)

	// SubmitMessage 提交消息，收据携带主题内序号
	SubmitMessage(ctx context.Context, req *MessageRequest, wallets ...wallet.Wallet) (*types.Receipt, error)

	// SubmitChunked 将超过单条上限的消息按序拆分提交，返回每个分块的收据
	SubmitChunked(ctx context.Context, req *MessageRequest, wallets ...wallet.Wallet) ([]*types.Receipt, error)

	// Subscribe 订阅主题消息（含 start 之后的历史消息）；ctx 取消时通道关闭
	Subscribe(ctx context.Context, topicID types.TopicID, start time.Time) (<-chan *types.TopicMessage, error)
}

// CreateRequest 主题创建请求
type CreateRequest struct {
	Payer types.AccountID
	Memo  string
	// SubmitKey 提交密钥公钥（hex）；为空时任何账户都可提交消息
	SubmitKey string
}

// CreateResult 主题创建结果
type CreateResult struct {
	TopicID types.TopicID
	Receipt *types.Receipt
}

// MessageRequest 消息提交请求
type MessageRequest struct {
	Payer   types.AccountID
	TopicID types.TopicID
	Message []byte
}

type topicService struct {
	services.Config
	logger *logging.Logger
}

// NewService 创建主题服务
func NewService(cfg services.Config) Service {
	return &topicService{
		Config: cfg,
		logger: logging.OrGlobal(cfg.Logger).Named("topic"),
	}
}

func (s *topicService) CreateTopic(ctx context.Context, req *CreateRequest, wallets ...wallet.Wallet) (*CreateResult, error) {
	if req == nil {
		req = &CreateRequest{}
	}
	payer, err := s.Payer(req.Payer)
	if err != nil {
		return nil, err
	}

	d, err := tx.NewTopicCreate(req.Memo, req.SubmitKey)
	if err != nil {
		return nil, err
	}
	signed, err := s.Sign(d, payer, s.Signers(wallets...)...)
	if err != nil {
		return nil, err
	}
	r, err := s.Transactions.Execute(ctx, signed)
	if err != nil {
		return nil, err
	}

	s.logger.Info("topic created", zap.String("topic_id", string(r.TopicID)))
	return &CreateResult{TopicID: r.TopicID, Receipt: r}, nil
}

func (s *topicService) SubmitMessage(ctx context.Context, req *MessageRequest, wallets ...wallet.Wallet) (*types.Receipt, error) {
	if req == nil {
		return nil, types.NewError(types.CodeInvalidParameters, "message request is nil")
	}
	payer, err := s.Payer(req.Payer)
	if err != nil {
		return nil, err
	}

	d, err := tx.NewTopicMessage(req.TopicID, req.Message)
	if err != nil {
		return nil, err
	}
	signed, err := s.Sign(d, payer, s.Signers(wallets...)...)
	if err != nil {
		return nil, err
	}
	r, err := s.Transactions.Execute(ctx, signed)
	if err != nil {
		return r, err
	}

	s.logger.Debug("topic message submitted",
		zap.String("topic_id", string(req.TopicID)),
		zap.Uint64("sequence", r.TopicSequence),
	)
	return r, nil
}

// SubmitChunked 顺序提交各分块；某一块失败即停止，已提交的分块不回滚
func (s *topicService) SubmitChunked(ctx context.Context, req *MessageRequest, wallets ...wallet.Wallet) ([]*types.Receipt, error) {
	if req == nil || len(req.Message) == 0 {
		return nil, types.NewError(types.CodeInvalidParameters, "message is empty")
	}

	chunks := utils.ChunkBytes(req.Message, tx.MaxTopicMessageBytes)
	receipts := make([]*types.Receipt, 0, len(chunks))
	for i, chunk := range chunks {
		part := *req
		part.Message = chunk
		r, err := s.SubmitMessage(ctx, &part, wallets...)
		if err != nil {
			return receipts, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		receipts = append(receipts, r)
	}
	return receipts, nil
}

func (s *topicService) Subscribe(ctx context.Context, topicID types.TopicID, start time.Time) (<-chan *types.TopicMessage, error) {
	if err := topicID.Validate(); err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "invalid topic id")
	}
	return s.Network.SubscribeTopic(ctx, topicID, start)
}
