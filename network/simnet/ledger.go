// Package simnet 进程内模拟账本
//
// Ledger 实现 client.Network：提交时执行预检，交易按提交顺序在 SettleDelay 之后结算，
// 结算是惰性的，发生在下一次访问账本时。没有手续费，状态全部在内存中。
// 用于服务层测试、端到端流程以及命令行的本地演示。
package simnet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

const (
	// DefaultScheduleExpiry 计划交易默认有效期
	DefaultScheduleExpiry = 30 * time.Minute

	// DefaultTopicBuffer 每个主题订阅者的缓冲区大小
	DefaultTopicBuffer = 256

	// maxClockSkew 允许交易有效期起点领先账本时钟的幅度
	maxClockSkew = 10 * time.Second

	firstEntityNum = 1001
)

// DefaultNodeAccountID 默认节点账户
const DefaultNodeAccountID types.AccountID = "0.0.3"

// Config 模拟账本配置
type Config struct {
	// Name 网络名称
	Name string

	// NodeAccountIDs 节点账户，默认 0.0.3
	NodeAccountIDs []types.AccountID

	// Clock 账本时钟，默认 time.Now
	Clock func() time.Time

	// SettleDelay 提交后多久可以结算（模拟共识延迟）
	SettleDelay time.Duration

	// TopicBuffer 订阅者缓冲区大小
	TopicBuffer int

	// Logger 日志器（可选）
	Logger *logging.Logger
}

type account struct {
	id     types.AccountID
	key    string // 压缩公钥 hex
	native int64
	tokens map[types.TokenID]int64 // 已关联代币
}

type token struct {
	id     types.TokenID
	params tx.TokenCreateParams
	supply int64
	paused bool
}

type allowanceKey struct {
	owner   types.AccountID
	spender types.AccountID
	token   types.TokenID
}

type schedule struct {
	info        types.ScheduleInfo
	child       tx.Draft
	signatories map[string]bool
}

type pendingTx struct {
	signed  *tx.Signed
	readyAt time.Time
}

// Ledger 进程内模拟账本，所有状态由单个互斥锁保护
type Ledger struct {
	mu     sync.Mutex
	cfg    Config
	logger *logging.Logger

	closed  bool
	nextNum uint64

	accounts   map[types.AccountID]*account
	tokens     map[types.TokenID]*token
	allowances map[allowanceKey]int64
	schedules  map[types.ScheduleID]*schedule
	topics     map[types.TopicID]*topic

	queue         []*pendingTx
	seen          map[string]struct{}
	receipts      map[string]*types.Receipt
	lastConsensus time.Time

	failSubmits int
	busySubmits int
}

var _ client.Network = (*Ledger)(nil)

// New 创建模拟账本
func New(cfg Config) *Ledger {
	if len(cfg.NodeAccountIDs) == 0 {
		cfg.NodeAccountIDs = []types.AccountID{DefaultNodeAccountID}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.TopicBuffer <= 0 {
		cfg.TopicBuffer = DefaultTopicBuffer
	}
	if cfg.Name == "" {
		cfg.Name = "simnet"
	}

	return &Ledger{
		cfg:        cfg,
		logger:     logging.OrGlobal(cfg.Logger).Named("simnet"),
		nextNum:    firstEntityNum,
		accounts:   make(map[types.AccountID]*account),
		tokens:     make(map[types.TokenID]*token),
		allowances: make(map[allowanceKey]int64),
		schedules:  make(map[types.ScheduleID]*schedule),
		topics:     make(map[types.TopicID]*topic),
		seen:       make(map[string]struct{}),
		receipts:   make(map[string]*types.Receipt),
	}
}

// NetworkContext 绑定到本账本的网络上下文
func (l *Ledger) NetworkContext(keys tx.KeyResolver) tx.NetworkContext {
	return tx.NetworkContext{
		Name:           l.cfg.Name,
		NodeAccountIDs: append([]types.AccountID(nil), l.cfg.NodeAccountIDs...),
		Clock:          l.cfg.Clock,
		Keys:           keys,
	}
}

// Genesis 直接创建一个有初始余额的账户（不经过交易），用于初始化运营账户
func (l *Ledger) Genesis(publicKey []byte, balance int64) (types.AccountID, error) {
	if balance < 0 {
		return "", fmt.Errorf("negative genesis balance %d", balance)
	}
	key, err := normalizeKey(hex.EncodeToString(publicKey))
	if err != nil {
		return "", fmt.Errorf("genesis key: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := types.AccountID(l.allocateLocked())
	l.accounts[id] = &account{id: id, key: key, native: balance, tokens: make(map[types.TokenID]int64)}
	l.logger.Debug("genesis account created", zap.String("account", string(id)), zap.Int64("balance", balance))
	return id, nil
}

// FailNextSubmits 让接下来 n 次提交以传输错误失败
func (l *Ledger) FailNextSubmits(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSubmits = n
}

// SetBusy 让接下来 n 次提交以 BUSY 预检拒绝
func (l *Ledger) SetBusy(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.busySubmits = n
}

// Settle 立即结算所有已到期的待处理交易
func (l *Ledger) Settle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settleLocked(l.now())
}

// Pending 尚未结算的交易数
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Allowance 查询授权额度（测试辅助；客户端不缓存额度）
func (l *Ledger) Allowance(owner, spender types.AccountID, tokenID types.TokenID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settleLocked(l.now())
	return l.allowances[allowanceKey{owner: owner, spender: spender, token: tokenID}]
}

// TokenPaused 代币是否处于暂停状态
func (l *Ledger) TokenPaused(id types.TokenID) (paused bool, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settleLocked(l.now())
	t, ok := l.tokens[id]
	if !ok {
		return false, false
	}
	return t.paused, true
}

// SubmitTransaction 预检并受理交易
func (l *Ledger) SubmitTransaction(ctx context.Context, signedTx []byte) (*client.SubmitAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, client.NewClosedError()
	}
	if l.failSubmits > 0 {
		l.failSubmits--
		return nil, client.NewNetworkError(errors.New("simulated transport failure"))
	}
	if l.busySubmits > 0 {
		l.busySubmits--
		return nil, precheck(types.StatusBusy, "", "node is busy")
	}

	now := l.now()
	l.settleLocked(now)

	signed, err := tx.Decode(signedTx)
	if err != nil {
		if errors.Is(err, types.ErrUnauthorizedSubmission) {
			return nil, precheck(types.StatusInvalidSignature, types.TransactionIDOf(err), "%v", err)
		}
		return nil, precheck(types.StatusInvalidTransaction, "", "%v", err)
	}

	body := signed.Body()
	txID := body.TransactionID.String()

	node, ok := l.nodeFor(body.NodeAccountIDs)
	if !ok {
		return nil, precheck(types.StatusInvalidNodeAccount, txID, "no known node in %v", body.NodeAccountIDs)
	}
	if _, dup := l.seen[txID]; dup {
		return nil, precheck(types.StatusDuplicateTransaction, txID, "transaction already submitted")
	}
	validStart := body.TransactionID.ValidStart
	if now.Add(maxClockSkew).Before(validStart) || now.After(body.ValidUntil()) {
		return nil, precheck(types.StatusTransactionExpired, txID, "transaction outside its valid window")
	}
	payer, ok := l.accounts[body.TransactionID.Payer]
	if !ok {
		return nil, precheck(types.StatusPayerAccountNotFound, txID, "payer %s not found", body.TransactionID.Payer)
	}
	if !signerSet(signed)[payer.key] {
		return nil, precheck(types.StatusInvalidSignature, txID, "missing payer signature")
	}

	l.seen[txID] = struct{}{}
	l.queue = append(l.queue, &pendingTx{signed: signed, readyAt: now.Add(l.cfg.SettleDelay)})

	l.logger.Debug("transaction accepted",
		zap.String("tx_id", txID),
		zap.String("kind", string(body.Draft.Kind)),
		zap.Int("signatures", signed.SignatureCount()),
	)

	return &client.SubmitAck{TransactionID: txID, NodeID: node, Status: types.StatusSuccess}, nil
}

// GetReceipt 查询收据；已受理但未结算时返回 Pending
func (l *Ledger) GetReceipt(ctx context.Context, txID string) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, client.NewClosedError()
	}
	l.settleLocked(l.now())

	if r, ok := l.receipts[txID]; ok {
		out := *r
		return &out, nil
	}
	if _, ok := l.seen[txID]; ok {
		return types.PendingReceipt(txID), nil
	}
	return nil, precheck(types.StatusReceiptNotFound, txID, "no receipt for %s", txID)
}

// GetAccountBalance 查询余额（含全部已关联代币）
func (l *Ledger) GetAccountBalance(ctx context.Context, accountID types.AccountID) (*types.AccountBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, client.NewClosedError()
	}
	l.settleLocked(l.now())

	acc, ok := l.accounts[accountID]
	if !ok {
		return nil, precheck(types.StatusInvalidAccountID, "", "account %s not found", accountID)
	}

	balance := &types.AccountBalance{
		AccountID: acc.id,
		Native:    acc.native,
		Tokens:    make(map[types.TokenID]int64, len(acc.tokens)),
	}
	for id, amount := range acc.tokens {
		balance.Tokens[id] = amount
	}
	return balance, nil
}

// GetScheduleInfo 查询计划交易
func (l *Ledger) GetScheduleInfo(ctx context.Context, scheduleID types.ScheduleID) (*types.ScheduleInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, client.NewClosedError()
	}
	l.settleLocked(l.now())

	s, ok := l.schedules[scheduleID]
	if !ok {
		return nil, precheck(types.StatusInvalidScheduleID, "", "schedule %s not found", scheduleID)
	}
	return s.snapshot(), nil
}

// Close 关闭账本并结束所有订阅
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	for _, t := range l.topics {
		t.closeSubscribers()
	}
	return nil
}

func (l *Ledger) now() time.Time {
	return l.cfg.Clock().UTC()
}

func (l *Ledger) allocateLocked() string {
	id := types.EntityID{Shard: 0, Realm: 0, Num: l.nextNum}
	l.nextNum++
	return id.String()
}

func (l *Ledger) nodeFor(nodes []types.AccountID) (types.AccountID, bool) {
	for _, n := range nodes {
		for _, known := range l.cfg.NodeAccountIDs {
			if n == known {
				return n, true
			}
		}
	}
	return "", false
}

// consensusTimeLocked 共识时间戳严格递增
func (l *Ledger) consensusTimeLocked(now time.Time) time.Time {
	if !now.After(l.lastConsensus) {
		now = l.lastConsensus.Add(time.Nanosecond)
	}
	l.lastConsensus = now
	return now
}

// settleLocked 按提交顺序结算所有已到期交易
func (l *Ledger) settleLocked(now time.Time) {
	for len(l.queue) > 0 && !l.queue[0].readyAt.After(now) {
		p := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.executeLocked(p.signed, now)
	}
	l.expireSchedulesLocked(now)
}

func (l *Ledger) executeLocked(signed *tx.Signed, now time.Time) {
	body := signed.Body()
	txID := body.TransactionID.String()
	ts := l.consensusTimeLocked(now)

	receipt := &types.Receipt{TransactionID: txID}
	receipt.Status = l.applyLocked(body.Draft, body.TransactionID, signerSet(signed), ts, receipt)
	l.receipts[txID] = receipt

	fields := []zap.Field{
		zap.String("tx_id", txID),
		zap.String("kind", string(body.Draft.Kind)),
		zap.String("status", string(receipt.Status)),
	}
	if receipt.Status == types.StatusSuccess {
		l.logger.Debug("transaction settled", fields...)
	} else {
		l.logger.Info("transaction failed", fields...)
	}
}

// precheck 节点预检拒绝
func precheck(status types.Status, txID string, format string, args ...interface{}) *types.LedgerError {
	e := types.NewError(types.CodePrecheck, format, args...).WithStatus(status).WithTransaction(txID)
	e.Layer = types.LayerNetwork
	return e
}

func signerSet(s *tx.Signed) map[string]bool {
	set := make(map[string]bool, s.SignatureCount())
	for _, k := range s.Signers() {
		set[k] = true
	}
	return set
}

func normalizeKey(keyHex string) (string, error) {
	pub, err := wallet.ParsePublicKeyHex(keyHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub), nil
}
