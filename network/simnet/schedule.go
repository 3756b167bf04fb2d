package simnet

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

// scheduledSuffix 子交易 ID 后缀：与计划创建交易共享付款账户和有效期起点
const scheduledSuffix = "?scheduled"

func (l *Ledger) applyScheduleCreateLocked(d tx.Draft, txID tx.TransactionID, sigs map[string]bool, ts time.Time, receipt *types.Receipt) types.Status {
	p := d.Schedule
	child := p.Scheduled.Clone()
	if child.Payer == "" {
		child.Payer = d.Payer
	}
	if _, ok := l.accounts[child.Payer]; !ok {
		return types.StatusInvalidAccountID
	}

	expiry := DefaultScheduleExpiry
	if p.ExpirySeconds > 0 {
		expiry = time.Duration(p.ExpirySeconds) * time.Second
	}

	id := types.ScheduleID(l.allocateLocked())
	scheduledID := txID.String() + scheduledSuffix

	s := &schedule{
		info: types.ScheduleInfo{
			ScheduleID:             id,
			State:                  types.ScheduleCreated,
			Memo:                   p.Memo,
			AdminKey:               p.AdminKey,
			Creator:                d.Payer,
			Expiry:                 ts.Add(expiry),
			ScheduledTransactionID: scheduledID,
		},
		child:       child,
		signatories: make(map[string]bool, len(sigs)),
	}
	for k := range sigs {
		s.signatories[k] = true
	}

	l.schedules[id] = s
	l.seen[scheduledID] = struct{}{}

	receipt.ScheduleID = id
	receipt.ScheduledTransactionID = scheduledID

	l.tryExecuteScheduleLocked(s, ts)
	return types.StatusSuccess
}

func (l *Ledger) applyScheduleSignLocked(id types.ScheduleID, sigs map[string]bool, ts time.Time, receipt *types.Receipt) types.Status {
	s, ok := l.schedules[id]
	if !ok {
		return types.StatusInvalidScheduleID
	}
	if status := l.scheduleActiveLocked(s, ts); status != types.StatusSuccess {
		return status
	}

	for k := range sigs {
		s.signatories[k] = true
	}
	receipt.ScheduleID = id
	receipt.ScheduledTransactionID = s.info.ScheduledTransactionID

	l.tryExecuteScheduleLocked(s, ts)
	return types.StatusSuccess
}

func (l *Ledger) applyScheduleDeleteLocked(id types.ScheduleID, ts time.Time, receipt *types.Receipt) types.Status {
	s, ok := l.schedules[id]
	if !ok {
		return types.StatusInvalidScheduleID
	}
	if s.info.AdminKey == "" {
		return types.StatusScheduleIsImmutable
	}
	if status := l.scheduleActiveLocked(s, ts); status != types.StatusSuccess {
		return status
	}

	s.info.State = types.ScheduleDeleted
	l.closeScheduleLocked(s, types.StatusScheduleDeleted)
	receipt.ScheduleID = id
	return types.StatusSuccess
}

// scheduleActiveLocked 计划交易仍可签名时返回 SUCCESS
func (l *Ledger) scheduleActiveLocked(s *schedule, ts time.Time) types.Status {
	l.expireLocked(s, ts)
	switch s.info.State {
	case types.ScheduleExecuted:
		return types.StatusScheduleExecuted
	case types.ScheduleDeleted:
		return types.StatusScheduleDeleted
	case types.ScheduleExpired:
		return types.StatusScheduleExpired
	}
	return types.StatusSuccess
}

// tryExecuteScheduleLocked 子交易所需签名齐备时立即执行
func (l *Ledger) tryExecuteScheduleLocked(s *schedule, ts time.Time) {
	for _, key := range l.requiredKeysLocked(s.child) {
		if !s.signatories[key] {
			return
		}
	}

	scheduledID := s.info.ScheduledTransactionID
	childReceipt := &types.Receipt{TransactionID: scheduledID}
	childID := tx.TransactionID{Payer: s.child.Payer, ValidStart: ts}
	childReceipt.Status = l.applyLocked(s.child, childID, s.signatories, ts, childReceipt)
	l.receipts[scheduledID] = childReceipt

	executedAt := ts
	s.info.State = types.ScheduleExecuted
	s.info.ExecutedAt = &executedAt
	s.info.ExecutionStatus = childReceipt.Status

	l.logger.Info("scheduled transaction executed",
		zap.String("schedule_id", string(s.info.ScheduleID)),
		zap.String("status", string(childReceipt.Status)),
	)
}

func (l *Ledger) expireLocked(s *schedule, now time.Time) {
	if s.info.State == types.ScheduleCreated && now.After(s.info.Expiry) {
		s.info.State = types.ScheduleExpired
		l.closeScheduleLocked(s, types.StatusScheduleExpired)
		l.logger.Debug("schedule expired", zap.String("schedule_id", string(s.info.ScheduleID)))
	}
}

func (l *Ledger) expireSchedulesLocked(now time.Time) {
	for _, s := range l.schedules {
		l.expireLocked(s, now)
	}
}

// closeScheduleLocked 子交易不会再执行，给出终态收据
func (l *Ledger) closeScheduleLocked(s *schedule, status types.Status) {
	scheduledID := s.info.ScheduledTransactionID
	if _, done := l.receipts[scheduledID]; done {
		return
	}
	l.receipts[scheduledID] = &types.Receipt{
		TransactionID: scheduledID,
		Status:        status,
		ScheduleID:    s.info.ScheduleID,
	}
}

func (s *schedule) snapshot() *types.ScheduleInfo {
	info := s.info
	info.Signatories = make([]string, 0, len(s.signatories))
	for k := range s.signatories {
		info.Signatories = append(info.Signatories, k)
	}
	sort.Strings(info.Signatories)
	if s.info.ExecutedAt != nil {
		at := *s.info.ExecutedAt
		info.ExecutedAt = &at
	}
	return &info
}
