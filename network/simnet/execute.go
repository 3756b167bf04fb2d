package simnet

import (
	"time"

	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

// applyLocked 在共识时间 ts 执行交易体，返回收据状态
//
// 所有检查先于任何状态修改完成，失败的交易不改变账本。
func (l *Ledger) applyLocked(d tx.Draft, txID tx.TransactionID, sigs map[string]bool, ts time.Time, receipt *types.Receipt) types.Status {
	for _, key := range l.requiredKeysLocked(d) {
		if !sigs[key] {
			return types.StatusInvalidSignature
		}
	}

	switch d.Kind {
	case tx.KindTransfer, tx.KindApprovedTransfer:
		return l.applyTransferLocked(d)
	case tx.KindAllowanceApproval:
		return l.applyAllowanceLocked(d.Allowance)
	case tx.KindTokenCreate:
		return l.applyTokenCreateLocked(d.TokenCreate, receipt)
	case tx.KindTokenAssociate:
		return l.applyAssociateLocked(d.Associate)
	case tx.KindTokenPause, tx.KindTokenUnpause:
		return l.applyPauseLocked(d.TokenID, d.Kind == tx.KindTokenPause)
	case tx.KindAccountCreate:
		return l.applyAccountCreateLocked(d, receipt)
	case tx.KindScheduleCreate:
		return l.applyScheduleCreateLocked(d, txID, sigs, ts, receipt)
	case tx.KindScheduleSign:
		return l.applyScheduleSignLocked(d.ScheduleID, sigs, ts, receipt)
	case tx.KindScheduleDelete:
		return l.applyScheduleDeleteLocked(d.ScheduleID, ts, receipt)
	case tx.KindTopicCreate:
		return l.applyTopicCreateLocked(d.Topic, receipt)
	case tx.KindTopicMessageSubmit:
		return l.applyTopicMessageLocked(d.Message, ts, receipt)
	default:
		return types.StatusInvalidTransaction
	}
}

// requiredKeysLocked 交易需要的签名公钥；不存在的实体不产生要求，由执行阶段报告
func (l *Ledger) requiredKeysLocked(d tx.Draft) []string {
	var keys []string
	addAccount := func(id types.AccountID) {
		if acc, ok := l.accounts[id]; ok {
			keys = append(keys, acc.key)
		}
	}
	addKey := func(key string) {
		if key != "" {
			keys = append(keys, key)
		}
	}

	addAccount(d.Payer)

	switch d.Kind {
	case tx.KindTransfer, tx.KindApprovedTransfer:
		for _, it := range d.Transfers {
			if it.Amount < 0 && !it.Approved {
				addAccount(it.Account)
			}
		}
	case tx.KindAllowanceApproval:
		addAccount(d.Allowance.Owner)
	case tx.KindTokenCreate:
		addAccount(d.TokenCreate.Treasury)
		addKey(d.TokenCreate.AdminKey)
	case tx.KindTokenAssociate:
		addAccount(d.Associate.Account)
	case tx.KindTokenPause, tx.KindTokenUnpause:
		if t, ok := l.tokens[d.TokenID]; ok {
			addKey(t.params.PauseKey)
		}
	case tx.KindScheduleCreate:
		addKey(d.Schedule.AdminKey)
	case tx.KindScheduleDelete:
		if s, ok := l.schedules[d.ScheduleID]; ok {
			addKey(s.info.AdminKey)
		}
	case tx.KindTopicCreate:
		addKey(d.Topic.AdminKey)
	case tx.KindTopicMessageSubmit:
		if t, ok := l.topics[d.Message.TopicID]; ok {
			addKey(t.submitKey)
		}
	}
	return keys
}

type assetKey struct {
	account types.AccountID
	token   types.TokenID
}

func (l *Ledger) applyTransferLocked(d tx.Draft) types.Status {
	deltas := make(map[assetKey]int64)
	approved := make(map[allowanceKey]int64)

	for _, it := range d.Transfers {
		acc, ok := l.accounts[it.Account]
		if !ok {
			return types.StatusInvalidAccountID
		}
		if !it.Token.IsNative() {
			t, ok := l.tokens[it.Token]
			if !ok {
				return types.StatusInvalidTokenID
			}
			if t.paused {
				return types.StatusTokenPaused
			}
			if _, associated := acc.tokens[it.Token]; !associated {
				return types.StatusTokenNotAssociated
			}
		}
		deltas[assetKey{it.Account, it.Token}] += it.Amount
		if it.Approved {
			approved[allowanceKey{owner: it.Account, spender: d.Payer, token: it.Token}] -= it.Amount
		}
	}

	for _, it := range d.Transfers {
		if !it.Approved {
			continue
		}
		k := allowanceKey{owner: it.Account, spender: d.Payer, token: it.Token}
		limit, ok := l.allowances[k]
		if !ok {
			return types.StatusSpenderNoAllowance
		}
		if approved[k] > limit {
			return types.StatusAmountExceedsAllowance
		}
	}

	for _, it := range d.Transfers {
		k := assetKey{it.Account, it.Token}
		if l.balanceLocked(k)+deltas[k] < 0 {
			if it.Token.IsNative() {
				return types.StatusInsufficientBalance
			}
			return types.StatusInsufficientTokenBalance
		}
	}

	for k, delta := range deltas {
		acc := l.accounts[k.account]
		if k.token.IsNative() {
			acc.native += delta
		} else {
			acc.tokens[k.token] += delta
		}
	}
	for k, used := range approved {
		l.allowances[k] -= used
	}
	return types.StatusSuccess
}

func (l *Ledger) balanceLocked(k assetKey) int64 {
	acc := l.accounts[k.account]
	if k.token.IsNative() {
		return acc.native
	}
	return acc.tokens[k.token]
}

func (l *Ledger) applyAllowanceLocked(p *tx.AllowanceParams) types.Status {
	owner, ok := l.accounts[p.Owner]
	if !ok {
		return types.StatusInvalidAccountID
	}
	if _, ok := l.accounts[p.Spender]; !ok {
		return types.StatusInvalidAccountID
	}
	if !p.Token.IsNative() {
		if _, ok := l.tokens[p.Token]; !ok {
			return types.StatusInvalidTokenID
		}
		if _, associated := owner.tokens[p.Token]; !associated {
			return types.StatusTokenNotAssociated
		}
	}

	k := allowanceKey{owner: p.Owner, spender: p.Spender, token: p.Token}
	if p.Limit == 0 {
		delete(l.allowances, k)
	} else {
		l.allowances[k] = p.Limit
	}
	return types.StatusSuccess
}

func (l *Ledger) applyTokenCreateLocked(p *tx.TokenCreateParams, receipt *types.Receipt) types.Status {
	treasury, ok := l.accounts[p.Treasury]
	if !ok {
		return types.StatusInvalidAccountID
	}

	id := types.TokenID(l.allocateLocked())
	l.tokens[id] = &token{id: id, params: *p, supply: p.InitialSupply}
	treasury.tokens[id] = p.InitialSupply
	receipt.TokenID = id
	return types.StatusSuccess
}

func (l *Ledger) applyAssociateLocked(p *tx.AssociateParams) types.Status {
	acc, ok := l.accounts[p.Account]
	if !ok {
		return types.StatusInvalidAccountID
	}
	for _, id := range p.Tokens {
		if _, ok := l.tokens[id]; !ok {
			return types.StatusInvalidTokenID
		}
		if _, associated := acc.tokens[id]; associated {
			return types.StatusTokenAlreadyAssociated
		}
	}
	for _, id := range p.Tokens {
		acc.tokens[id] = 0
	}
	return types.StatusSuccess
}

func (l *Ledger) applyPauseLocked(id types.TokenID, pause bool) types.Status {
	t, ok := l.tokens[id]
	if !ok {
		return types.StatusInvalidTokenID
	}
	if t.params.PauseKey == "" {
		return types.StatusTokenHasNoPauseKey
	}
	t.paused = pause
	return types.StatusSuccess
}

func (l *Ledger) applyAccountCreateLocked(d tx.Draft, receipt *types.Receipt) types.Status {
	payer := l.accounts[d.Payer]
	if payer == nil {
		return types.StatusPayerAccountNotFound
	}
	if payer.native < d.Account.InitialBalance {
		return types.StatusInsufficientBalance
	}
	key, err := normalizeKey(d.Account.PublicKey)
	if err != nil {
		return types.StatusInvalidTransaction
	}

	payer.native -= d.Account.InitialBalance
	id := types.AccountID(l.allocateLocked())
	l.accounts[id] = &account{id: id, key: key, native: d.Account.InitialBalance, tokens: make(map[types.TokenID]int64)}
	receipt.AccountID = id
	return types.StatusSuccess
}
