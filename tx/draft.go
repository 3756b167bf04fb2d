package tx

import (
	"encoding/hex"

	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

const (
	// MaxMemoBytes 备注最大字节数
	MaxMemoBytes = 100

	// MaxTopicMessageBytes 单条主题消息最大字节数
	MaxTopicMessageBytes = 1024
)

// NewTransfer 构建转账草稿
//
// 每种资产的金额之和必须为零，否则返回 ErrInvalidDraft。
func NewTransfer(items ...LineItem) (Draft, error) {
	d := Draft{Kind: KindTransfer, Transfers: append([]LineItem(nil), items...)}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewApprovedTransfer 构建授权转账草稿（借记来自所有者授予的额度）
//
// 至少需要一行 Approved 借记；付款账户在绑定时指定为花费者。
func NewApprovedTransfer(items ...LineItem) (Draft, error) {
	d := Draft{Kind: KindApprovedTransfer, Transfers: append([]LineItem(nil), items...)}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewAllowanceApproval 构建额度授权草稿
func NewAllowanceApproval(owner, spender types.AccountID, token types.TokenID, limit int64) (Draft, error) {
	d := Draft{
		Kind: KindAllowanceApproval,
		Allowance: &AllowanceParams{
			Owner:   owner,
			Spender: spender,
			Token:   token,
			Limit:   limit,
		},
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewTokenCreate 构建代币创建草稿
func NewTokenCreate(p TokenCreateParams) (Draft, error) {
	if p.SupplyType == "" {
		p.SupplyType = SupplyFinite
	}
	for _, key := range []*string{&p.AdminKey, &p.SupplyKey, &p.PauseKey} {
		if *key == "" {
			continue
		}
		normalized, err := normalizeKey(*key)
		if err != nil {
			return Draft{}, types.WrapError(types.CodeInvalidParameters, err, "invalid token key")
		}
		*key = normalized
	}

	d := Draft{Kind: KindTokenCreate, TokenCreate: &p}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewTokenAssociate 构建代币关联草稿（需要被关联账户签名）
func NewTokenAssociate(account types.AccountID, tokens ...types.TokenID) (Draft, error) {
	d := Draft{
		Kind: KindTokenAssociate,
		Associate: &AssociateParams{
			Account: account,
			Tokens:  append([]types.TokenID(nil), tokens...),
		},
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewTokenPause 构建代币暂停草稿（需要暂停密钥签名）
func NewTokenPause(token types.TokenID) (Draft, error) {
	d := Draft{Kind: KindTokenPause, TokenID: token}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewTokenUnpause 构建代币恢复草稿
func NewTokenUnpause(token types.TokenID) (Draft, error) {
	d := Draft{Kind: KindTokenUnpause, TokenID: token}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewScheduleCreate 构建计划交易草稿，child 为被计划执行的子交易
func NewScheduleCreate(child Draft, memo string, adminKey string, expirySeconds int64) (Draft, error) {
	if adminKey != "" {
		normalized, err := normalizeKey(adminKey)
		if err != nil {
			return Draft{}, types.WrapError(types.CodeInvalidParameters, err, "invalid schedule admin key")
		}
		adminKey = normalized
	}

	scheduled := child.Clone()
	d := Draft{
		Kind: KindScheduleCreate,
		Schedule: &ScheduleCreateParams{
			Scheduled:     &scheduled,
			Memo:          memo,
			AdminKey:      adminKey,
			ExpirySeconds: expirySeconds,
		},
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewScheduleSign 构建计划交易补签草稿
func NewScheduleSign(id types.ScheduleID) (Draft, error) {
	d := Draft{Kind: KindScheduleSign, ScheduleID: id}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewScheduleDelete 构建计划交易删除草稿（需要管理密钥签名）
func NewScheduleDelete(id types.ScheduleID) (Draft, error) {
	d := Draft{Kind: KindScheduleDelete, ScheduleID: id}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewAccountCreate 构建账户创建草稿
func NewAccountCreate(publicKey string, initialBalance int64) (Draft, error) {
	normalized, err := normalizeKey(publicKey)
	if err != nil {
		return Draft{}, types.WrapError(types.CodeInvalidParameters, err, "invalid account key")
	}

	d := Draft{
		Kind: KindAccountCreate,
		Account: &AccountCreateParams{
			PublicKey:      normalized,
			InitialBalance: initialBalance,
		},
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewTopicCreate 构建共识主题创建草稿
func NewTopicCreate(memo string, submitKey string) (Draft, error) {
	if submitKey != "" {
		normalized, err := normalizeKey(submitKey)
		if err != nil {
			return Draft{}, types.WrapError(types.CodeInvalidParameters, err, "invalid topic submit key")
		}
		submitKey = normalized
	}

	d := Draft{Kind: KindTopicCreate, Topic: &TopicCreateParams{Memo: memo, SubmitKey: submitKey}}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// NewTopicMessage 构建主题消息提交草稿
func NewTopicMessage(topic types.TopicID, message []byte) (Draft, error) {
	d := Draft{
		Kind: KindTopicMessageSubmit,
		Message: &TopicMessageParams{
			TopicID: topic,
			Message: append([]byte(nil), message...),
		},
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// WithMemo 返回设置了备注的副本
func (d Draft) WithMemo(memo string) Draft {
	out := d.Clone()
	out.Memo = memo
	return out
}

// WithPayer 返回指定了付款账户的副本（绑定时会校验一致性）
func (d Draft) WithPayer(payer types.AccountID) Draft {
	out := d.Clone()
	out.Payer = payer
	return out
}

// Validate 校验草稿，不做任何网络访问
func (d Draft) Validate() error {
	if d.Payer != "" {
		if err := d.Payer.Validate(); err != nil {
			return types.WrapError(types.CodeInvalidDraft, err, "invalid payer")
		}
	}
	if len(d.Memo) > MaxMemoBytes {
		return types.NewError(types.CodeInvalidDraft, "memo exceeds %d bytes", MaxMemoBytes)
	}

	switch d.Kind {
	case KindTransfer:
		return validateTransfers(d.Transfers, false)
	case KindApprovedTransfer:
		return validateTransfers(d.Transfers, true)
	case KindAllowanceApproval:
		return validateAllowance(d.Allowance)
	case KindTokenCreate:
		return validateTokenCreate(d.TokenCreate)
	case KindTokenAssociate:
		return validateAssociate(d.Associate)
	case KindTokenPause, KindTokenUnpause:
		if d.TokenID == types.Native {
			return types.NewError(types.CodeInvalidParameters, "token id is empty")
		}
		if err := d.TokenID.Validate(); err != nil {
			return types.WrapError(types.CodeInvalidParameters, err, "invalid token id")
		}
		return nil
	case KindScheduleCreate:
		return validateSchedule(d.Schedule)
	case KindScheduleSign, KindScheduleDelete:
		if err := d.ScheduleID.Validate(); err != nil {
			return types.WrapError(types.CodeInvalidParameters, err, "invalid schedule id")
		}
		return nil
	case KindAccountCreate:
		if d.Account == nil {
			return types.NewError(types.CodeInvalidParameters, "missing account parameters")
		}
		if d.Account.InitialBalance < 0 {
			return types.NewError(types.CodeInvalidParameters, "negative initial balance %d", d.Account.InitialBalance)
		}
		if _, err := wallet.ParsePublicKeyHex(d.Account.PublicKey); err != nil {
			return types.WrapError(types.CodeInvalidParameters, err, "invalid account key")
		}
		return nil
	case KindTopicCreate:
		if d.Topic == nil {
			return types.NewError(types.CodeInvalidParameters, "missing topic parameters")
		}
		if len(d.Topic.Memo) > MaxMemoBytes {
			return types.NewError(types.CodeInvalidParameters, "topic memo exceeds %d bytes", MaxMemoBytes)
		}
		return nil
	case KindTopicMessageSubmit:
		if d.Message == nil {
			return types.NewError(types.CodeInvalidParameters, "missing topic message")
		}
		if err := d.Message.TopicID.Validate(); err != nil {
			return types.WrapError(types.CodeInvalidParameters, err, "invalid topic id")
		}
		if len(d.Message.Message) == 0 || len(d.Message.Message) > MaxTopicMessageBytes {
			return types.NewError(types.CodeInvalidParameters, "topic message must be 1..%d bytes", MaxTopicMessageBytes)
		}
		return nil
	default:
		return types.NewError(types.CodeInvalidDraft, "unknown transaction kind %q", d.Kind)
	}
}

// validateTransfers 校验零和约束
func validateTransfers(items []LineItem, approved bool) error {
	if len(items) == 0 {
		return types.NewError(types.CodeInvalidDraft, "transfer has no line items")
	}

	sums := make(map[types.TokenID]int64)
	hasApprovedDebit := false

	for i, item := range items {
		if err := item.Account.Validate(); err != nil {
			return types.WrapError(types.CodeInvalidDraft, err, "line %d: invalid account", i)
		}
		if err := item.Token.Validate(); err != nil {
			return types.WrapError(types.CodeInvalidDraft, err, "line %d: invalid token", i)
		}
		if item.Amount == 0 {
			return types.NewError(types.CodeInvalidDraft, "line %d: zero amount", i)
		}
		if item.Approved {
			if !approved {
				return types.NewError(types.CodeInvalidDraft, "line %d: approved debit in plain transfer", i)
			}
			if item.Amount > 0 {
				return types.NewError(types.CodeInvalidDraft, "line %d: approved line must be a debit", i)
			}
			hasApprovedDebit = true
		}

		sum, ok := addChecked(sums[item.Token], item.Amount)
		if !ok {
			return types.NewError(types.CodeInvalidDraft, "amount overflow for %s", item.Token.Label())
		}
		sums[item.Token] = sum
	}

	for token, sum := range sums {
		if sum != 0 {
			return types.NewError(types.CodeInvalidDraft, "transfers of %s do not net to zero (sum=%d)", token.Label(), sum)
		}
	}

	if approved && !hasApprovedDebit {
		return types.NewError(types.CodeInvalidDraft, "approved transfer has no approved debit")
	}
	return nil
}

func validateAllowance(p *AllowanceParams) error {
	if p == nil {
		return types.NewError(types.CodeInvalidParameters, "missing allowance parameters")
	}
	if err := p.Owner.Validate(); err != nil {
		return types.WrapError(types.CodeInvalidParameters, err, "invalid owner")
	}
	if err := p.Spender.Validate(); err != nil {
		return types.WrapError(types.CodeInvalidParameters, err, "invalid spender")
	}
	if p.Owner == p.Spender {
		return types.NewError(types.CodeInvalidParameters, "owner and spender must differ")
	}
	if err := p.Token.Validate(); err != nil {
		return types.WrapError(types.CodeInvalidParameters, err, "invalid token")
	}
	if p.Limit < 0 {
		return types.NewError(types.CodeInvalidParameters, "negative allowance limit %d", p.Limit)
	}
	return nil
}

func validateTokenCreate(p *TokenCreateParams) error {
	if p == nil {
		return types.NewError(types.CodeInvalidParameters, "missing token parameters")
	}
	if p.Name == "" || p.Symbol == "" {
		return types.NewError(types.CodeInvalidParameters, "token name and symbol are required")
	}
	if err := p.Treasury.Validate(); err != nil {
		return types.WrapError(types.CodeInvalidParameters, err, "invalid treasury")
	}
	if p.Decimals < 0 {
		return types.NewError(types.CodeInvalidParameters, "negative decimals %d", p.Decimals)
	}
	if p.InitialSupply < 0 {
		return types.NewError(types.CodeInvalidParameters, "negative initial supply %d", p.InitialSupply)
	}

	switch p.SupplyType {
	case SupplyFinite:
		if p.MaxSupply <= 0 {
			return types.NewError(types.CodeInvalidParameters, "finite token requires positive max supply")
		}
		if p.InitialSupply > p.MaxSupply {
			return types.NewError(types.CodeInvalidParameters,
				"initial supply %d exceeds max supply %d", p.InitialSupply, p.MaxSupply)
		}
	case SupplyInfinite:
		if p.MaxSupply != 0 {
			return types.NewError(types.CodeInvalidParameters, "infinite token must not set max supply")
		}
	default:
		return types.NewError(types.CodeInvalidParameters, "unknown supply type %q", p.SupplyType)
	}

	for name, key := range map[string]string{"admin": p.AdminKey, "supply": p.SupplyKey, "pause": p.PauseKey} {
		if key == "" {
			continue
		}
		if _, err := wallet.ParsePublicKeyHex(key); err != nil {
			return types.WrapError(types.CodeInvalidParameters, err, "invalid %s key", name)
		}
	}
	return nil
}

func validateAssociate(p *AssociateParams) error {
	if p == nil {
		return types.NewError(types.CodeInvalidParameters, "missing association parameters")
	}
	if err := p.Account.Validate(); err != nil {
		return types.WrapError(types.CodeInvalidParameters, err, "invalid account")
	}
	if len(p.Tokens) == 0 {
		return types.NewError(types.CodeInvalidParameters, "no tokens to associate")
	}
	seen := make(map[types.TokenID]bool, len(p.Tokens))
	for _, t := range p.Tokens {
		if t == types.Native {
			return types.NewError(types.CodeInvalidParameters, "cannot associate native asset")
		}
		if err := t.Validate(); err != nil {
			return types.WrapError(types.CodeInvalidParameters, err, "invalid token")
		}
		if seen[t] {
			return types.NewError(types.CodeInvalidParameters, "duplicate token %s", t)
		}
		seen[t] = true
	}
	return nil
}

func validateSchedule(p *ScheduleCreateParams) error {
	if p == nil || p.Scheduled == nil {
		return types.NewError(types.CodeInvalidDraft, "schedule has no scheduled transaction")
	}
	switch p.Scheduled.Kind {
	case KindScheduleCreate, KindScheduleSign, KindScheduleDelete:
		return types.NewError(types.CodeInvalidDraft, "cannot schedule %s", p.Scheduled.Kind)
	}
	if err := p.Scheduled.Validate(); err != nil {
		return err
	}
	if len(p.Memo) > MaxMemoBytes {
		return types.NewError(types.CodeInvalidParameters, "schedule memo exceeds %d bytes", MaxMemoBytes)
	}
	if p.ExpirySeconds < 0 {
		return types.NewError(types.CodeInvalidParameters, "negative schedule expiry")
	}
	if p.AdminKey != "" {
		if _, err := wallet.ParsePublicKeyHex(p.AdminKey); err != nil {
			return types.WrapError(types.CodeInvalidParameters, err, "invalid admin key")
		}
	}
	return nil
}

// normalizeKey 将公钥统一为压缩形式的小写十六进制
func normalizeKey(key string) (string, error) {
	pub, err := wallet.ParsePublicKeyHex(key)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub), nil
}

func addChecked(a, b int64) (int64, bool) {
	c := a + b
	if (c > a) != (b > 0) {
		return c, false
	}
	return c, true
}
