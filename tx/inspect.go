package tx

import (
	"fmt"
	"strings"
	"time"

	"github.com/weisyn/ledger-flow-go/types"
)

// Summary 交易摘要，供离线签名方在签名前核对内容
type Summary struct {
	TransactionID string            `json:"transactionId"`
	Kind          Kind              `json:"kind"`
	Payer         types.AccountID   `json:"payer"`
	Memo          string            `json:"memo,omitempty"`
	Network       string            `json:"network,omitempty"`
	Nodes         []types.AccountID `json:"nodes"`
	MaxFee        int64             `json:"maxFee"`
	ValidStart    time.Time         `json:"validStart"`
	ValidUntil    time.Time         `json:"validUntil"`
	Transfers     []LineItem        `json:"transfers,omitempty"`
	Scheduled     *Summary          `json:"scheduled,omitempty"`
	ScheduleMemo  string            `json:"scheduleMemo,omitempty"`
	Signers       []string          `json:"signers"`
}

// Inspect 生成交易摘要
func Inspect(s *Signed) Summary {
	body := s.Body()
	sum := Summary{
		TransactionID: body.TransactionID.String(),
		Kind:          body.Draft.Kind,
		Payer:         body.TransactionID.Payer,
		Memo:          body.Draft.Memo,
		Network:       body.Network,
		Nodes:         body.NodeAccountIDs,
		MaxFee:        body.MaxFee,
		ValidStart:    body.TransactionID.ValidStart,
		ValidUntil:    body.ValidUntil(),
		Transfers:     body.Draft.Transfers,
		Signers:       s.Signers(),
	}
	if sched := body.Draft.Schedule; sched != nil && sched.Scheduled != nil {
		sum.ScheduleMemo = sched.Memo
		sum.Scheduled = &Summary{
			Kind:      sched.Scheduled.Kind,
			Payer:     sched.Scheduled.Payer,
			Memo:      sched.Scheduled.Memo,
			Transfers: sched.Scheduled.Transfers,
		}
	}
	return sum
}

// String 多行文本形式
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transaction %s (%s)\n", s.TransactionID, s.Kind)
	fmt.Fprintf(&b, "  payer:      %s\n", s.Payer)
	if s.Memo != "" {
		fmt.Fprintf(&b, "  memo:       %s\n", s.Memo)
	}
	fmt.Fprintf(&b, "  valid:      %s .. %s\n", s.ValidStart.Format(time.RFC3339), s.ValidUntil.Format(time.RFC3339))
	fmt.Fprintf(&b, "  max fee:    %d\n", s.MaxFee)
	writeTransfers(&b, s.Transfers, "  ")
	if s.Scheduled != nil {
		fmt.Fprintf(&b, "  scheduled:  %s", s.Scheduled.Kind)
		if s.ScheduleMemo != "" {
			fmt.Fprintf(&b, " memo=%q", s.ScheduleMemo)
		}
		b.WriteString("\n")
		writeTransfers(&b, s.Scheduled.Transfers, "    ")
	}
	fmt.Fprintf(&b, "  signatures: %d\n", len(s.Signers))
	for _, signer := range s.Signers {
		fmt.Fprintf(&b, "    %s\n", signer)
	}
	return b.String()
}

func writeTransfers(b *strings.Builder, items []LineItem, indent string) {
	for _, item := range items {
		approved := ""
		if item.Approved {
			approved = " (approved)"
		}
		fmt.Fprintf(b, "%s%-14s %+d %s%s\n", indent, item.Account, item.Amount, item.Token.Label(), approved)
	}
}
