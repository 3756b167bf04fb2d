package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ledger-flow-go/services/schedule"
	"github.com/weisyn/ledger-flow-go/test/integration"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

type party struct {
	id  types.AccountID
	key wallet.Wallet
}

type fixture struct {
	env      *integration.Env
	svc      schedule.Service
	operator party
	a, b, c  party
}

func newFixture(t *testing.T, opts ...integration.Option) *fixture {
	env := integration.NewEnv(t, opts...)
	f := &fixture{env: env, svc: schedule.NewService(env.Services())}
	f.operator.id, f.operator.key = env.Account(1, 10_000)
	f.a.id, f.a.key = env.Account(2, 1_000)
	f.b.id, f.b.key = env.Account(3, 1_000)
	f.c.id, f.c.key = env.Account(4, 0)
	return f
}

// jointTransfer A 与 B 各转 100 给 C，需要 A、B 双方签名
func (f *fixture) jointTransfer() tx.Draft {
	return f.env.Draft(tx.NewTransfer(
		tx.LineItem{Account: f.a.id, Amount: -100},
		tx.LineItem{Account: f.b.id, Amount: -100},
		tx.LineItem{Account: f.c.id, Amount: 200},
	))
}

func (f *fixture) create(t *testing.T, req *schedule.CreateRequest) *schedule.Result {
	t.Helper()
	res, err := f.svc.CreateSchedule(f.env.Context(), req, f.operator.key)
	require.NoError(t, err)
	integration.VerifySuccess(t, res.Receipt)
	require.NotEmpty(t, res.ScheduleID)
	require.NotEmpty(t, res.ScheduledTransactionID)
	return res
}

func (f *fixture) state(t *testing.T, id types.ScheduleID) types.ScheduleState {
	t.Helper()
	info, err := f.svc.GetSchedule(f.env.Context(), id)
	require.NoError(t, err)
	return info.State
}

func TestSchedule_ExecutesOnlyAfterAllSign(t *testing.T) {
	for _, order := range [][]string{{"a", "b"}, {"b", "a"}} {
		t.Run(order[0]+" then "+order[1], func(t *testing.T) {
			f := newFixture(t)
			signers := map[string]party{"a": f.a, "b": f.b}

			res := f.create(t, &schedule.CreateRequest{
				Child: f.jointTransfer(),
				Payer: f.operator.id,
				Memo:  "joint payment",
			})
			assert.Equal(t, types.ScheduleCreated, f.state(t, res.ScheduleID))

			first := signers[order[0]]
			_, err := f.svc.AddSignature(f.env.Context(), res.ScheduleID, first.id, first.key)
			require.NoError(t, err)
			assert.Equal(t, types.ScheduleCreated, f.state(t, res.ScheduleID))
			f.env.VerifyBalance(f.c.id, "", 0)

			pending, err := f.svc.AwaitExecution(f.env.Context(), res.ScheduledTransactionID, 20*time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, types.OutcomePending, pending.Outcome())

			second := signers[order[1]]
			_, err = f.svc.AddSignature(f.env.Context(), res.ScheduleID, second.id, second.key)
			require.NoError(t, err)

			child, err := f.svc.AwaitExecution(f.env.Context(), res.ScheduledTransactionID, time.Second)
			require.NoError(t, err)
			integration.VerifySuccess(t, child)

			info, err := f.svc.GetSchedule(f.env.Context(), res.ScheduleID)
			require.NoError(t, err)
			assert.Equal(t, types.ScheduleExecuted, info.State)
			assert.Equal(t, types.StatusSuccess, info.ExecutionStatus)
			assert.Len(t, info.Signatories, 3)

			// 模拟账本不收取手续费
			f.env.VerifyBalance(f.a.id, "", 900)
			f.env.VerifyBalance(f.b.id, "", 900)
			f.env.VerifyBalance(f.c.id, "", 200)
		})
	}
}

func TestSchedule_SerializedHandOff(t *testing.T) {
	f := newFixture(t, integration.WithHTTPTransport())

	frozen, err := f.svc.Freeze(&schedule.CreateRequest{
		Child: f.jointTransfer(),
		Payer: f.operator.id,
	}, f.operator.key)
	require.NoError(t, err)

	data, err := frozen.Bytes()
	require.NoError(t, err)

	// 另一方解码、检查并补签
	received, err := tx.Decode(data)
	require.NoError(t, err)
	summary := tx.Inspect(received)
	assert.Equal(t, tx.KindScheduleCreate, summary.Kind)

	cosigned, err := received.Sign(f.a.key)
	require.NoError(t, err)
	assert.Equal(t, 2, cosigned.SignatureCount())
	assert.Equal(t, 1, frozen.SignatureCount())

	res, err := f.svc.SubmitFrozen(f.env.Context(), cosigned)
	require.NoError(t, err)
	assert.Equal(t, types.ScheduleCreated, f.state(t, res.ScheduleID))

	_, err = f.svc.AddSignature(f.env.Context(), res.ScheduleID, f.b.id, f.b.key)
	require.NoError(t, err)

	child, err := f.svc.AwaitExecution(f.env.Context(), res.ScheduledTransactionID, time.Second)
	require.NoError(t, err)
	integration.VerifySuccess(t, child)
	f.env.VerifyBalance(f.c.id, "", 200)
}

func TestSchedule_Expiry(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, &schedule.CreateRequest{
		Child:  f.jointTransfer(),
		Payer:  f.operator.id,
		Expiry: time.Minute,
	})

	f.env.AdvancePastExpiry(time.Minute)

	_, err := f.svc.AddSignature(f.env.Context(), res.ScheduleID, f.a.id, f.a.key)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrScheduleExpired)
	assert.Equal(t, types.ScheduleExpired, f.state(t, res.ScheduleID))

	child, err := f.svc.AwaitExecution(f.env.Context(), res.ScheduledTransactionID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusScheduleExpired, child.Status)
	f.env.VerifyBalance(f.c.id, "", 0)
}

func TestSchedule_Delete(t *testing.T) {
	t.Run("with admin key", func(t *testing.T) {
		f := newFixture(t)
		res := f.create(t, &schedule.CreateRequest{
			Child:    f.jointTransfer(),
			Payer:    f.operator.id,
			AdminKey: f.operator.key.PublicKeyHex(),
		})

		r, err := f.svc.DeleteSchedule(f.env.Context(), res.ScheduleID, f.operator.id, f.operator.key)
		require.NoError(t, err)
		integration.VerifySuccess(t, r)
		assert.Equal(t, types.ScheduleDeleted, f.state(t, res.ScheduleID))

		_, err = f.svc.AddSignature(f.env.Context(), res.ScheduleID, f.a.id, f.a.key)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrReceiptFailure)
		le, ok := types.IsLedgerError(err)
		require.True(t, ok)
		assert.Equal(t, types.StatusScheduleDeleted, le.Status)
	})

	t.Run("immutable without admin key", func(t *testing.T) {
		f := newFixture(t)
		res := f.create(t, &schedule.CreateRequest{Child: f.jointTransfer(), Payer: f.operator.id})

		_, err := f.svc.DeleteSchedule(f.env.Context(), res.ScheduleID, f.operator.id, f.operator.key)
		le, ok := types.IsLedgerError(err)
		require.True(t, ok)
		assert.Equal(t, types.StatusScheduleIsImmutable, le.Status)
		assert.Equal(t, types.ScheduleCreated, f.state(t, res.ScheduleID))
	})
}

func TestSchedule_InvalidRequests(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Freeze(nil)
	assert.ErrorIs(t, err, types.ErrInvalidParameters)

	_, err = f.svc.Freeze(&schedule.CreateRequest{Child: f.jointTransfer(), Payer: f.operator.id, Expiry: -time.Second})
	assert.ErrorIs(t, err, types.ErrInvalidParameters)

	_, err = f.svc.GetSchedule(f.env.Context(), "not-an-id")
	assert.ErrorIs(t, err, types.ErrInvalidParameters)

	plain := f.env.Sign(f.jointTransfer(), f.a.id, f.a.key)
	_, err = f.svc.SubmitFrozen(f.env.Context(), plain)
	assert.ErrorIs(t, err, types.ErrInvalidParameters)
}
