package simnet

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

func newHTTPServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(f.ledger, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func newLedgerClient(t *testing.T, endpoint string, protocol client.Protocol) *client.LedgerClient {
	t.Helper()
	lc, err := client.NewLedgerClient(&client.Config{
		Endpoint: endpoint,
		Protocol: protocol,
		Timeout:  5,
		Retry:    &client.RetryConfig{MaxRetries: 0},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lc.Close() })
	return lc
}

func TestServer_HTTP(t *testing.T) {
	f := newFixture(t, Config{})
	alice, aliceKey := f.account(1, 1000)
	bob, bobKey := f.account(2, 0)
	lc := newLedgerClient(t, newHTTPServer(t, f).URL, client.ProtocolHTTP)
	ctx := context.Background()

	d := mustDraft(t)(tx.NewTransfer(
		tx.LineItem{Account: alice, Amount: -250},
		tx.LineItem{Account: bob, Amount: 250},
	))

	ack, err := lc.SubmitTransaction(ctx, f.sign(d, alice, aliceKey))
	require.NoError(t, err)
	assert.Equal(t, DefaultNodeAccountID, ack.NodeID)

	r, err := lc.GetReceipt(ctx, ack.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, r.Status)
	assert.Equal(t, ack.TransactionID, r.TransactionID)

	balance, err := lc.GetAccountBalance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance.Native)

	t.Run("precheck rejection keeps status", func(t *testing.T) {
		_, err := lc.SubmitTransaction(ctx, f.sign(d, alice, bobKey))
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrPrecheck)
		le, ok := types.IsLedgerError(err)
		require.True(t, ok)
		assert.Equal(t, types.StatusInvalidSignature, le.Status)
		assert.NotEmpty(t, le.TransactionID)
	})

	t.Run("transport failure surfaces as network error", func(t *testing.T) {
		f.ledger.FailNextSubmits(1)
		_, err := lc.SubmitTransaction(ctx, f.sign(d, alice, aliceKey))
		assert.ErrorIs(t, err, types.ErrNetwork)
		assert.True(t, client.IsRetryable(err))
	})

	t.Run("unknown schedule", func(t *testing.T) {
		_, err := lc.GetScheduleInfo(ctx, "0.0.4040")
		le, ok := types.IsLedgerError(err)
		require.True(t, ok)
		assert.Equal(t, types.StatusInvalidScheduleID, le.Status)
	})

	t.Run("subscribe requires websocket", func(t *testing.T) {
		_, err := lc.SubscribeTopic(ctx, "0.0.1", time.Time{})
		assert.True(t, client.IsClientError(err, client.ErrCodeNotSupported))
	})
}

func TestServer_PendingReceiptIsNull(t *testing.T) {
	f := newFixture(t, Config{SettleDelay: time.Minute})
	alice, aliceKey := f.account(1, 1000)
	bob, _ := f.account(2, 0)
	lc := newLedgerClient(t, newHTTPServer(t, f).URL, client.ProtocolHTTP)

	d := mustDraft(t)(tx.NewTransfer(
		tx.LineItem{Account: alice, Amount: -1},
		tx.LineItem{Account: bob, Amount: 1},
	))
	ack, err := lc.SubmitTransaction(context.Background(), f.sign(d, alice, aliceKey))
	require.NoError(t, err)

	r, err := lc.GetReceipt(context.Background(), ack.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomePending, r.Outcome())
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, Config{})
	srv := newHTTPServer(t, f)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_WebSocketTopicSubscription(t *testing.T) {
	f := newFixture(t, Config{})
	alice, aliceKey := f.account(1, 1000)
	lc := newLedgerClient(t, newHTTPServer(t, f).URL, client.ProtocolWebSocket)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	create := mustDraft(t)(tx.NewTopicCreate("events", ""))
	ack, err := lc.SubmitTransaction(ctx, f.sign(create, alice, aliceKey))
	require.NoError(t, err)
	r, err := lc.GetReceipt(ctx, ack.TransactionID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, r.Status)

	messages, err := lc.SubscribeTopic(ctx, r.TopicID, time.Time{})
	require.NoError(t, err)

	for _, text := range []string{"one", "two"} {
		msg := mustDraft(t)(tx.NewTopicMessage(r.TopicID, []byte(text)))
		ack, err := lc.SubmitTransaction(ctx, f.sign(msg, alice, aliceKey))
		require.NoError(t, err)
		_, err = lc.GetReceipt(ctx, ack.TransactionID)
		require.NoError(t, err)
	}

	for i, want := range []string{"one", "two"} {
		select {
		case msg, ok := <-messages:
			require.True(t, ok)
			assert.Equal(t, uint64(i+1), msg.SequenceNumber)
			assert.Equal(t, want, string(msg.Contents))
			assert.Equal(t, r.TopicID, msg.TopicID)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for topic notification")
		}
	}
}

func TestServer_GRPC(t *testing.T) {
	f := newFixture(t, Config{})
	alice, _ := f.account(1, 777)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := NewServer(f.ledger, nil).NewGRPCServer()
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	lc := newLedgerClient(t, lis.Addr().String(), client.ProtocolGRPC)

	balance, err := lc.GetAccountBalance(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(777), balance.Native)

	_, err = lc.GetAccountBalance(context.Background(), "0.0.5555")
	le, ok := types.IsLedgerError(err)
	require.True(t, ok)
	assert.Equal(t, types.StatusInvalidAccountID, le.Status)
}
