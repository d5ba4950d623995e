package execution

import (
	"context"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/storage/journal"
	"github.com/vadiminshakov/tradeit/internal/wallet"
	"go.uber.org/zap"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (*OrderResult, error) {
	args := m.Called(ctx, symbol, side, quantity, price)
	res, _ := args.Get(0).(*OrderResult)
	return res, args.Error(1)
}

type balanceClient struct {
	mockClient
	balances map[string]decimal.Decimal
}

func (b *balanceClient) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return b.balances, nil
}

func newWallet(t *testing.T) *wallet.PaperWallet {
	t.Helper()
	w, err := wallet.New(map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10000)}, zap.NewNop())
	require.NoError(t, err)
	return w
}

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func TestRouter_PaperFill(t *testing.T) {
	w := newWallet(t)
	var got []domain.FillRecord

	r, err := NewRouter(domain.ModePaper, w, nil, zap.NewNop(),
		WithFillCallback(func(rec domain.FillRecord) { got = append(got, rec) }),
		WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	rec, err := r.ExecuteOrder(context.Background(), "BTC/USDT", domain.SideBuy, decimal.RequireFromString("0.1"), decimal.NewFromInt(20000))
	require.NoError(t, err)

	assert.Equal(t, domain.ModePaper, rec.Mode)
	assert.Equal(t, "BTC/USDT", rec.Symbol)
	assert.Equal(t, domain.SideBuy, rec.Side)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, rec.Price.Equal(decimal.NewFromInt(20000)))
	assert.True(t, rec.Fee.Equal(decimal.NewFromInt(2)))
	assert.True(t, rec.Equity.Equal(w.LastEquity()))
	assert.True(t, rec.Timestamp.Equal(fixedNow))
	require.Len(t, got, 1)
	assert.Equal(t, rec.Symbol, got[0].Symbol)
}

func TestRouter_PaperInsufficientBalanceSkipsCallback(t *testing.T) {
	w := newWallet(t)
	called := false

	r, err := NewRouter(domain.ModePaper, w, nil, nil,
		WithFillCallback(func(domain.FillRecord) { called = true }))
	require.NoError(t, err)

	_, err = r.ExecuteOrder(context.Background(), "BTC/USDT", domain.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(20000))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.False(t, called)
	assert.True(t, w.Balance("USDT").Equal(decimal.NewFromInt(10000)))
}

func TestRouter_LiveRequiresClient(t *testing.T) {
	_, err := NewRouter(domain.ModeLive, newWallet(t), nil, nil)
	assert.Error(t, err)
}

func TestRouter_LiveFill(t *testing.T) {
	client := &balanceClient{balances: map[string]decimal.Decimal{
		"USDT": decimal.NewFromInt(7990),
		"BTC":  decimal.RequireFromString("0.1"),
	}}
	qty, price := decimal.RequireFromString("0.1"), decimal.NewFromInt(20000)
	raw := map[string]any{"orderId": float64(42), "status": "FILLED"}
	client.On("CreateOrder", mock.Anything, "BTC/USDT", domain.SideBuy, qty, price).Return(&OrderResult{
		ClientOrderID:    "bot-0123456789abcdef",
		ExecutedQuantity: qty,
		AvgPrice:         decimal.NewFromInt(20010),
		Fee:              decimal.NewFromInt(2),
		Raw:              raw,
	}, nil).Once()

	j, err := journal.NewWALStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer j.Close()

	w := newWallet(t)
	var got domain.FillRecord
	r, err := NewRouter(domain.ModeLive, w, client, nil,
		WithJournal(j),
		WithFillCallback(func(rec domain.FillRecord) { got = rec }))
	require.NoError(t, err)

	rec, err := r.ExecuteOrder(context.Background(), "BTC/USDT", domain.SideBuy, qty, price)
	require.NoError(t, err)
	client.AssertExpectations(t)

	assert.Equal(t, domain.ModeLive, rec.Mode)
	assert.Equal(t, raw, got.Raw)
	assert.True(t, rec.Price.Equal(decimal.NewFromInt(20010)))
	assert.True(t, w.Balance("BTC").Equal(qty), "wallet mirrors exchange balances")

	_, pending := j.Restore()
	assert.Empty(t, pending)
}

func TestRouter_LiveFailure(t *testing.T) {
	client := &mockClient{}
	client.On("CreateOrder", mock.Anything, "BTC/USDT", domain.SideSell, mock.Anything, mock.Anything).
		Return(nil, &common.APIError{Code: -2010, Message: "insufficient balance"}).Once()

	j, err := journal.NewWALStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer j.Close()

	called := false
	r, err := NewRouter(domain.ModeLive, newWallet(t), client, nil,
		WithJournal(j),
		WithFillCallback(func(domain.FillRecord) { called = true }))
	require.NoError(t, err)

	_, err = r.ExecuteOrder(context.Background(), "BTC/USDT", domain.SideSell, decimal.NewFromInt(1), decimal.NewFromInt(20000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExecutionFailure))
	assert.False(t, called)

	_, pending := j.Restore()
	assert.Empty(t, pending, "failed intents are closed")
}

func TestRouter_LiveZeroFill(t *testing.T) {
	client := &mockClient{}
	qty, price := decimal.RequireFromString("0.5"), decimal.NewFromInt(100)
	client.On("CreateOrder", mock.Anything, "BTC/USDT", domain.SideBuy, qty, price).Return(&OrderResult{
		ClientOrderID:    "bot-00000000000000ff",
		ExecutedQuantity: decimal.Zero,
		AvgPrice:         decimal.Zero,
	}, nil).Once()

	j, err := journal.NewWALStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer j.Close()

	callbacks := 0
	r, err := NewRouter(domain.ModeLive, newWallet(t), client, nil,
		WithJournal(j),
		WithFillCallback(func(domain.FillRecord) { callbacks++ }))
	require.NoError(t, err)

	_, err = r.ExecuteOrder(context.Background(), "BTC/USDT", domain.SideBuy, qty, price)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionFailure)
	assert.Zero(t, callbacks)

	_, pending := j.Restore()
	assert.Empty(t, pending, "unfilled intents are closed as failed")
}

func TestRouter_LivePartialFill(t *testing.T) {
	client := &mockClient{}
	qty, price := decimal.RequireFromString("0.5"), decimal.NewFromInt(100)
	client.On("CreateOrder", mock.Anything, "BTC/USDT", domain.SideBuy, qty, price).Return(&OrderResult{
		ClientOrderID:    "bot-00000000000000aa",
		ExecutedQuantity: decimal.RequireFromString("0.2"),
		AvgPrice:         decimal.NewFromInt(101),
	}, nil).Once()

	var got domain.FillRecord
	r, err := NewRouter(domain.ModeLive, newWallet(t), client, nil,
		WithFillCallback(func(rec domain.FillRecord) { got = rec }))
	require.NoError(t, err)

	rec, err := r.ExecuteOrder(context.Background(), "BTC/USDT", domain.SideBuy, qty, price)
	require.NoError(t, err)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, got.Amount.Equal(rec.Amount))
	assert.True(t, rec.Price.Equal(decimal.NewFromInt(101)))
}
