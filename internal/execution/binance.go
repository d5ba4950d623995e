package execution

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/pkg/retrier"
	"go.uber.org/zap"
)

const clientOrderPrefix = "bot-"

// precision is the exchange's quantity step and price tick for a symbol.
type precision struct {
	step decimal.Decimal
	tick decimal.Decimal
}

// BinanceClient places spot market orders on Binance.
type BinanceClient struct {
	client  *binance.Client
	retrier *retrier.Retrier
	logger  *zap.Logger

	mu      sync.Mutex
	markets map[string]precision
}

// NewBinanceClient creates a Binance spot client. testnet switches every
// go-binance client in the process to the testnet endpoints.
func NewBinanceClient(apiKey, apiSecret string, testnet bool, logger *zap.Logger) *BinanceClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	binance.UseTestnet = testnet

	c := &BinanceClient{
		client:  binance.NewClient(apiKey, apiSecret),
		logger:  logger,
		markets: make(map[string]precision),
	}
	c.retrier = retrier.New(
		retrier.WithRetryIf(isTransient),
		retrier.WithOnRetry(func(attempt int, err error) {
			logger.Warn("binance call failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
	return c
}

// Native exposes the underlying go-binance client.
func (c *BinanceClient) Native() *binance.Client {
	return c.client
}

// CreateOrder submits a market order with quantity floored to the symbol's lot step.
func (c *BinanceClient) CreateOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (*OrderResult, error) {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return nil, err
	}

	prec, err := c.precisionFor(ctx, pair)
	if err != nil {
		return nil, err
	}
	qty := floorToStep(quantity, prec.step)
	if !qty.IsPositive() {
		return nil, errors.Wrapf(domain.ErrInvalidQuantity, "%s below lot step %s", quantity.String(), prec.step.String())
	}

	sideType := binance.SideTypeBuy
	if side == domain.SideSell {
		sideType = binance.SideTypeSell
	}
	clientOrderID := NewClientOrderID()

	resp, err := retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (*binance.CreateOrderResponse, error) {
		return c.client.NewCreateOrderService().Symbol(pair.Symbol()).
			Side(sideType).Type(binance.OrderTypeMarket).
			Quantity(qty.String()).
			NewClientOrderID(clientOrderID).
			Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create binance order")
	}

	executed, _ := decimal.NewFromString(resp.ExecutedQuantity)
	quote, _ := decimal.NewFromString(resp.CummulativeQuoteQuantity)

	avg := floorToStep(price, prec.tick)
	if executed.IsPositive() && quote.IsPositive() {
		avg = quote.Div(executed)
	}

	fee := decimal.Zero
	for _, f := range resp.Fills {
		if f.CommissionAsset != pair.Quote {
			continue
		}
		if commission, err := decimal.NewFromString(f.Commission); err == nil {
			fee = fee.Add(commission)
		}
	}

	return &OrderResult{
		ClientOrderID:    clientOrderID,
		ExecutedQuantity: executed,
		AvgPrice:         avg,
		Fee:              fee,
		Raw:              toRaw(resp),
	}, nil
}

// Balances returns free balances of every non-zero asset.
func (c *BinanceClient) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	account, err := retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (*binance.Account, error) {
		return c.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get binance account balance")
	}

	out := make(map[string]decimal.Decimal)
	for _, balance := range account.Balances {
		free, err := decimal.NewFromString(balance.Free)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s balance", balance.Asset)
		}
		if free.IsPositive() {
			out[balance.Asset] = free
		}
	}
	return out, nil
}

func (c *BinanceClient) precisionFor(ctx context.Context, pair domain.Pair) (precision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.markets[pair.Symbol()]; ok {
		return p, nil
	}

	info, err := retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (*binance.ExchangeInfo, error) {
		return c.client.NewExchangeInfoService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return precision{}, errors.Wrapf(err, "load exchange info for %s", pair.Symbol())
	}

	var p precision
	for _, s := range info.Symbols {
		if s.Symbol != pair.Symbol() {
			continue
		}
		if lot := s.LotSizeFilter(); lot != nil {
			p.step, _ = decimal.NewFromString(lot.StepSize)
		}
		if pf := s.PriceFilter(); pf != nil {
			p.tick, _ = decimal.NewFromString(pf.TickSize)
		}
	}

	c.markets[pair.Symbol()] = p
	return p, nil
}

// NewClientOrderID returns a fresh "bot-" prefixed id with 16 hex characters.
func NewClientOrderID() string {
	id := uuid.New()
	return clientOrderPrefix + hex.EncodeToString(id[:])[:16]
}

// floorToStep rounds v down to a multiple of step. A zero step leaves v unchanged.
func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// isTransient reports whether err is worth retrying. Exchange rejections are final.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *common.APIError
	return !errors.As(err, &apiErr)
}

func toRaw(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
