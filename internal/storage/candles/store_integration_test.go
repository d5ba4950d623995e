//go:build integration

package candles

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tradeit/internal/domain"
)

// To run: DATABASE_URL=postgres://... go test -tags=integration ./internal/storage/candles/
func TestStore_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx := context.Background()
	s, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	symbol := "TEST" + time.Now().Format("150405") + "/USDT"
	start := time.Now().UTC().Truncate(time.Hour).Add(-3 * time.Hour)

	bars := make([]domain.Bar, 3)
	for i := range bars {
		open := start.Add(time.Duration(i) * time.Hour)
		bars[i] = domain.Bar{
			OpenTime:  open,
			Open:      decimal.NewFromInt(int64(100 + i)),
			High:      decimal.NewFromInt(int64(101 + i)),
			Low:       decimal.NewFromInt(int64(99 + i)),
			Close:     decimal.RequireFromString("100.5").Add(decimal.NewFromInt(int64(i))),
			Volume:    decimal.NewFromInt(10),
			CloseTime: open.Add(time.Hour - time.Millisecond),
		}
	}

	require.NoError(t, s.Store(ctx, symbol, "1h", bars))
	require.NoError(t, s.Store(ctx, symbol, "1h", bars), "duplicates are ignored")

	got, err := s.Fetch(ctx, symbol, "1h", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].OpenTime.Equal(bars[1].OpenTime), "latest window, oldest first")
	assert.True(t, got[1].Close.Equal(decimal.RequireFromString("102.5")))
}
