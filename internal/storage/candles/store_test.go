package candles

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBar(t *testing.T) {
	open := time.Date(2024, 5, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))

	bar, err := newBar(open, open.Add(time.Hour), "1", "2", "0.5", "1.5", "100")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, bar.OpenTime.Location())
	assert.True(t, bar.Close.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, bar.Volume.Equal(decimal.NewFromInt(100)))

	_, err = newBar(open, open, "1", "2", "x", "1.5", "100")
	assert.Error(t, err)
}
