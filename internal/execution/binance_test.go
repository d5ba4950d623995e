package execution

import (
	"context"
	"regexp"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewClientOrderID(t *testing.T) {
	re := regexp.MustCompile(`^bot-[0-9a-f]{16}$`)

	a, b := NewClientOrderID(), NewClientOrderID()
	assert.Regexp(t, re, a)
	assert.Regexp(t, re, b)
	assert.NotEqual(t, a, b)
}

func TestFloorToStep(t *testing.T) {
	tests := []struct {
		name string
		v    string
		step string
		want string
	}{
		{name: "floors to step", v: "0.123456", step: "0.001", want: "0.123"},
		{name: "exact multiple", v: "1.5", step: "0.5", want: "1.5"},
		{name: "below step", v: "0.0004", step: "0.001", want: "0"},
		{name: "zero step keeps value", v: "0.123456", step: "0", want: "0.123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := floorToStep(decimal.RequireFromString(tt.v), decimal.RequireFromString(tt.step))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("connection reset")))
	assert.False(t, isTransient(&common.APIError{Code: -1013, Message: "filter failure"}))
	assert.False(t, isTransient(errors.Wrap(&common.APIError{Code: -2010}, "create order")))
	assert.False(t, isTransient(context.Canceled))
}

func TestToRaw(t *testing.T) {
	raw := toRaw(struct {
		OrderID int64  `json:"orderId"`
		Status  string `json:"status"`
	}{OrderID: 7, Status: "FILLED"})

	assert.Equal(t, map[string]any{"orderId": float64(7), "status": "FILLED"}, raw)
}
