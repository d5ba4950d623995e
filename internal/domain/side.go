package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// Side order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide parses a case-insensitive side string.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", errors.Wrapf(ErrInvalidSide, "%q", s)
	}
}

// String returns the string representation of the side.
func (s Side) String() string {
	return string(s)
}
