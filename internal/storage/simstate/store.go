// Package simstate persists the paper wallet so restarts keep balances.
package simstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const defaultFileName = "wallet.json"

// Store keeps paper wallet balances in a single JSON file.
type Store struct {
	path string
}

// NewStore creates a wallet state store inside dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("state dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create wallet state dir")
	}

	return &Store{path: filepath.Join(dir, defaultFileName)}, nil
}

// State represents all persisted wallet data.
type State struct {
	Balances  map[string]string `json:"balances"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewState encodes balances for storage.
func NewState(balances map[string]decimal.Decimal, at time.Time) State {
	state := State{Balances: make(map[string]string, len(balances)), UpdatedAt: at}
	for asset, qty := range balances {
		state.Balances[asset] = qty.String()
	}
	return state
}

// Decode parses stored balances.
func (s State) Decode() (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal, len(s.Balances))
	for asset, raw := range s.Balances {
		if raw == "" {
			balances[asset] = decimal.Zero
			continue
		}
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s balance", asset)
		}
		balances[asset] = qty
	}
	return balances, nil
}

// Load reads wallet state from disk. A missing file yields nil state.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read wallet state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode wallet state")
	}

	return &state, nil
}

// Save writes wallet state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode wallet state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write wallet state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist wallet state")
	}

	return nil
}
