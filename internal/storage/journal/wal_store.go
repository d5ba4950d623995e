// Package journal keeps the trading loop's crash-recovery log in a WAL.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/ml"
	"go.uber.org/zap"
)

const (
	segmentLimit = 100
	maxSegments  = 10
	dirPerm      = 0o755

	stateKey          = "bot_state"
	orderIntentPrefix = "order_intent_"
)

// Order intent statuses.
const (
	IntentStatusPending = "pending"
	IntentStatusDone    = "done"
	IntentStatusFailed  = "failed"
)

// BotState is the loop state needed to resume after a restart.
type BotState struct {
	Positions     map[string]domain.Position `json:"positions"`
	Paused        bool                       `json:"paused"`
	LastProcessed map[string]time.Time       `json:"last_processed"`
	LastTrained   map[string]time.Time       `json:"last_trained,omitempty"`
	Model         *ml.Snapshot               `json:"model,omitempty"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// OrderIntent brackets a live order so an interrupted submission is visible on restart.
type OrderIntent struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Symbol   string          `json:"symbol"`
	Side     domain.Side     `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
	Error    string          `json:"error,omitempty"`
}

// WALStore persists bot state and order intents.
type WALStore struct {
	wal     *gowal.Wal
	mu      sync.Mutex
	logger  *zap.Logger
	state   *BotState
	intents map[string]*OrderIntent
	order   []string
}

// NewWALStore opens the journal in dir and replays it.
func NewWALStore(dir string, logger *zap.Logger) (*WALStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure journal directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init journal WAL")
	}

	s := &WALStore{
		wal:     wal,
		logger:  logger,
		intents: make(map[string]*OrderIntent),
	}
	s.replay()

	return s, nil
}

func (s *WALStore) replay() {
	for msg := range s.wal.Iterator() {
		switch {
		case msg.Key == stateKey:
			var st BotState
			if err := json.Unmarshal(msg.Value, &st); err != nil {
				s.logger.Error("failed to unmarshal bot state", zap.Error(err))
				continue
			}
			s.state = &st
		case strings.HasPrefix(msg.Key, orderIntentPrefix):
			var intent OrderIntent
			if err := json.Unmarshal(msg.Value, &intent); err != nil {
				s.logger.Error("failed to unmarshal order intent", zap.Error(err), zap.String("key", msg.Key))
				continue
			}
			if _, ok := s.intents[intent.ID]; !ok {
				s.order = append(s.order, intent.ID)
			}
			intentCopy := intent
			s.intents[intent.ID] = &intentCopy
		}
	}
}

// Restore returns the latest saved state (nil when none) and intents that never completed.
func (s *WALStore) Restore() (*BotState, []OrderIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []OrderIntent
	for _, id := range s.order {
		if intent := s.intents[id]; intent.Status == IntentStatusPending {
			pending = append(pending, *intent)
		}
	}

	if s.state == nil {
		return nil, pending
	}
	st := *s.state
	return &st, pending
}

// SaveState appends the loop state.
func (s *WALStore) SaveState(st BotState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(stateKey, st); err != nil {
		return err
	}
	s.state = &st
	return nil
}

// Prepare records a pending intent before the order is sent.
func (s *WALStore) Prepare(symbol string, side domain.Side, quantity, price decimal.Decimal, at time.Time) (*OrderIntent, error) {
	intent := &OrderIntent{
		ID:       uuid.New().String(),
		Status:   IntentStatusPending,
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Time:     at,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistIntent(intent); err != nil {
		return nil, err
	}
	s.intents[intent.ID] = intent
	s.order = append(s.order, intent.ID)
	return intent, nil
}

// MarkDone completes an intent.
func (s *WALStore) MarkDone(intent *OrderIntent) error {
	if intent == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	intent.Status = IntentStatusDone
	intent.Error = ""
	return s.persistIntent(intent)
}

// MarkFailed records why an intent failed.
func (s *WALStore) MarkFailed(intent *OrderIntent, cause error) error {
	if intent == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	intent.Status = IntentStatusFailed
	intent.Error = ""
	if cause != nil {
		intent.Error = cause.Error()
	}
	return s.persistIntent(intent)
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

func (s *WALStore) persistIntent(intent *OrderIntent) error {
	return s.write(fmt.Sprintf("%s%s", orderIntentPrefix, intent.ID), intent)
}

func (s *WALStore) write(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return errors.Wrapf(domain.ErrPersistenceFailure, "write %s: %v", key, err)
	}
	return nil
}
