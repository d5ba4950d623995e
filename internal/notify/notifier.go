// Package notify delivers operator messages with a per-key rate limit.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, message string) error
	Name() string
}

// Notifier rate-limits messages per key and forwards them to its senders.
// Delivery is fire-and-forget: sender failures are logged, never returned.
type Notifier struct {
	senders  []Sender
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
	lastSent map[string]time.Time
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// New creates a notifier. Without senders messages are only logged.
func New(logger *zap.Logger, senders []Sender, opts ...Option) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(senders) == 0 {
		senders = []Sender{NewLogSender(logger)}
	}

	n := &Notifier{
		senders:  senders,
		logger:   logger.With(zap.String("component", "notifier")),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends msg unless a message with the same key went out less than
// minInterval ago. Returns true when the message was dispatched.
func (n *Notifier) Notify(ctx context.Context, key, msg string, minInterval time.Duration) bool {
	now := n.now()

	n.mu.Lock()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < minInterval {
		n.mu.Unlock()
		n.logger.Debug("notification rate limited", zap.String("key", key))
		return false
	}
	n.lastSent[key] = now
	n.mu.Unlock()

	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.Warn("notification delivery failed",
				zap.String("sender", s.Name()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return true
}

// LogSender writes messages to the log; used when no chat is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, message string) error {
	s.logger.Info("notification", zap.String("message", message))
	return nil
}

// Name implements Sender.
func (s *LogSender) Name() string { return "log" }
