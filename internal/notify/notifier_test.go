package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *recordingSender) Send(_ context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, message)
	return s.err
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestNotifier_RateLimit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	sender := &recordingSender{}
	n := New(zap.NewNop(), []Sender{sender}, WithClock(clock.now))
	ctx := context.Background()

	assert.True(t, n.Notify(ctx, "trade_open", "first", 10*time.Second))
	clock.t = clock.t.Add(5 * time.Second)
	assert.False(t, n.Notify(ctx, "trade_open", "second", 10*time.Second))
	assert.True(t, n.Notify(ctx, "trade_close", "other key", 10*time.Second))

	clock.t = clock.t.Add(5 * time.Second)
	assert.True(t, n.Notify(ctx, "trade_open", "third", 10*time.Second))

	assert.Equal(t, []string{"first", "other key", "third"}, sender.messages())
}

func TestNotifier_SenderErrorIsSwallowed(t *testing.T) {
	failing := &recordingSender{err: errors.New("boom")}
	ok := &recordingSender{}
	n := New(zap.NewNop(), []Sender{failing, ok})

	assert.True(t, n.Notify(context.Background(), "risk_pause", "paused", time.Minute))
	assert.Len(t, ok.messages(), 1)
}

func TestNotifier_DefaultsToLogSender(t *testing.T) {
	n := New(nil, nil)
	require.Len(t, n.senders, 1)
	assert.Equal(t, "log", n.senders[0].Name())
	assert.True(t, n.Notify(context.Background(), "k", "hello", time.Minute))
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got["text"] == "fail" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL

	require.NoError(t, s.Send(context.Background(), "[BTC/USDT] BUY"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "[BTC/USDT] BUY", got["text"])

	err := s.Send(context.Background(), "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSenders(t *testing.T) {
	assert.Empty(t, Senders("", "42"))
	assert.Empty(t, Senders("token", ""))
	require.Len(t, Senders("token", "42"), 1)
}
