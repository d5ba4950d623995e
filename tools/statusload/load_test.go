package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/events"
	"github.com/vadiminshakov/tradeit/internal/storage/state"
	"github.com/vadiminshakov/tradeit/internal/web"
)

func newAPI(t *testing.T) (*httptest.Server, *events.StatusBroadcaster) {
	t.Helper()
	store, err := state.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	b := events.NewStatusBroadcaster(8)
	b.Publish(events.StatusEvent{Mode: "paper", Equity: "10000.00"})
	srv := httptest.NewServer(web.NewServer("", store, nil, domain.ModePaper, b, nil, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, b
}

func TestRun_SSE(t *testing.T) {
	srv, b := newAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	st := &stats{}

	done := make(chan struct{})
	go func() {
		run(ctx, srv.URL+"/status/stream", 3, 0, st)
		close(done)
	}()

	require.Eventually(t, func() bool { return st.events.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	b.Publish(events.StatusEvent{Mode: "paper", Equity: "10001.00"})
	require.Eventually(t, func() bool { return st.events.Load() == 6 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	s := st.snapshot()
	assert.Equal(t, int64(3), s.Connected)
	assert.Zero(t, s.ConnectErrs)
	assert.Zero(t, s.StreamErrs)
}

func TestRun_WebSocket(t *testing.T) {
	srv, _ := newAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	st := &stats{}

	done := make(chan struct{})
	go func() {
		run(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/status/ws", 2, 0, st)
		close(done)
	}()

	require.Eventually(t, func() bool { return st.events.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, st.snapshot().StreamErrs)
}

func TestRun_ConnectErrors(t *testing.T) {
	srv, _ := newAPI(t)
	st := &stats{}
	run(context.Background(), srv.URL+"/missing", 2, 0, st)
	assert.Equal(t, int64(2), st.snapshot().ConnectErrs)
}
