package main

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// stats are shared by all client goroutines.
type stats struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64
}

type snapshot struct {
	Connected, ConnectErrs, StreamErrs, Events int64
}

func (s *stats) snapshot() snapshot {
	return snapshot{
		Connected:   s.connected.Load(),
		ConnectErrs: s.connectErrs.Load(),
		StreamErrs:  s.streamErrs.Load(),
		Events:      s.events.Load(),
	}
}

// streamSSE holds one /status/stream connection open and counts status events.
// Heartbeat comments are ignored.
func streamSSE(ctx context.Context, client *http.Client, url string, st *stats) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		st.connectErrs.Add(1)
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		st.connectErrs.Add(1)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		st.connectErrs.Add(1)
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	st.connected.Add(1)
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			st.streamErrs.Add(1)
			return err
		}
		if strings.HasPrefix(line, "data:") {
			st.events.Add(1)
		}
	}
}

// streamWS holds one /status/ws connection open and counts status frames.
func streamWS(ctx context.Context, url string, st *stats) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		st.connectErrs.Add(1)
		return err
	}
	st.connected.Add(1)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			st.streamErrs.Add(1)
			return err
		}
		st.events.Add(1)
	}
}
