// Command statusload opens many concurrent status stream clients against a
// running API and reports connection and event counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		targetURL   string
		connections int
		duration    time.Duration
		rampUp      time.Duration
	)
	flag.StringVar(&targetURL, "url", "http://localhost:8000/status/stream", "status stream URL (http for SSE, ws for websocket)")
	flag.IntVar(&connections, "conns", 1000, "number of concurrent connections to open")
	flag.DurationVar(&duration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread connection starts across this window")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}
	if rampUp == 0 && connections > 100 {
		// 1 second per 500 connections
		rampUp = max(time.Duration(connections/500)*time.Second, time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	logger.Info("starting status load",
		zap.String("url", targetURL), zap.Int("conns", connections),
		zap.Duration("duration", duration), zap.Duration("ramp", rampUp))

	st := &stats{}
	start := time.Now()
	go report(ctx, st, start, logger)

	run(ctx, targetURL, connections, rampUp, st)

	elapsed := max(time.Since(start), time.Millisecond)
	s := st.snapshot()
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d events=%d elapsed=%s events/s=%.2f\n",
		s.Connected, s.ConnectErrs, s.StreamErrs, s.Events,
		elapsed.Truncate(time.Millisecond), float64(s.Events)/elapsed.Seconds())
}

// run starts connections clients spread across rampUp and waits for all of them.
func run(ctx context.Context, url string, connections int, rampUp time.Duration, st *stats) {
	client := &http.Client{Transport: &http.Transport{
		MaxConnsPerHost:     connections + 100,
		MaxIdleConns:        connections + 100,
		MaxIdleConnsPerHost: connections + 100,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}}
	websocketMode := strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://")

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	var g errgroup.Group
	for i := 0; i < connections; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// per-connection failures are counted, not fatal
			if websocketMode {
				_ = streamWS(ctx, url, st)
			} else {
				_ = streamSSE(ctx, client, url, st)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func report(ctx context.Context, st *stats, start time.Time, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := st.snapshot()
			logger.Info("status",
				zap.Int64("connected", s.Connected),
				zap.Int64("connect_errs", s.ConnectErrs),
				zap.Int64("stream_errs", s.StreamErrs),
				zap.Int64("events", s.Events),
				zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
		}
	}
}
