package events

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatusChannel is the pub/sub channel status events are mirrored to.
const StatusChannel = "tradeit:status"

// Bus is a minimal pub/sub transport.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// RedisBus implements Bus on Redis Pub/Sub.
type RedisBus struct {
	rdb *redis.Client
}

// DialRedis connects to url (redis://[:password@]host:port/db) and verifies it with PING.
func DialRedis(ctx context.Context, url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return &RedisBus{rdb: rdb}, nil
}

// Publish sends payload to channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "redis publish %s", channel)
	}
	return nil
}

// Subscribe returns payloads published to channel until ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := b.rdb.Subscribe(ctx, channel)
	// wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrapf(err, "redis subscribe %s", channel)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the client.
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

// Forward mirrors every event published on src to the bus until ctx is done.
// Publish errors are logged and the event is dropped.
func Forward(ctx context.Context, src *StatusBroadcaster, bus Bus, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch := src.Subscribe()
	defer src.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(e)
			if err != nil {
				logger.Error("marshal status event", zap.Error(err))
				continue
			}
			if err := bus.Publish(ctx, StatusChannel, payload); err != nil {
				logger.Warn("failed to forward status event", zap.Error(err))
			}
		}
	}
}

// Relay republishes events received from the bus on dst until ctx is done.
func Relay(ctx context.Context, bus Bus, dst *StatusBroadcaster, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	in, err := bus.Subscribe(ctx, StatusChannel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-in:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("status subscription closed")
			}
			var e StatusEvent
			if err := json.Unmarshal(payload, &e); err != nil {
				logger.Warn("skipping malformed status event", zap.Error(err))
				continue
			}
			dst.Publish(e)
		}
	}
}
