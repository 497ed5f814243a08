package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	relayRetryBase = 500 * time.Millisecond
	relayRetryMax  = 30 * time.Second
)

// RedisPublisher puts messages on a Redis pub/sub channel so every instance's
// RedisRelay can deliver them to its own websocket clients.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher writing to the given Redis channel
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return errors.Wrapf(err, "failed to publish %s to redis channel %s", msg.Event, p.channel)
	}
	return nil
}

// RedisRelay subscribes to the broadcast channel and feeds a local Hub
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger

	// retryBase is the first delay between subscribe attempts
	retryBase time.Duration
}

// NewRedisRelay creates a relay for hub
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, hub: hub, logger: logger, retryBase: relayRetryBase}
}

// Run relays messages until ctx is canceled. It returns nil on cancellation.
// While Redis is unreachable the subscription is retried with capped
// exponential backoff.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub, err := r.subscribe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer sub.Close()
	r.logger.Info("Broadcast relay subscribed", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn("Discarding malformed broadcast message", zap.Error(err))
				continue
			}
			r.hub.Broadcast(msg)
		}
	}
}

func (r *RedisRelay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	var sub *redis.PubSub
	backoff := retry.WithCappedDuration(relayRetryMax, retry.NewExponential(r.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s := r.client.Subscribe(ctx, r.channel)
		// wait for the subscription to be confirmed
		if _, err := s.Receive(ctx); err != nil {
			s.Close()
			if ctx.Err() != nil {
				return err
			}
			r.logger.Warn("Broadcast relay cannot subscribe, retrying",
				zap.String("channel", r.channel),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		sub = s
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to redis channel %s", r.channel)
	}
	return sub, nil
}
