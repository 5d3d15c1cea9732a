package transcoding

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const wakeChannel = "reelhouse:transcoding:wake"

// Notifier wakes idle workers when a job is enqueued. Workers still poll, so
// a lost notification only delays a job until the next tick.
type Notifier interface {
	Notify(ctx context.Context, jobID string) error
	Subscribe(ctx context.Context) <-chan struct{}
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string) error { return nil }

func (NoopNotifier) Subscribe(context.Context) <-chan struct{} { return nil }

type RedisNotifier struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisNotifier(addr string, logger zerolog.Logger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", addr).Msg("connected to Redis for job wake-ups")
	return &RedisNotifier{client: client, logger: logger}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, jobID string) error {
	if err := n.client.Publish(ctx, wakeChannel, jobID).Err(); err != nil {
		return fmt.Errorf("publish wake-up: %w", err)
	}
	return nil
}

// Subscribe returns a channel that receives one signal per published job.
// Signals coalesce while the worker is busy. The channel closes with ctx.
func (n *RedisNotifier) Subscribe(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)
	sub := n.client.Subscribe(ctx, wakeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		n.logger.Warn().Err(err).Msg("wake-up subscription not confirmed")
	}

	go func() {
		defer close(wake)
		defer func() { _ = sub.Close() }()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}
	}()
	return wake
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
