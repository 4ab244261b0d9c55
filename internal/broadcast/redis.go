package broadcast

import (
	"bitwise74/pulsestream/internal/metrics"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// RedisBroadcaster fans events out through Redis pub/sub so every API
// instance reaches the connections it holds
type RedisBroadcaster struct {
	client *redis.Client
	buffer int
}

func NewRedisBroadcaster(cfg RedisConfig) (*RedisBroadcaster, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed, %w", err)
	}

	zap.L().Info("Connected to Redis broadcaster", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))

	return newRedisBroadcaster(client), nil
}

func newRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{
		client: client,
		buffer: defaultBuffer,
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ownerID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event, %w", err)
	}

	if err := b.client.Publish(ctx, Channel(ownerID), data).Err(); err != nil {
		metrics.BroadcastEventsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish event, %w", err)
	}

	metrics.BroadcastEventsTotal.WithLabelValues("published").Inc()
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, ownerID string) (*Subscription, error) {
	name := Channel(ownerID)
	ps := b.client.Subscribe(ctx, name)

	// Wait for the confirmation so nothing published after Subscribe
	// returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s, %w", name, err)
	}

	out := make(chan Event, b.buffer)
	done := make(chan struct{})
	msgs := ps.Channel()

	go func() {
		defer close(out)

		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					zap.L().Warn("Discarding malformed progress event", zap.String("channel", name), zap.Error(err))
					continue
				}

				select {
				case out <- ev:
				default:
					metrics.BroadcastEventsTotal.WithLabelValues("dropped").Inc()
					zap.L().Warn("Dropped progress event for slow subscriber", zap.String("video_id", ev.VideoID))
				}
			}
		}
	}()

	var once sync.Once
	return &Subscription{
		C: out,
		close: func() {
			once.Do(func() {
				close(done)
				if err := ps.Close(); err != nil {
					zap.L().Debug("Failed to close redis subscription", zap.Error(err))
				}
			})
		},
	}, nil
}

func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}
