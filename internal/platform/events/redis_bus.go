// Package events fans queue notifications out across server replicas over
// Redis pub/sub. Each replica publishes to one channel and forwards what it
// receives to its local websocket hub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medroute/medroute/internal/platform/websocket"
)

const DefaultChannel = "medroute:queue-events"

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisBus implements websocket.EventPublisher. Publish goes to Redis; Start
// relays everything on the channel, including this replica's own messages,
// to local.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   websocket.EventPublisher
	logger  zerolog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisBus(client *redis.Client, channel string, local websocket.EventPublisher, logger zerolog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With().Str("component", "event-bus").Str("channel", channel).Logger(),
	}
}

func (b *RedisBus) Publish(ctx context.Context, event websocket.Event) error {
	if event.Topic == "" {
		event.Topic = websocket.FacilityTopic(event.FacilityID)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Start subscribes and waits for Redis to confirm the subscription before
// returning, so events published after Start are not missed. Relaying stops
// when ctx is cancelled or Close is called.
func (b *RedisBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return fmt.Errorf("event bus already started")
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.pubsub = pubsub
	b.done = make(chan struct{})

	go b.relay(ctx, pubsub, b.done)
	b.logger.Info().Msg("subscribed to queue events")
	return nil
}

func (b *RedisBus) relay(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event websocket.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			if err := b.local.Publish(ctx, event); err != nil {
				b.logger.Warn().Err(err).Str("request_id", event.RequestID).Msg("local delivery failed")
			}
		}
	}
}

// Close unsubscribes and waits for the relay goroutine to exit.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	if err != nil {
		return fmt.Errorf("close subscription: %w", err)
	}
	return nil
}
