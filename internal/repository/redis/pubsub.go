package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Rrens/chatvault/internal/notify"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultEventChannel carries session events between instances
const DefaultEventChannel = "chatvault:session-events"

// EventBus implements notify.Bus over Redis pub/sub
type EventBus struct {
	client   *Client
	channel  string
	handlers notify.Handlers

	once   sync.Once
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewEventBus creates a bus on channel. The subscription starts with the
// first handler.
func NewEventBus(client *Client, channel string) *EventBus {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &EventBus{client: client, channel: channel, done: make(chan struct{})}
}

func (b *EventBus) Publish(ctx context.Context, event notify.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *EventBus) Subscribe(h notify.Handler) func() {
	b.once.Do(b.start)
	return b.handlers.Add(h)
}

func (b *EventBus) start() {
	b.pubsub = b.client.rdb.Subscribe(context.Background(), b.channel)
	ch := b.pubsub.Channel()

	go func() {
		defer close(b.done)
		for msg := range ch {
			var event notify.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", b.channel).Msg("Dropping malformed session event")
				continue
			}
			b.handlers.Dispatch(event)
		}
	}()
}

// Close stops the subscription
func (b *EventBus) Close() error {
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	<-b.done
	return err
}
