package sse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the redis channel submission events travel on.
const DefaultChannel = "simlok:events"

// RedisBridge fans hub events out through redis pub/sub so every server instance
// delivers them to its own streams.
type RedisBridge struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

// NewRedisBridge wires hub to redis. Call Run to start receiving.
func NewRedisBridge(rdb *redis.Client, hub *Hub, channel string, logger *zap.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &RedisBridge{rdb: rdb, channel: channel, hub: hub, logger: logger.Named("sse.redis")}
	hub.SetPublisher(b)
	return b
}

// Publish implements Publisher.
func (b *RedisBridge) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Run relays received events into the local hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("subscribed", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("drop undecodable event", zap.Error(err))
				continue
			}
			b.hub.Broadcast(ev)
		}
	}
}
