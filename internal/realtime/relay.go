package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// relayEnvelope is the pub/sub payload shared between instances.
type relayEnvelope struct {
	Origin string `json:"origin"`
	Tiers  []Tier `json:"tiers"`
}

// RedisRelay fans pushes out to every instance subscribed to the same Redis channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	hub     *Hub
}

// NewRedisRelay builds a relay delivering remote pushes to hub.
func NewRedisRelay(client *redis.Client, prefix string, hub *Hub) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: prefix + ":realtime",
		origin:  uuid.NewString(),
		hub:     hub,
	}
}

// Publish implements Relay.
func (r *RedisRelay) Publish(ctx context.Context, tiers []Tier) error {
	encoded, err := json.Marshal(relayEnvelope{Origin: r.origin, Tiers: tiers})
	if err != nil {
		return fmt.Errorf("realtime: encode relay envelope: %w", err)
	}
	return r.client.Publish(ctx, r.channel, encoded).Err()
}

// Run delivers pushes from other instances until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(raw string) {
	var envelope relayEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		log.WithError(err).Warn("realtime: invalid relay envelope")
		return
	}
	if envelope.Origin == r.origin {
		return
	}
	r.hub.Emit(envelope.Tiers...)
}
