// Package relay shares "queue changed" signals between server instances over Redis pub/sub,
// so a mutation handled by one instance refreshes viewers connected to another.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultChannel = "waitline:queue-changed"

type message struct {
	BusinessID int64  `json:"business_id"`
	Origin     string `json:"origin"`
}

// Relay publishes local changes and forwards remote ones to a notify callback.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	logger  zerolog.Logger
}

func New(client *redis.Client, channel string, logger *zerolog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger.With().Str("component", "relay").Logger(),
	}
}

// Origin identifies this instance on the channel.
func (r *Relay) Origin() string {
	return r.origin
}

// Publish announces that businessID changed locally.
func (r *Relay) Publish(ctx context.Context, businessID int64) error {
	data, err := json.Marshal(message{BusinessID: businessID, Origin: r.origin})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish change for business %d: %w", businessID, err)
	}
	return nil
}

// Run subscribes to the channel and calls notify for every change announced by another
// instance. It blocks until ctx is done.
func (r *Relay) Run(ctx context.Context, notify func(businessID int64)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Warn().Err(err).Msg("malformed relay message")
				continue
			}
			if m.Origin == r.origin || m.BusinessID <= 0 {
				continue
			}
			notify(m.BusinessID)
		}
	}
}
