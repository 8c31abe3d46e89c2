package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Feed is a pub/sub change feed. Messages published while nobody is
// subscribed are lost; catch-up covers that gap.
type Feed struct {
	channel string
	pubsub  *redis.PubSub
	logger  *zap.Logger
}

// Listen subscribes to channel and waits for the subscription to be confirmed.
func (c *Client) Listen(ctx context.Context, channel string) (*Feed, error) {
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	c.logger.Info("Subscribed to change-feed channel", zap.String("channel", channel))
	return &Feed{channel: channel, pubsub: pubsub, logger: c.logger}, nil
}

// Next blocks until the next message payload or ctx is done.
func (f *Feed) Next(ctx context.Context) (string, error) {
	msg, err := f.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return "", fmt.Errorf("receive from %s: %w", f.channel, err)
	}
	return msg.Payload, nil
}

// Close unsubscribes.
func (f *Feed) Close() error {
	return f.pubsub.Close()
}
