package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Listener is a LISTEN/NOTIFY change feed on a dedicated connection.
type Listener struct {
	channel string
	logger  *zap.Logger

	mu   sync.Mutex
	conn *pgx.Conn
}

// Listen takes a connection out of the pool and issues LISTEN on channel.
// Notifications sent after Listen returns are buffered until Next reads them.
func (c *Client) Listen(ctx context.Context, channel string) (*Listener, error) {
	pooled, err := c.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	// A LISTENing connection must never be handed back to other pool users.
	conn := pooled.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	c.Logger.Info("Listening for change-feed notifications", zap.String("channel", channel))
	return &Listener{channel: channel, logger: c.Logger, conn: conn}, nil
}

// Next blocks until the next notification payload arrives or ctx is done.
func (l *Listener) Next(ctx context.Context) (string, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return "", fmt.Errorf("listener on %s is closed", l.channel)
	}

	n, err := conn.WaitForNotification(ctx)
	if err != nil {
		return "", fmt.Errorf("wait for notification on %s: %w", l.channel, err)
	}
	return n.Payload, nil
}

// Close unlistens and closes the dedicated connection.
func (l *Listener) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		l.logger.Debug("UNLISTEN failed", zap.String("channel", l.channel), zap.Error(err))
	}
	return conn.Close(ctx)
}
