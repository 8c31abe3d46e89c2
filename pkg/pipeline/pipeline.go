package pipeline

import (
	"context"
	"fmt"

	"github.com/congruity-bot/congruity/pkg/concordium"
	"github.com/congruity-bot/congruity/pkg/delivery"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// Feed yields raw change-feed payloads in emission order.
type Feed interface {
	Next(ctx context.Context) (string, error)
}

// Backlog replays account updates committed after a cursor, ascending by index id.
type Backlog interface {
	AccountUpdatesSince(ctx context.Context, cursor int64) ([]concordium.RawAccountUpdate, error)
}

// CursorReader loads the committed cursor.
type CursorReader interface {
	Load(ctx context.Context) (int64, bool, error)
}

// Subscribers resolves the chats watching an account.
type Subscribers interface {
	SubscriberIDs(ctx context.Context, account concordium.AccountAddress) ([]int64, error)
}

// Matcher renders the notification for an update, if any.
type Matcher interface {
	Match(update concordium.AccountUpdate) (string, bool)
}

// Sink accepts delivery items, blocking while full.
type Sink interface {
	Enqueue(ctx context.Context, item delivery.Item) error
}

// Pipeline replays the backlog since the committed cursor and then follows the
// live change feed, turning every update into a delivery item.
type Pipeline struct {
	feed        Feed
	backlog     Backlog
	cursor      CursorReader
	subscribers Subscribers
	matcher     Matcher
	sink        Sink
	logger      *zap.Logger

	// ids replayed by catch-up; the feed may emit them again while catch-up runs
	caughtUp mapset.Set[int64]
}

// New wires a pipeline. feed must already be listening so nothing emitted
// during catch-up is missed.
func New(feed Feed, backlog Backlog, cursor CursorReader, subscribers Subscribers, matcher Matcher, sink Sink, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		feed:        feed,
		backlog:     backlog,
		cursor:      cursor,
		subscribers: subscribers,
		matcher:     matcher,
		sink:        sink,
		logger:      logger,
		caughtUp:    mapset.NewThreadUnsafeSet[int64](),
	}
}

// Run catches up and then consumes the live feed until ctx is done. Store,
// cache and feed errors are returned; a malformed update is logged and skipped.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.CatchUp(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return p.Live(ctx)
}

// CatchUp processes every backlog update after the committed cursor. Without
// a committed cursor there is no baseline and nothing is replayed.
func (p *Pipeline) CatchUp(ctx context.Context) error {
	cursor, ok, err := p.cursor.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if !ok {
		p.logger.Info("No committed cursor, skipping catch-up")
		return nil
	}
	rows, err := p.backlog.AccountUpdatesSince(ctx, cursor)
	if err != nil {
		return fmt.Errorf("load backlog since %d: %w", cursor, err)
	}
	p.logger.Info("Catching up", zap.Int64("cursor", cursor), zap.Int("updates", len(rows)))

	for _, row := range rows {
		p.caughtUp.Add(row.IndexID)
		update, err := row.Decode()
		if err != nil {
			p.logger.Warn("Skipping undecodable backlog update", zap.Int64("index_id", row.IndexID), zap.Error(err))
			continue
		}
		if err := p.process(ctx, update); err != nil {
			return err
		}
	}

	p.logger.Info("Catch-up complete", zap.Int("replayed", p.caughtUp.Cardinality()))
	return nil
}

// Live consumes the change feed until ctx is done.
func (p *Pipeline) Live(ctx context.Context) error {
	p.logger.Info("Following live change feed")
	for {
		payload, err := p.feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read change feed: %w", err)
		}

		update, err := concordium.DecodeFeedPayload(payload)
		if err != nil {
			p.logger.Warn("Skipping undecodable change-feed payload", zap.Int64("index_id", update.IndexID), zap.Error(err))
			continue
		}
		// Only ids the backlog returned are duplicates. A lower id that
		// committed late never reached the backlog and must still be handled.
		if p.caughtUp.Contains(update.IndexID) {
			p.caughtUp.Remove(update.IndexID)
			p.logger.Debug("Skipping update already handled by catch-up", zap.Int64("index_id", update.IndexID))
			continue
		}

		if err := p.process(ctx, update); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// process enqueues one item per update, with no recipients when nobody is
// subscribed or nothing matched, so the cursor still advances past it.
func (p *Pipeline) process(ctx context.Context, update concordium.AccountUpdate) error {
	item := delivery.Item{IndexID: update.IndexID}

	ids, err := p.subscribers.SubscriberIDs(ctx, update.Account)
	if err != nil {
		return fmt.Errorf("lookup subscribers of %s: %w", update.Account, err)
	}
	if len(ids) > 0 {
		if text, ok := p.matcher.Match(update); ok {
			item.Recipients = ids
			item.Text = text
			p.logger.Debug("Matched account update",
				zap.Int64("index_id", update.IndexID),
				zap.Stringer("account", update.Account),
				zap.Int("recipients", len(ids)))
		}
	}

	if err := p.sink.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue %d: %w", update.IndexID, err)
	}
	return nil
}
