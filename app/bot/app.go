package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/congruity-bot/congruity/pkg/chat"
	"github.com/congruity-bot/congruity/pkg/db/postgres"
	"github.com/congruity-bot/congruity/pkg/delivery"
	"github.com/congruity-bot/congruity/pkg/dialogue"
	"github.com/congruity-bot/congruity/pkg/logging"
	"github.com/congruity-bot/congruity/pkg/notify"
	"github.com/congruity-bot/congruity/pkg/pipeline"
	"github.com/congruity-bot/congruity/pkg/redis"
	"github.com/congruity-bot/congruity/pkg/rpc"
	"github.com/congruity-bot/congruity/pkg/subscription"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChangeFeed is a listening change feed that must be closed after use.
type ChangeFeed interface {
	pipeline.Feed
	Close() error
}

// App owns every client handle of the process.
type App struct {
	Config *Config
	Logger *zap.Logger

	Postgres *postgres.Client
	Redis    *redis.Client

	Store    *subscription.Store
	Backlog  *postgres.Backlog
	Cursor   *redis.Cursor
	Matcher  *notify.Matcher
	Queue    *delivery.Queue
	Worker   *delivery.Worker
	Telegram *chat.Telegram
	Handler  *Handler

	// Cron triggers periodic index reconciliation.
	Cron *cron.Cron

	// Server serves health probes and the Telegram webhook.
	Server *http.Server
}

// Initialize connects every dependency. Failures are fatal.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	pg, err := postgres.New(ctx, logging.Component(logger, "postgres"), cfg.PostgresURL, postgres.PoolConfigFromEnv("congruity"))
	if err != nil {
		logger.Fatal("Unable to connect to postgres", zap.Error(err))
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(); err != nil {
			logger.Fatal("Unable to migrate postgres", zap.Error(err))
		}
	}

	redisOpts, err := redis.Options()
	if err != nil {
		logger.Fatal("Invalid redis configuration", zap.Error(err))
	}
	rdb, err := redis.NewClient(ctx, logging.Component(logger, "redis"), redisOpts)
	if err != nil {
		logger.Fatal("Unable to connect to redis", zap.Error(err))
	}

	tg, err := chat.NewTelegram(ctx, logging.Component(logger, "telegram"), chat.TelegramOpts{Token: cfg.TelegramToken})
	if err != nil {
		logger.Fatal("Unable to connect to telegram", zap.Error(err))
	}

	var storage dialogue.Storage = dialogue.NewMemoryStorage()
	if cfg.DialogueStorage == DialogueRedis {
		storage = redis.NewDialogueStorage(rdb, cfg.DialogueTTL)
	}

	var balances rpc.BalanceClient
	if cfg.RPCURL != "" {
		balances = rpc.NewHTTPWithOpts(rpc.Opts{Endpoints: []string{cfg.RPCURL}, Token: cfg.RPCToken})
	} else {
		logger.Warn("CONCORDIUM_RPC_URL is not set, /balance is disabled")
	}

	store := subscription.NewStore(
		postgres.NewSubscriptions(pg),
		redis.NewSubscriberIndex(rdb),
		logging.Component(logger, "subscriptions"),
	)
	cursor := redis.NewCursor(rdb)
	queue := delivery.NewQueue(cfg.QueueSize)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Postgres: pg,
		Redis:    rdb,
		Store:    store,
		Backlog:  postgres.NewBacklog(pg),
		Cursor:   cursor,
		Matcher:  notify.NewMatcher(notify.NewRenderer(cfg.Links)),
		Queue:    queue,
		Worker: delivery.NewWorker(queue, tg, cursor, delivery.Config{
			Concurrency: cfg.DeliveryConcurrency,
			RateLimit:   cfg.DeliveryRateLimit,
		}, logging.Component(logger, "delivery")),
		Telegram: tg,
		Handler:  NewHandler(dialogue.NewMachine(storage), store, balances, tg, logging.Component(logger, "chat")),
	}

	if err := app.SetupScheduler(ctx, cfg.ReconcileCron); err != nil {
		logger.Fatal("Invalid INDEX_RECONCILE_CRON", zap.Error(err))
	}

	return app
}

// Start runs the bot until ctx is done or a component fails.
//
// Order: rebuild the subscriber index, start the delivery worker, open the
// change feed, catch up, follow the feed. On shutdown the pipeline stops, the
// queue is closed and the worker gets ShutdownTimeout to drain it.
func (a *App) Start(ctx context.Context) error {
	defer a.close()

	if err := a.Store.RebuildIndex(ctx); err != nil {
		return fmt.Errorf("rebuild subscriber index: %w", err)
	}

	feed, err := a.openFeed(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := feed.Close(); err != nil {
			a.Logger.Warn("Failed to close change feed", zap.Error(err))
		}
	}()

	if err := a.Telegram.RegisterCommands(); err != nil {
		a.Logger.Warn("Unable to register bot commands", zap.Error(err))
	}

	var webhookHandler http.Handler
	if webhook := a.Config.WebhookURL(); webhook != "" {
		if err := a.Telegram.SetWebhook(webhook); err != nil {
			return err
		}
		webhookHandler = a.Telegram.WebhookHandler(ctx, a.Handler.Handle)
	}

	g, gctx := errgroup.WithContext(ctx)

	// The worker outlives gctx by up to ShutdownTimeout so queued items are delivered.
	workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorker()
	stopDrain := context.AfterFunc(gctx, func() {
		time.AfterFunc(a.Config.ShutdownTimeout, cancelWorker)
	})
	defer stopDrain()

	g.Go(func() error {
		err := a.Worker.Run(workerCtx)
		if errors.Is(err, context.Canceled) {
			a.Logger.Warn("Delivery worker drain timed out", zap.Int("pending", a.Queue.Len()))
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer a.Queue.Close()
		p := pipeline.New(feed, a.Backlog, a.Cursor, a.Store, a.Matcher, a.Queue, logging.Component(a.Logger, "pipeline"))
		return p.Run(gctx)
	})

	if webhookHandler == nil {
		g.Go(func() error {
			return a.Telegram.Poll(gctx, a.Handler.Handle)
		})
	}

	a.Server = NewServer(a.Config.Addr, NewRouter(a.Logger, map[string]Pinger{
		"postgres": a.Postgres.Ping,
		"redis":    a.Redis.Health,
	}, chat.WebhookPath(a.Config.TelegramToken), webhookHandler))

	g.Go(func() error {
		a.Logger.Info("Starting server", zap.String("addr", a.Config.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	a.StartCron()
	defer a.StopCron()

	err = g.Wait()
	stats := a.Worker.Stats()
	a.Logger.Info("Shutting down",
		zap.Int64("delivered_items", stats.Items),
		zap.Int64("sent", stats.Sent),
		zap.Int64("failed", stats.Failed))
	return err
}

func (a *App) openFeed(ctx context.Context) (ChangeFeed, error) {
	channel := a.Config.ChangeFeedChannel
	if a.Config.ChangeFeed == FeedRedis {
		feed, err := a.Redis.Listen(ctx, channel)
		if err != nil {
			return nil, fmt.Errorf("open redis change feed: %w", err)
		}
		return feed, nil
	}
	feed, err := a.Postgres.Listen(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("open postgres change feed: %w", err)
	}
	return feed, nil
}

func (a *App) close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
	a.Logger.Info("さようなら!")
	_ = a.Logger.Sync()
}
