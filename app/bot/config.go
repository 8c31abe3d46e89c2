package bot

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/congruity-bot/congruity/pkg/notify"
	"github.com/congruity-bot/congruity/pkg/utils"
)

// Change feed sources.
const (
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
)

// Dialogue state storages.
const (
	DialogueRedis  = "redis"
	DialogueMemory = "memory"
)

// Config is the process configuration, read from the environment.
type Config struct {
	PostgresURL string
	AutoMigrate bool

	ChangeFeed        string
	ChangeFeedChannel string

	QueueSize           int
	DeliveryConcurrency int
	DeliveryRateLimit   int

	// ReconcileCron schedules index rebuilds; empty disables them.
	ReconcileCron string

	DialogueStorage string
	DialogueTTL     time.Duration

	TelegramToken       string
	TelegramWebhookHost string

	Addr            string
	ShutdownTimeout time.Duration

	Network  string
	Links    notify.Links
	RPCURL   string
	RPCToken string
}

// LoadConfig reads and validates the configuration.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		PostgresURL:         utils.Env("POSTGRES_URL", "postgres://localhost:5432/congruity"),
		AutoMigrate:         utils.EnvBool("POSTGRES_AUTO_MIGRATE", true),
		ChangeFeed:          strings.ToLower(utils.Env("CHANGE_FEED", FeedPostgres)),
		ChangeFeedChannel:   utils.Env("CHANGE_FEED_CHANNEL", "tx_channel"),
		QueueSize:           utils.EnvInt("DELIVERY_QUEUE_SIZE", 256),
		DeliveryConcurrency: utils.EnvInt("DELIVERY_CONCURRENCY", 8),
		DeliveryRateLimit:   utils.EnvIntAllowZero("DELIVERY_RATE_LIMIT", 25),
		ReconcileCron:       utils.Env("INDEX_RECONCILE_CRON", "0 */15 * * * *"),
		DialogueStorage:     strings.ToLower(utils.Env("DIALOGUE_STORAGE", DialogueRedis)),
		DialogueTTL:         utils.EnvDuration("DIALOGUE_TTL", 24*time.Hour),
		TelegramToken:       utils.Env("TELEGRAM_TOKEN", ""),
		TelegramWebhookHost: strings.TrimRight(utils.Env("TELEGRAM_WEBHOOK_HOST", ""), "/"),
		Addr:                utils.Env("ADDR", ":8080"),
		ShutdownTimeout:     utils.EnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		Network:             utils.Env("CONCORDIUM_NETWORK", string(notify.Testnet)),
		RPCURL:              utils.Env("CONCORDIUM_RPC_URL", ""),
		RPCToken:            utils.Env("CONCORDIUM_RPC_TOKEN", ""),
	}

	if utils.EnvSet("INDEX_RECONCILE_CRON") {
		cfg.ReconcileCron = strings.TrimSpace(os.Getenv("INDEX_RECONCILE_CRON"))
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	switch cfg.ChangeFeed {
	case FeedPostgres, FeedRedis:
	default:
		return nil, fmt.Errorf("CHANGE_FEED must be %q or %q, got %q", FeedPostgres, FeedRedis, cfg.ChangeFeed)
	}
	switch cfg.DialogueStorage {
	case DialogueRedis, DialogueMemory:
	default:
		return nil, fmt.Errorf("DIALOGUE_STORAGE must be %q or %q, got %q", DialogueRedis, DialogueMemory, cfg.DialogueStorage)
	}

	links, err := notify.LinksFor(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("CONCORDIUM_NETWORK: %w", err)
	}
	cfg.Links = links
	return cfg, nil
}

// WebhookURL is the public URL Telegram posts updates to, empty in polling mode.
func (c *Config) WebhookURL() string {
	if c.TelegramWebhookHost == "" {
		return ""
	}
	return c.TelegramWebhookHost + "/bot" + c.TelegramToken + "/"
}
