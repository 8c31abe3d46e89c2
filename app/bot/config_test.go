package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, FeedPostgres, cfg.ChangeFeed)
	assert.Equal(t, "tx_channel", cfg.ChangeFeedChannel)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, 8, cfg.DeliveryConcurrency)
	assert.Equal(t, 25, cfg.DeliveryRateLimit)
	assert.Equal(t, "0 */15 * * * *", cfg.ReconcileCron)
	assert.Equal(t, DialogueRedis, cfg.DialogueStorage)
	assert.Equal(t, 24*time.Hour, cfg.DialogueTTL)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "https://dashboard.testnet.concordium.com", cfg.Links.DashboardURL)
	assert.Empty(t, cfg.WebhookURL(), "polling by default")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_WEBHOOK_HOST", "https://bot.example.com/")
	t.Setenv("CHANGE_FEED", "Redis")
	t.Setenv("DIALOGUE_STORAGE", "memory")
	t.Setenv("CONCORDIUM_NETWORK", "mainnet")
	t.Setenv("DELIVERY_RATE_LIMIT", "0")
	t.Setenv("INDEX_RECONCILE_CRON", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, FeedRedis, cfg.ChangeFeed)
	assert.Equal(t, DialogueMemory, cfg.DialogueStorage)
	assert.Equal(t, 0, cfg.DeliveryRateLimit)
	assert.Empty(t, cfg.ReconcileCron)
	assert.Equal(t, "https://bot.example.com/bot123:abc/", cfg.WebhookURL())
	assert.Contains(t, cfg.Links.DashboardURL, "mainnet")
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing token", env: map[string]string{"TELEGRAM_TOKEN": ""}},
		{name: "bad feed", env: map[string]string{"TELEGRAM_TOKEN": "x", "CHANGE_FEED": "kafka"}},
		{name: "bad storage", env: map[string]string{"TELEGRAM_TOKEN": "x", "DIALOGUE_STORAGE": "disk"}},
		{name: "bad network", env: map[string]string{"TELEGRAM_TOKEN": "x", "CONCORDIUM_NETWORK": "devnet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

type countingRebuilder struct {
	calls int
	err   error
}

func (c *countingRebuilder) RebuildIndex(context.Context) error {
	c.calls++
	return c.err
}

func TestReconcileIndex(t *testing.T) {
	r := &countingRebuilder{}
	reconcileIndex(context.Background(), r, zaptest.NewLogger(t))
	r.err = errors.New("redis down")
	reconcileIndex(context.Background(), r, zaptest.NewLogger(t))
	assert.Equal(t, 2, r.calls)
}

func TestSetupScheduler(t *testing.T) {
	a := &App{Config: &Config{}, Logger: zaptest.NewLogger(t)}
	require.NoError(t, a.SetupScheduler(context.Background(), ""))
	assert.Nil(t, a.Cron, "empty cron expression disables reconciliation")

	require.Error(t, a.SetupScheduler(context.Background(), "not a cron"))

	require.NoError(t, a.SetupScheduler(context.Background(), "0 */15 * * * *"))
	require.NotNil(t, a.Cron)
	assert.Len(t, a.Cron.Entries(), 1)
}
