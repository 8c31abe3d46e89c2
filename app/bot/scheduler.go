package bot

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// IndexRebuilder fully rebuilds the derived subscriber index.
type IndexRebuilder interface {
	RebuildIndex(ctx context.Context) error
}

// SetupScheduler schedules periodic index reconciliation. An empty cron expression disables it.
func (a *App) SetupScheduler(ctx context.Context, spec string) error {
	if spec == "" {
		return nil
	}
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))

	_, err := a.Cron.AddFunc(spec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		reconcileIndex(rctx, a.Store, a.Logger)
	})
	return err
}

// StartCron starts the scheduler, if any.
func (a *App) StartCron() {
	if a.Cron == nil {
		return
	}
	a.Cron.Start()
	a.Logger.Info("Index reconciliation scheduled", zap.String("cron", a.Config.ReconcileCron))
}

// StopCron stops the scheduler and waits for a running reconciliation.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

func reconcileIndex(ctx context.Context, index IndexRebuilder, logger *zap.Logger) {
	start := time.Now()
	if err := index.RebuildIndex(ctx); err != nil {
		logger.Error("Index reconciliation failed", zap.Error(err))
		return
	}
	logger.Debug("Index reconciled", zap.Duration("took", time.Since(start)))
}
