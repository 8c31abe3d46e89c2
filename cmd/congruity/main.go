package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/congruity-bot/congruity/app/bot"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// a missing .env is fine, the environment wins anyway
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := bot.Initialize(ctx)

	if err := app.Start(ctx); err != nil {
		app.Logger.Error("Bot stopped", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}
