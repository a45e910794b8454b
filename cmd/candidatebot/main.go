package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dudin-george/cu-x5-bootcamp/config"
	"github.com/dudin-george/cu-x5-bootcamp/quizclient"
	"github.com/dudin-george/cu-x5-bootcamp/telegram"
)

func main() {
	cfg := config.Load()
	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	client := quizclient.New(cfg.QuizAPIURL)

	bot, err := telegram.NewBot(cfg.TelegramToken, client, cfg.Verbose)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Candidate bot is starting (quiz API %s)", cfg.QuizAPIURL)
	bot.Start(ctx)
}
