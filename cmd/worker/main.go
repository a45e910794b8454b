// Command worker runs the expiry sweeper on its own, for deployments that
// keep SWEEP_INTERVAL off in the API servers.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dudin-george/cu-x5-bootcamp/config"
	"github.com/dudin-george/cu-x5-bootcamp/services"
)

func main() {
	cfg := config.Load()
	services.SetVerbose(cfg.Verbose)

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	redisClient := config.InitRedis(cfg)
	defer redisClient.Close()

	publisher, err := services.NewEventPublisher(cfg.RabbitMQURI, cfg.RabbitMQExchange)
	if err != nil {
		log.Fatal("Failed to initialize event publisher:", err)
	}
	defer publisher.Close()

	bank := services.NewQuestionBankService(db, services.NewRedisPlanCache(redisClient, cfg.PlanCacheTTL))
	engine := services.NewQuizEngine(db, bank, cfg.QuizDuration, publisher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services.NewExpirySweeper(engine, interval).Run(ctx)
}
