package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dudin-george/cu-x5-bootcamp/config"
	"github.com/dudin-george/cu-x5-bootcamp/handlers"
	"github.com/dudin-george/cu-x5-bootcamp/middleware"
	"github.com/dudin-george/cu-x5-bootcamp/models"
	"github.com/dudin-george/cu-x5-bootcamp/routes"
	"github.com/dudin-george/cu-x5-bootcamp/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()
	services.SetVerbose(cfg.Verbose)

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)
	defer redisClient.Close()

	// Event sinks
	publisher, err := services.NewEventPublisher(cfg.RabbitMQURI, cfg.RabbitMQExchange)
	if err != nil {
		log.Fatal("Failed to initialize event publisher:", err)
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := services.NewHub()
	go hub.Run(ctx)

	// Initialize services
	planCache := services.NewRedisPlanCache(redisClient, cfg.PlanCacheTTL)
	bank := services.NewQuestionBankService(db, planCache)
	engine := services.NewQuizEngine(db, bank, cfg.QuizDuration, services.MultiSink{publisher, hub})
	authService := services.NewAuthService(db, cfg.JWTSecret)

	if cfg.SweepInterval > 0 {
		go services.NewExpirySweeper(engine, cfg.SweepInterval).Run(ctx)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	quizHandler := handlers.NewQuizHandler(engine, bank)
	adminHandler := handlers.NewAdminHandler(bank)

	// Setup Gin router
	router := gin.Default()
	router.Use(middleware.CORS(cfg.CORSOrigins))
	routes.SetupRoutes(router, authHandler, quizHandler, adminHandler, hub, authService)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}
