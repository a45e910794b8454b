package routes

import (
	"log"
	"net/http"

	"github.com/dudin-george/cu-x5-bootcamp/handlers"
	"github.com/dudin-george/cu-x5-bootcamp/middleware"
	"github.com/dudin-george/cu-x5-bootcamp/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // monitor clients authenticate with a token
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	quizHandler *handlers.QuizHandler,
	adminHandler *handlers.AdminHandler,
	hub *services.Hub,
	authService *services.AuthService,
) {
	requireRecruiter := middleware.AuthMiddleware(authService)

	api := router.Group("/api")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/profile", requireRecruiter, authHandler.GetProfile)
		}

		// Candidate quiz routes (public)
		quiz := api.Group("/quiz")
		{
			quiz.POST("/start", quizHandler.StartQuiz)
			quiz.POST("/answer", quizHandler.SubmitAnswer)
			quiz.GET("/sessions/:id/results", quizHandler.GetResults)
			quiz.GET("/attempts", quizHandler.GetAttempts)
		}
		api.GET("/tracks", quizHandler.ListTracks)

		// Question bank administration
		admin := api.Group("/admin/quiz")
		admin.Use(requireRecruiter)
		{
			admin.POST("/blocks", adminHandler.CreateBlock)
			admin.GET("/blocks", adminHandler.ListBlocks)
			admin.GET("/blocks/:id/questions", adminHandler.ListBlockQuestions)
			admin.POST("/questions", adminHandler.CreateQuestion)
			admin.GET("/questions/:id", adminHandler.GetQuestion)
			admin.POST("/tracks", adminHandler.CreateTrack)
			admin.GET("/tracks", adminHandler.ListTracks)
			admin.GET("/tracks/:id/blocks", adminHandler.GetTrackBlocks)
			admin.POST("/track-blocks", adminHandler.LinkTrackBlock)
		}
	}

	// WebSocket stream of quiz events for recruiters
	router.GET("/ws/monitor", requireRecruiter, func(c *gin.Context) {
		recruiterID := c.GetUint("recruiter_id")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for recruiter %d: %v", recruiterID, err)
			return
		}

		hub.RegisterClient(conn, recruiterID)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
