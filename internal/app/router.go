package app

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/teachflow/teachflow-backend/internal/handlers"
	"github.com/teachflow/teachflow-backend/internal/middleware"
	"github.com/teachflow/teachflow-backend/internal/services"
)

func wireRouter(h Handlers, auth services.AuthService, generatedDir string) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.Healthcheck)
	router.Static("/uploads/generated", generatedDir)

	api := router.Group("/api")
	{
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
	}

	protected := api.Group("/")
	protected.Use(middleware.RequireAuth(auth))
	{
		// Auth / profile
		protected.GET("/auth/me", h.Auth.Me)
		protected.PUT("/auth/ai-config", h.Auth.UpdateAIConfig)

		// Courses
		protected.POST("/courses", h.Course.Create)
		protected.GET("/courses", h.Course.List)
		protected.GET("/courses/:id", h.Course.Get)
		protected.PUT("/courses/:id", h.Course.Update)
		protected.DELETE("/courses/:id", h.Course.Delete)

		// Teaching plan
		protected.POST("/courses/:id/teaching-plan", h.TeachingPlan.Generate)
		protected.GET("/courses/:id/teaching-plan", h.TeachingPlan.GetPlan)
		protected.POST("/courses/:id/teaching-plan/parse", h.LessonPlan.ParsePlan)

		// Lesson plans
		protected.POST("/courses/:id/lessons", h.LessonPlan.Generate)
		protected.GET("/courses/:id/lessons", h.LessonPlan.ListLessons)
		protected.GET("/courses/:id/lessons/:sequence", h.LessonPlan.GetLesson)

		// Copyright projects
		protected.POST("/copyright-projects", h.Copyright.Create)
		protected.GET("/copyright-projects", h.Copyright.List)
		protected.GET("/copyright-projects/:id", h.Copyright.Get)
		protected.PUT("/copyright-projects/:id", h.Copyright.Update)
		protected.DELETE("/copyright-projects/:id", h.Copyright.Delete)
		protected.POST("/copyright-projects/:id/generate", h.Copyright.Generate)
		protected.GET("/copyright-projects/:id/download", h.Copyright.Download)

		// Jobs
		protected.GET("/jobs/latest", h.Jobs.Latest)
		protected.GET("/jobs/:id", h.Jobs.Get)

		// AI chat
		protected.POST("/chat/send", h.Chat.Send)
		protected.GET("/chat/history", h.Chat.History)
		protected.DELETE("/chat/clear", h.Chat.Clear)

		// SSE
		protected.GET("/events", h.SSE.Stream)
	}

	return router
}
