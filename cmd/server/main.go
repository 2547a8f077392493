package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/converse-app/converse-backend/internal/config"
	"github.com/converse-app/converse-backend/internal/database"
	"github.com/converse-app/converse-backend/internal/handlers"
	"github.com/converse-app/converse-backend/internal/middleware"
	"github.com/converse-app/converse-backend/internal/models"
	"github.com/converse-app/converse-backend/internal/realtime"
	"github.com/converse-app/converse-backend/internal/routes"
	"github.com/converse-app/converse-backend/internal/services"
	"github.com/converse-app/converse-backend/pkg/logger"
	"github.com/converse-app/converse-backend/pkg/utils"
)

func main() {
	// 0. Load Config & Initialize Logger
	config.LoadConfig()

	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}
	logger.Init(env)

	logger.Info().Str("environment", env).Msg("Starting Converse Backend...")

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. Connect Database & Redis
	database.Connect()
	database.InitRedis()

	logger.Info().Msg("Running database migrations...")
	err := database.DB.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// 2. Realtime core: registry tracks sessions per user, the router fans
	// events out, the gateway is the socket.io transport over both.
	registry := realtime.NewRegistry()
	router := realtime.NewRouter()
	defer router.Close()

	gateway := realtime.NewGateway(router, registry, services.Directory{}, func(token string) (string, error) {
		claims, err := utils.ValidateToken(token)
		if err != nil {
			return "", err
		}
		return claims.UserID, nil
	})
	gateway.Serve()
	defer gateway.Close()

	// 3. Setup HTTP router
	r := gin.New()
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.ErrorHandlerMiddleware())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.SecurityHeaders())

	// Exempt the socket transport from the general limiter
	r.Use(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 10 && c.Request.URL.Path[:10] == "/socket.io" {
			c.Next()
			return
		}
		middleware.GeneralRateLimit()(c)
	})

	// 4. Register routes
	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		routes.RegisterAuthRoutes(auth)

		routes.RegisterUserRoutes(api)
		routes.RegisterUploadRoutes(api)
		routes.RegisterChatRoutes(api, handlers.NewChatHandler(router))
		routes.RegisterInternalRoutes(api, handlers.NewIngressHandler(router))
	}

	// Health check with DB and Redis status
	r.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		redisStatus := "ok"

		sqlDB, err := database.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			dbStatus = "error"
		}

		if database.Redis != nil {
			if _, err := database.Redis.Ping(context.Background()).Result(); err != nil {
				redisStatus = "error"
			}
		} else {
			redisStatus = "not configured"
		}

		status := "ok"
		if dbStatus != "ok" || (redisStatus != "ok" && redisStatus != "not configured") {
			status = "degraded"
		}

		c.JSON(200, gin.H{
			"status": status,
			"checks": gin.H{
				"database": dbStatus,
				"redis":    redisStatus,
			},
		})
	})

	// Realtime transport
	r.GET("/socket.io/*any", gateway.Handler())
	r.POST("/socket.io/*any", gateway.Handler())

	// 5. Start server with graceful shutdown
	port := config.AppConfig.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", port).Str("env", env).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
