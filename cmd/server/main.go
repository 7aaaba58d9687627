package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echodm/internal/api"
	"github.com/lalith-99/echodm/internal/config"
	"github.com/lalith-99/echodm/internal/db"
	"github.com/lalith-99/echodm/internal/middleware"
	"github.com/lalith-99/echodm/internal/observ"
	"github.com/lalith-99/echodm/internal/store"
	pgstore "github.com/lalith-99/echodm/internal/store/postgres"
	"github.com/lalith-99/echodm/internal/upload"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Startup has no parent deadline; Background() is the right root.
	// Once serving, every request carries its own context.
	ctx := context.Background()

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	redisClient, err := db.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	// The feed is the change signal between writers and live queries:
	// every insert publishes, every watcher re-queries on receipt.
	feed := store.NewFeed(redisClient, logger)

	pool := database.Pool()
	identities := pgstore.NewIdentityStore(pool)
	contacts := pgstore.NewContactStore(pool, feed, logger)
	messages := pgstore.NewMessageStore(pool, feed, logger)

	uploader := upload.NewGateway(cfg.UploadURL, cfg.UploadPreset, logger)

	registry := api.NewRegistry(identities, contacts, messages, uploader, logger)
	authHandler := api.NewAuthHandler(registry, cfg.JWTSecret, logger)
	chatHandler := api.NewChatHandler(registry, identities, logger)
	streamHandler := api.NewStreamHandler(registry, logger)

	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	logger.Info("starting EchoDM",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	// Health check is PUBLIC — load balancers hit this to check the
	// server is alive, and they don't carry JWTs.
	srv.GET("/v1/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	srv.POST("/v1/auth/signup", authHandler.Signup)
	srv.POST("/v1/auth/login", authHandler.Login)

	// Everything else requires a valid JWT. The middleware runs before
	// any handler in this group; a bad token never reaches a handler.
	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	v1.POST("/auth/logout", authHandler.Logout)

	v1.GET("/contacts", chatHandler.ListContacts)
	v1.POST("/contacts", chatHandler.AddContact)

	v1.PUT("/peer", chatHandler.SelectPeer)
	v1.GET("/messages", chatHandler.GetThread)
	v1.POST("/messages", chatHandler.SendMessage)

	v1.GET("/users", chatHandler.ListUsers)
	v1.PUT("/profile", chatHandler.UpdateProfile)

	// Browsers can't set Authorization headers on WebSocket upgrades,
	// so the middleware also accepts ?token= here.
	v1.GET("/ws", streamHandler.Handle)

	return srv.Run(":" + cfg.Port)
}
