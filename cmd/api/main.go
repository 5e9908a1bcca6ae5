// cmd/api/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"debt-tracker/internal/bacen"
	"debt-tracker/internal/config"
	"debt-tracker/internal/excel"
	"debt-tracker/internal/handler"
	"debt-tracker/internal/middleware"
	"debt-tracker/internal/storage/postgres"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.MustLoad()

	pool, err := pgxpool.New(context.Background(), cfg.DBConn)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("Database ping failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Connected to PostgreSQL")

	store := postgres.NewStorage(pool)
	rates := bacen.NewClient(cfg.BacenBaseURL, cfg.BacenTimeout)
	syncer := excel.NewSyncer(store, cfg.BackupPath)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	loanHandler := handler.NewLoanHandler(store, rates, syncer)
	loanHandler.RegisterRoutes(router)

	slog.Info("🚀 Server listening", "port", cfg.ServerPort, "backup", cfg.BackupPath)
	if err := router.Run(cfg.ServerPort); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}
