package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/basedhq/backend/internal/agent"
	"github.com/basedhq/backend/internal/config"
	"github.com/basedhq/backend/internal/llm"
	"github.com/basedhq/backend/internal/session"
	"github.com/basedhq/backend/internal/store"
	"github.com/basedhq/backend/internal/validate"
	"github.com/basedhq/backend/internal/ws"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting backend",
		zap.Int("port", cfg.Port),
		zap.String("llm_model", cfg.LLMModel),
		zap.String("validation_url", cfg.ValidationURL),
		zap.Int("max_iter", cfg.MaxIter))

	// Transcript store: SQLite when a path is configured, otherwise a no-op.
	var transcript store.Store = store.NopStore{}
	if cfg.DBPath != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			logger.Fatal("failed to open transcript store", zap.String("db_path", cfg.DBPath), zap.Error(err))
		}
		transcript = sqlStore
		logger.Info("transcript store enabled", zap.String("db_path", cfg.DBPath))
	}
	defer transcript.Close()

	generator := llm.NewGenerator(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	validator := validate.NewClient(cfg.ValidationURL, cfg.ValidationTimeout)
	ag := agent.New(generator, validator, logger, agent.WithMaxIter(cfg.MaxIter))
	sessions := session.NewManager(transcript, logger)
	wsServer := ws.NewServer(cfg, sessions, ag, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.GET("/ws", wsServer.HandleWebSocket)
	e.GET("/health", wsServer.HandleHealth)
	e.GET("/stats", wsServer.HandleStats)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()
	logger.Info("server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
