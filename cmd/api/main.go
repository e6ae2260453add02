package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gemini-chat/internal/ai"
	"github.com/suPer8Hu/gemini-chat/internal/auth"
	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"github.com/suPer8Hu/gemini-chat/internal/config"
	"github.com/suPer8Hu/gemini-chat/internal/db"
	"github.com/suPer8Hu/gemini-chat/internal/httpapi"
	"github.com/suPer8Hu/gemini-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/gemini-chat/internal/logger"
	"github.com/suPer8Hu/gemini-chat/internal/store"
	"github.com/suPer8Hu/gemini-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/gemini-chat/internal/store/redisstore"
)

func main() {
	cfg := config.Load()
	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", "err", err)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(cfg.DBDriver, cfg.DBDSN)

	provider, err := ai.DefaultRegistry().Get(cfg.AIProvider, ai.Options{
		BaseURL: cfg.GeminiBaseURL,
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.AIHTTPTimeout,
	})
	if err != nil {
		logger.Fatal("ai provider", "err", err)
	}
	if err := provider.Validate(); err != nil {
		// not fatal: every chat request answers with a configuration error
		logger.Warn("ai provider not configured, chat requests will fail", "provider", provider.Name(), "err", err)
	}

	history, closeHistory, err := store.OpenHistory(ctx, cfg, gdb)
	if err != nil {
		logger.Fatal("history store", "backend", cfg.HistoryBackend, "err", err)
	}
	defer func() { _ = closeHistory() }()

	// in queue mode the worker applies appends; reads stay direct
	var appender chat.TurnAppender = history
	if cfg.HistoryMode == "queue" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.HistoryQueue)
		if err != nil {
			logger.Fatal("rabbit publisher", "err", err)
		}
		defer pub.Close()
		appender = pub
	}

	var limits chat.LimitPolicy = chat.NoLimit{}
	if cfg.ChatDailyLimit > 0 {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			// the flag is advisory; LimitReached errors are logged per request
			logger.Warn("redis ping failed", "addr", cfg.RedisAddr, "err", err)
		}
		limits = redisstore.NewDailyLimit(rds, cfg.ChatDailyLimit)
	}

	svc := chat.NewService(provider, auth.NewResolver(cfg.JWTSecret), appender, history, limits)
	router := httpapi.NewRouter(handlers.NewHandler(gdb, cfg, svc), cfg)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"provider", provider.Name(),
			"history", cfg.HistoryBackend,
			"mode", cfg.HistoryMode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("api shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
