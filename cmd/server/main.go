// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"whatsbot/internal/botconfig"
	"whatsbot/internal/bots"
	"whatsbot/internal/channel"
	"whatsbot/internal/common/config"
	"whatsbot/internal/common/database"
	"whatsbot/internal/common/logger"
	"whatsbot/internal/email"
	"whatsbot/internal/engine"
	"whatsbot/internal/graph"
	"whatsbot/internal/intent"
	"whatsbot/internal/llm"
	"whatsbot/internal/pipeline"
	"whatsbot/internal/server"
	"whatsbot/internal/store"
)

func main() {
	// Bootstrap logger until the configured one is available.
	zapLog := logger.New("info", "console")
	defer func() { _ = zapLog.Sync() }()

	zapLog.Info("Starting server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.NewZapAdapter(zapLog)

	ctx := context.Background()

	// --- Postgres ---
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Ping(ctx); err != nil {
		zapLog.Fatal("postgres unreachable", zap.Error(err))
	}

	// --- Redis ---
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis init failed", zap.Error(err))
	}
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		zapLog.Fatal("redis unreachable", zap.Error(err))
	}

	// --- Store ---
	var st store.Store = store.NewPostgresStore(pg.DB, log)
	st = store.NewCachedStore(st, rdb.Client, log)

	// --- LLM-backed generator and classifier ---
	completer := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		config.GetDuration(cfg.LLM.Timeout), cfg.LLM.MaxRetries)
	generator := botconfig.NewGenerator(completer, log)
	classifier := intent.NewClassifier(completer, log)

	// --- Workflow engine ---
	lifecycle := engine.NewClient(cfg.Engine.BaseURL, cfg.Engine.APIKey,
		config.GetDuration(cfg.Engine.Timeout), log)

	// --- Messaging channel ---
	sender := channel.NewWhatsAppClient(cfg.WhatsApp.APIBaseURL, cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.APIKey, config.GetDuration(cfg.WhatsApp.Timeout), log)

	// --- Optional activation mail ---
	var notifier pipeline.Notifier
	if cfg.Email.Enabled {
		sesNotifier, err := email.NewSESNotifier(ctx, cfg.Email.Region, cfg.Email.FromEmail, log)
		if err != nil {
			zapLog.Warn("SES init failed, activation mail disabled", zap.Error(err))
		} else {
			notifier = sesNotifier
		}
	}

	// --- Pipelines and bot service ---
	endpoints := graph.Endpoints{
		StoreBaseURL:   cfg.Store.BaseURL,
		StoreAPIKey:    cfg.Store.APIKey,
		AIBaseURL:      cfg.Store.BaseURL,
		ChannelSendURL: fmt.Sprintf("%s/%s/messages", cfg.WhatsApp.APIBaseURL, cfg.WhatsApp.PhoneNumberID),
		ChannelAPIKey:  cfg.WhatsApp.APIKey,
	}

	messages := pipeline.NewMessagePipeline(cfg.WhatsApp.VerifyToken, st, classifier,
		pipeline.NewTemplateResponder(log), sender, log)
	paymentsPipe := pipeline.NewPaymentPipeline(cfg.Payments.WebhookSecret, st, notifier, log)
	botSvc := bots.NewService(st, generator, lifecycle, endpoints, log)

	srv := server.New(messages, paymentsPipe, botSvc, log)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping server...")

	shutdownTimeout := config.GetDuration(cfg.Server.ShutdownTimeout)
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("shutdown did not complete cleanly", zap.Error(err))
	}

	zapLog.Info("Server stopped")
}
