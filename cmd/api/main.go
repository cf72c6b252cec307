// Package main is the entry point for the reference conversation store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/config"
	"github.com/capitalize-ai/quorra/internal/handler"
	"github.com/capitalize-ai/quorra/internal/llm"
	natsclient "github.com/capitalize-ai/quorra/internal/nats"
	"github.com/capitalize-ai/quorra/internal/service"
	"github.com/capitalize-ai/quorra/pkg/logger"
	"github.com/capitalize-ai/quorra/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var outputs []string
	if cfg.LogFile != "" {
		outputs = append(outputs, cfg.LogFile)
	}
	newLogger := logger.New
	if cfg.Development() {
		newLogger = logger.NewConsole
	}
	log, err := newLogger(cfg.LogLevel, outputs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("starting conversation store", zap.String("env", cfg.Env))
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "quorra-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Client organizations
	seed := service.DefaultClients()
	if cfg.ClientsFile != "" {
		seed, err = service.LoadClients(cfg.ClientsFile)
		if err != nil {
			log.Fatal("failed to load clients", zap.String("path", cfg.ClientsFile), zap.Error(err))
		}
	}
	clientSvc := service.NewClientService(seed)

	// Message log
	var messageLog service.MessageLog = service.NewMemoryLog()
	deps := map[string]handler.Checker{}
	if cfg.MessageLog == "nats" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		messageLog = streamManager
		deps["nats"] = natsClient
	}

	// LLM client
	llmClient, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), llm.Keys{
		Anthropic: cfg.AnthropicAPIKey,
		OpenAI:    cfg.OpenAIAPIKey,
	})
	if err != nil {
		log.Fatal("failed to create LLM client", zap.Error(err))
	}
	log.Info("assistant provider selected", zap.String("provider", llmClient.Name()))

	// Services
	conversationSvc := service.NewConversationService(clientSvc, log)
	titles := service.NewTitleGenerator(llmClient, cfg.TitleModel, log)
	messageSvc := service.NewMessageService(messageLog, conversationSvc, llmClient, titles, log)

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
		Health:            handler.NewHealthHandler(deps),
		Clients:           handler.NewClientHandler(clientSvc),
		Conversations:     handler.NewConversationHandler(conversationSvc, log),
		Messages:          handler.NewMessageHandler(messageSvc, log),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort), zap.String("message_log", cfg.MessageLog))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
