// Package main is the entry point for the chat gateway server.
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

	"github.com/capitalize-ai/chatbot/internal/config"
	"github.com/capitalize-ai/chatbot/internal/handler"
	"github.com/capitalize-ai/chatbot/internal/inference"
	"github.com/capitalize-ai/chatbot/internal/live"
	"github.com/capitalize-ai/chatbot/internal/llm"
	natsclient "github.com/capitalize-ai/chatbot/internal/nats"
	"github.com/capitalize-ai/chatbot/internal/service"
	"github.com/capitalize-ai/chatbot/internal/store"
	"github.com/capitalize-ai/chatbot/pkg/logger"
	"github.com/capitalize-ai/chatbot/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("gateway stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting chat gateway",
		zap.String("live_backend", cfg.LiveBackend),
		zap.String("inference_backend", cfg.InferenceBackend),
	)

	ctx := context.Background()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatbot-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	checks := map[string]handler.Check{"store": st.Ping}

	bus, closeBus, err := openBus(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeBus()

	action, err := newAction(cfg, st, log)
	if err != nil {
		return err
	}

	feed := live.NewFeed(bus, st, log)
	conversationSvc := service.NewConversationService(st, log)
	messageSvc := service.NewMessageService(st, feed, log)

	router := handler.NewRouter(handler.RouterConfig{
		Conversations:     conversationSvc,
		Messages:          messageSvc,
		Action:            inference.Instrument(action, log),
		Checks:            checks,
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// openBus selects the live change bus. Backends with their own connection
// register a readiness check.
func openBus(ctx context.Context, cfg *config.Config, log *logger.Logger, checks map[string]handler.Check) (live.Bus, func(), error) {
	switch cfg.LiveBackend {
	case "redis":
		bus, err := live.NewRedisBus(ctx, cfg.RedisAddr, log)
		if err != nil {
			return nil, nil, err
		}
		return bus, func() { _ = bus.Close() }, nil

	case "nats":
		client, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return nil, nil, err
		}

		bus := natsclient.NewBus(client)
		if err := bus.EnsureStream(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		checks["nats"] = client.Check
		return bus, client.Close, nil

	default:
		bus := live.NewMemoryBus(log)
		return bus, func() { _ = bus.Close() }, nil
	}
}

func newAction(cfg *config.Config, st *store.Store, log *logger.Logger) (inference.Action, error) {
	if cfg.InferenceBackend == "llm" {
		provider, apiKey := cfg.LLMProvider()
		client, err := llm.NewClient(llm.Options{
			Provider: llm.Provider(provider),
			APIKey:   apiKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.LLMModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}

		log.Info("using LLM inference",
			zap.String("provider", client.Name()),
			zap.Strings("models", client.Models()),
		)
		return inference.NewAssistant(client, st, inference.AssistantConfig{
			Model:        cfg.LLMModel,
			HistoryLimit: cfg.HistoryLimit,
		}, log), nil
	}

	return inference.NewWorkflow(inference.WorkflowConfig{
		URL:     cfg.WorkflowURL,
		Secret:  cfg.WorkflowSecret,
		Timeout: cfg.WorkflowTimeout,
	}, log)
}
