package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lumachat/luma-gateway/internal/auth"
	"github.com/lumachat/luma-gateway/internal/config"
	"github.com/lumachat/luma-gateway/internal/gateway"
	"github.com/lumachat/luma-gateway/internal/handler"
	"github.com/lumachat/luma-gateway/internal/provider"
	"github.com/lumachat/luma-gateway/internal/service/chat"
	"github.com/lumachat/luma-gateway/internal/service/completion"
	"github.com/lumachat/luma-gateway/internal/service/presence"
	"github.com/lumachat/luma-gateway/internal/service/rooms"
	"github.com/lumachat/luma-gateway/internal/service/typing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Credential verification. Without a secret the gateway falls back to
	// development auth, which trusts whatever identity the client claims.
	var verifier auth.Verifier
	if cfg.Auth.Enabled() {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.Secret))
		log.Println("JWT authentication enabled")
	} else {
		verifier = auth.InsecureVerifier{}
		log.Println("warning: AUTH_SECRET not set, using insecure development auth")
	}

	// Provider adapters. Each decides its Configured flag once, here, from
	// the environment.
	openaiAdapter := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:       cfg.Providers.OpenAI.APIKey,
		BaseURL:      cfg.Providers.OpenAI.BaseURL,
		DefaultModel: cfg.Providers.OpenAI.DefaultModel,
		Timeout:      cfg.Gateway.CompletionTimeout,
	})
	anthropicAdapter := provider.NewAnthropic(provider.AnthropicConfig{
		APIKey:       cfg.Providers.Anthropic.APIKey,
		BaseURL:      cfg.Providers.Anthropic.BaseURL,
		DefaultModel: cfg.Providers.Anthropic.DefaultModel,
		Version:      cfg.Providers.Anthropic.Version,
		Timeout:      cfg.Gateway.CompletionTimeout,
	})

	arkAdapter := provider.NewArk(nil, cfg.Providers.Ark.Model)
	if cfg.Providers.Ark.Enabled() {
		chatModel, err := cfg.Providers.Ark.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize ark chat model: %v", err)
		} else {
			arkAdapter = provider.NewArk(chatModel, cfg.Providers.Ark.Model)
			log.Println("ark provider initialized")
		}
	}

	for _, adapter := range []provider.Adapter{openaiAdapter, anthropicAdapter, arkAdapter} {
		if !adapter.Configured() {
			log.Printf("provider %s not configured, it will be skipped during failover", adapter.Name())
		}
	}

	router := completion.NewRouter(openaiAdapter, anthropicAdapter, arkAdapter, cfg.Gateway.CompletionTimeout)
	store := chat.NewService()

	gw := gateway.New(gateway.Config{
		InactivityThreshold:   cfg.Gateway.InactivityThreshold,
		LivenessSweepInterval: cfg.Gateway.LivenessSweepInterval,
		TypingSweepInterval:   cfg.Gateway.TypingSweepInterval,
		HistoryLimit:          cfg.Gateway.HistoryLimit,
		Model:                 cfg.Gateway.Model,
		Temperature:           cfg.Gateway.Temperature,
		MaxTokens:             cfg.Gateway.MaxTokens,
		EnableFailover:        cfg.Gateway.EnableFailover,
	}, presence.New(), rooms.New(), typing.New(cfg.Gateway.TypingTTL), store, router)

	gw.StartSweepers(ctx)

	httpHandler := handler.NewRouter(gw, verifier, []provider.Adapter{openaiAdapter, anthropicAdapter, arkAdapter})

	startServer(ctx, cfg.Server, httpHandler)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Luma gateway listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
