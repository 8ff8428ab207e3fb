package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"libraria/internal/adapter/gateway"
	"libraria/internal/adapter/llm"
	"libraria/internal/adapter/tool"
	"libraria/internal/domain"
	"libraria/internal/infra/config"
	"libraria/internal/infra/logger"
	"libraria/internal/infra/tracer"
	"libraria/internal/security"
	"libraria/internal/store"
	"libraria/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	log, logCleanup, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(shutdownCtx); err != nil {
			log.Error("tracer shutdown error", "error", err)
		}
	}()

	// Storage
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	// Credential vault
	vault, err := security.NewVault(cfg.Security.EncryptionSecret)
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	creds := security.NewCredentialService(db, vault)

	// Tool registry
	registry := tool.NewRegistry(log)
	registry.MustRegister(tool.LibraryTools(db, log)...)
	registry.MustRegister(tool.NewAnalyzeDataTool(db, log))
	registry.MustRegister(tool.CollectionTools(db, log)...)
	registry.MustRegister(tool.NewWebSearchTool(
		tool.NewTavilyBackend(cfg.Search),
		creds,
		cfg.Search.ContentCap,
		cfg.Search.CacheTTL,
		log,
	))

	// Orchestration loop
	agent := usecase.NewAgent(usecase.AgentDeps{
		Tools:         registry,
		Conversations: db,
		Builder:       usecase.NewContextBuilder(cfg.Agent.SystemPrompt, cfg.Agent.HistoryTokens),
		Logger:        log,
		MaxSteps:      cfg.Agent.MaxSteps,
	})

	// Providers share one pooled HTTP client and one breaker per model;
	// the API key varies per caller.
	httpClient := llm.NewHTTPClient(cfg.LLM.Timeout)
	breakers := llm.NewBreakerRegistry(log)
	providerFactory := func(apiKey, model string) domain.LLMProvider {
		p := llm.NewGeminiProvider(apiKey, model, cfg.LLM.BaseURL, httpClient, log)
		return breakers.Wrap(p, model)
	}

	srv := gateway.NewServer(gateway.Deps{
		Agent:         agent,
		Tools:         registry,
		Conversations: db,
		Profiles:      db,
		Credentials:   creds,
		Provider:      providerFactory,
		DefaultModel:  cfg.LLM.DefaultModel,
		Logger:        log,
	}, cfg.Server)

	log.Info("libraria starting",
		"addr", cfg.Server.Addr,
		"db", cfg.Store.Path,
		"tools", len(registry.List()),
		"max_steps", cfg.Agent.MaxSteps,
	)

	return srv.Start(ctx)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	if v := os.Getenv("LIBRARIA_CONFIG"); v != "" {
		return v
	}
	return "libraria.yaml"
}
