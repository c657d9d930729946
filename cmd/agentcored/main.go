// Command agentcored runs the agent-core service: the Session Manager,
// Agent Loop Driver, Tool Dispatcher, and Credit Ledger wired together
// behind an HTTP server exposing health and Prometheus metrics endpoints.
//
// Usage:
//
//	agentcored -config agentcore.yaml
//
// Configuration can also be supplied via environment variables referenced
// from the config file with ${VAR} (see internal/config.LoadRaw).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelierai/agentcore/internal/agentloop"
	"github.com/atelierai/agentcore/internal/config"
	"github.com/atelierai/agentcore/internal/ledger"
	"github.com/atelierai/agentcore/internal/llm"
	"github.com/atelierai/agentcore/internal/observability"
	"github.com/atelierai/agentcore/internal/sessionmgr"
	"github.com/atelierai/agentcore/internal/toolkit"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "agentcore.yaml", "path to YAML configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		slog.Error("agentcored exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadServiceConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Info(ctx, "starting agentcored",
		"version", version,
		"commit", commit,
		"config", configPath,
	)

	metrics := observability.NewMetrics()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "agentcored",
		ServiceVersion: version,
		Environment:    os.Getenv("AGENTCORE_ENV"),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn(ctx, "tracer shutdown failed", "error", err)
		}
	}()
	registerer := prometheus.DefaultRegisterer
	ledgerMetrics := ledger.NewMetrics(registerer)
	creditLedger := ledger.Instrument(
		ledger.NewMemLedger(demoMembershipResolver{}, time.Now),
		ledgerMetrics,
	)

	provider, err := buildProvider(cfg.Vendors)
	if err != nil {
		return fmt.Errorf("build LLM provider: %w", err)
	}

	sessionStore := sessionmgr.NewMemStore()

	registry := toolkit.NewRegistry()
	if err := registerInternalTools(registry, cfg.Tools, sessionStore); err != nil {
		return fmt.Errorf("register internal tools: %w", err)
	}

	dispatcherLogger := slog.Default()
	dispatcher := toolkit.NewDispatcher(registry, creditLedger, dispatcherLogger)
	if cfg.Tools.MaxRetries > 0 {
		dispatcher.MaxRetries = cfg.Tools.MaxRetries
	}
	dispatcher.Metrics = metrics
	dispatcher.Tracer = tracer

	loop := agentloop.NewLoop(provider, dispatcher, creditLedger)
	loop.Metrics = metrics
	loop.Tracer = tracer
	manager := sessionmgr.New(sessionStore, loop, time.Now)
	manager.Metrics = metrics

	sweeper := agentloop.NewTimeoutSweeper(sessionStore, manager, dispatcherLogger)
	sweeper.Schedule = cfg.Session.TimeoutSweepInterval
	if sweeper.Schedule == "" {
		sweeper.Schedule = agentloop.DefaultSweepSchedule
	}
	// "" matches every owner (sessionmgr.MemStore.List treats it as a
	// wildcard); a multi-tenant deployment with a durable Store would pass
	// the known owner/organization set instead.
	if err := sweeper.Start(ctx, []string{""}); err != nil {
		return fmt.Errorf("start timeout sweeper: %w", err)
	}
	defer sweeper.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	logger.Info(ctx, "agentcored started",
		"metrics_addr", addr,
		"vendor_default", cfg.Vendors.Default,
		"max_concurrent_sessions", cfg.Session.MaxConcurrentSessions,
	)

	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received, draining")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "metrics server shutdown error", "error", err)
	}

	logger.Info(ctx, "agentcored stopped gracefully")
	return nil
}

// buildProvider constructs the llm.Provider for cfg.Vendors.Default.
// Anthropic, OpenAI, and Gemini adapters are all available so any one can
// be selected per session in a future multi-vendor routing layer; only the
// default is wired into the loop today (spec §4.4).
func buildProvider(vendors config.VendorsConfig) (llm.Provider, error) {
	entry, ok := vendors.Entries[vendors.Default]
	if !ok {
		return nil, fmt.Errorf("no vendor config for default %q", vendors.Default)
	}

	switch vendors.Default {
	case "anthropic":
		return llm.NewAnthropicAdapter(llm.AnthropicConfig{
			APIKey:       entry.APIKey,
			BaseURL:      entry.BaseURL,
			DefaultModel: entry.DefaultModel,
		})
	case "openai":
		return llm.NewOpenAIAdapter(llm.OpenAIConfig{
			APIKey:       entry.APIKey,
			BaseURL:      entry.BaseURL,
			DefaultModel: entry.DefaultModel,
		})
	case "gemini":
		return llm.NewGeminiAdapter(llm.GeminiConfig{
			APIKey:       entry.APIKey,
			DefaultModel: entry.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unsupported vendor %q", vendors.Default)
	}
}

// registerInternalTools wires every built-in tool (spec §4.2) against the
// in-memory demo seams so the registry fails closed on nothing: an
// unregistered tool struct would itself be a dangling, unwired concern.
// Cost overrides come from cfg.Tools.CostOverrides, falling back to the
// defaults below when absent.
func registerInternalTools(registry *toolkit.Registry, toolsCfg config.ServiceTools, store sessionmgr.Store) error {
	cost := func(name string, fallback int) int {
		if c, ok := toolsCfg.CostOverrides[name]; ok {
			return c
		}
		return fallback
	}

	collections := newDemoCollectionStore()
	documents := newDemoDocumentStore()

	tools := []struct {
		partition toolkit.Partition
		tool      toolkit.Tool
	}{
		{toolkit.PartitionInternal, &toolkit.SearchTool{Searcher: demoSearcher{}, CreditCost: cost("search", 1)}},
		{toolkit.PartitionInternal, &toolkit.FetchURLTool{Client: http.DefaultClient, CreditCost: cost("fetch-url", 1), MaxBytes: 1 << 20}},
		{toolkit.PartitionInternal, &toolkit.SaveContextTool{Sink: &demoContextSink{store: store}}},
		{toolkit.PartitionInternal, &toolkit.CollectionItemTool{Store: collections, CreditCost: cost("collection-item", 1)}},
		{toolkit.PartitionInternal, &toolkit.DocumentTool{Store: documents, CreditCost: cost("document", 2)}},
		{toolkit.PartitionInternal, &toolkit.GenerationTool{Pipeline: demoGenerationPipeline{}, CreditCost: cost("generate", 10)}},
	}

	for _, t := range tools {
		if err := registry.Register(t.partition, t.tool); err != nil {
			return fmt.Errorf("register %s: %w", t.tool.Name(), err)
		}
	}
	return nil
}
