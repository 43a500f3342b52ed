// Command modforge runs the modpack assembly and crash-analysis service.
//
// Configuration is loaded entirely from environment variables, per
// internal/config; see internal/config.Load for the full variable list.
//
// Usage:
//
//	# Start server with defaults
//	modforge
//
//	# Configure via environment
//	SERVER_PORT=9090 LLM_MODEL=gpt-4o modforge
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/modforge/assembler/internal/architect"
	"github.com/modforge/assembler/internal/categorizer"
	"github.com/modforge/assembler/internal/config"
	"github.com/modforge/assembler/internal/crash"
	"github.com/modforge/assembler/internal/embedder"
	httpapi "github.com/modforge/assembler/internal/http"
	"github.com/modforge/assembler/internal/llmgateway"
	"github.com/modforge/assembler/internal/logging"
	"github.com/modforge/assembler/internal/modstore"
	"github.com/modforge/assembler/internal/orchestrator"
	"github.com/modforge/assembler/internal/planner"
	"github.com/modforge/assembler/internal/quota"
	"github.com/modforge/assembler/internal/registry"
	"github.com/modforge/assembler/internal/retrieval"
	"github.com/modforge/assembler/internal/selector"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  modforge           Start the modforge daemon\n")
			fmt.Fprintf(os.Stderr, "  modforge version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("server shutdown complete")
}

func printVersion() {
	fmt.Printf("modforge\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run initializes every dependency of §4/§5 and blocks serving HTTP until
// ctx is cancelled.
func run(ctx context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting modforge",
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.String("llm_model", cfg.LLM.Model))

	deps, err := initDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	srv, err := buildServer(logger.Underlying(), cfg, deps)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "error during shutdown", zap.Error(err))
		}
	}()

	return srv.Start()
}

// initLogger builds the structured logger used for daemon-level events;
// per-request logging inside internal/http uses the plain *zap.Logger
// returned by Underlying().
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	logCfg.Fields["service"] = cfg.Observability.ServiceName
	if !cfg.Observability.EnableTelemetry {
		logCfg.Level = zapcore.DebugLevel
		logCfg.Format = "console"
		logCfg.Sampling.Enabled = false
	}
	return logging.NewLogger(logCfg, nil)
}

// dependencies holds every infrastructure client the pipeline stages are
// built on top of.
type dependencies struct {
	store    *modstore.Store
	backend  modstore.Backend
	embedder *embedder.FastEmbedEmbedder
	gateway  *llmgateway.Gateway
	registry *registry.Client
	quota    *quota.Gate
}

func (d *dependencies) Close() {
	if d.backend != nil {
		_ = d.backend.Close()
	}
	if d.embedder != nil {
		_ = d.embedder.Close()
	}
}

// initDependencies wires the LLM gateway, embedder, mod-store backend, and
// registry client from cfg, then wraps the mod-store backend and an
// in-memory quota store into their respective facades.
func initDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithModel(cfg.LLM.Model),
		openai.WithToken(cfg.LLM.APIKey.Value()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}
	gateway := llmgateway.New(llm, cfg.LLM.Model, llmgateway.PricePerMillion{
		Input:  cfg.LLM.PriceInputPerMil,
		Output: cfg.LLM.PriceOutputPerMil,
	}, cfg.LLM.RateLimitPerSecond, cfg.LLM.RateLimitBurst)

	emb, err := embedder.New(embedder.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	backendCfg, err := storeBackendConfig(cfg.Store.URL, cfg.Store.Key.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing STORE_URL: %w", err)
	}
	backend, err := modstore.NewBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("creating mod-store backend: %w", err)
	}

	store := modstore.New(backend, emb, modstore.NewInMemoryWriteLog())

	registryClient := registry.New(cfg.Registry.BaseURL)

	gate := quota.NewGate(quota.NewInMemoryStore(nil))

	return &dependencies{
		store:    store,
		backend:  backend,
		embedder: emb,
		gateway:  gateway,
		registry: registryClient,
		quota:    gate,
	}, nil
}

// storeBackendConfig maps the validated http(s) STORE_URL onto the Qdrant
// gRPC host/port pair NewBackend expects; a URL without a host is
// impossible here since Validate already required an http(s) URL.
func storeBackendConfig(storeURL, apiKey string) (modstore.BackendConfig, error) {
	parsed, err := url.Parse(storeURL)
	if err != nil {
		return modstore.BackendConfig{}, err
	}
	host := parsed.Hostname()
	port := 6333
	if p := parsed.Port(); p != "" {
		if parsedPort, err := strconv.Atoi(p); err == nil {
			port = parsedPort
		}
	}
	return modstore.BackendConfig{QdrantHost: host, QdrantPort: port, QdrantAPIKey: apiKey}, nil
}

// buildServer wires every pipeline stage and the HTTP layer on top of deps.
func buildServer(logger *zap.Logger, cfg *config.Config, deps *dependencies) (*httpapi.Server, error) {
	p := planner.New(deps.gateway)
	a := architect.New(deps.gateway, deps.store)
	r := retrieval.New(deps.store)
	sel := selector.New(deps.gateway)
	cat := categorizer.New(deps.gateway)

	assembler := orchestrator.NewAssembler(p, a, r, sel, cat, deps.store, deps.quota)

	dedup := crash.NewDedupCache(cfg.Quota.DedupTTL)
	pipeline := crash.New(deps.gateway, deps.store, deps.registry, dedup)
	crashOrch := orchestrator.NewCrashOrchestrator(pipeline, deps.quota)

	httpCfg := &httpapi.Config{
		Host:                  "0.0.0.0",
		Port:                  cfg.Server.Port,
		JWTSecret:             cfg.Auth.JWTSecret.Value(),
		JWTAudience:           cfg.Auth.JWTAudience,
		RequestBudgetAssembly: cfg.Quota.RequestBudgetAssembly,
		RequestBudgetCrash:    cfg.Quota.RequestBudgetCrash,
	}

	return httpapi.NewServer(logger, httpCfg, assembler, crashOrch, cat, deps.store, deps.quota)
}
