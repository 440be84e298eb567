// Command workflowserver wires the workflow core's dependencies and
// serves its HTTP surface: flag parsing and explicit construction, no
// dependency-injection framework.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flowforge/agentcore/checkpointer"
	"github.com/flowforge/agentcore/config"
	"github.com/flowforge/agentcore/graph"
	"github.com/flowforge/agentcore/graph/emit"
	"github.com/flowforge/agentcore/graph/model"
	"github.com/flowforge/agentcore/graph/model/anthropic"
	"github.com/flowforge/agentcore/graph/model/google"
	"github.com/flowforge/agentcore/graph/model/openai"
	"github.com/flowforge/agentcore/httpapi"
	"github.com/flowforge/agentcore/llm"
	"github.com/flowforge/agentcore/toolregistry"
	"github.com/flowforge/agentcore/workflow"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file (optional; zero-config defaults are used if absent)")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("workflowserver: %v", err)
	}

	chat, err := buildChatModel(cfg.LLM)
	if err != nil {
		log.Fatalf("workflowserver: %v", err)
	}
	gateway := llm.New(chat, cfg.LLM.Model)

	checkpoints := buildCheckpointer(cfg.Checkpointer)

	metricsRegistry := prometheus.NewRegistry()
	metrics := graph.NewPrometheusMetrics(metricsRegistry)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metricsRegistry)
	}

	baseEmitter := buildEmitter()

	catalog := toolregistry.DefaultCatalog()
	pool := toolregistry.NewPool(catalog)
	buildRegistry := func(credentials map[string]string) workflow.Registry {
		return pool.Build(credentials)
	}

	svc := workflow.NewService(
		checkpoints,
		gateway,
		cfg.LLM.Model,
		buildRegistry,
		workflow.NewInMemoryMetadataStore(),
		metrics,
		baseEmitter,
	)
	svc.SetTunables(workflow.Tunables{
		MaxSteps:           cfg.Engine.MaxSteps,
		DefaultNodeTimeout: cfg.Engine.DefaultNodeTimeout.Std(),
		RunWallClockBudget: cfg.Engine.RunWallClockBudget.Std(),
	})

	router := httpapi.NewRouter(svc)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams can run far longer than a fixed write deadline allows
	}

	go func() {
		log.Printf("workflowserver: listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("workflowserver: %v", err)
		}
	}()

	waitForShutdown(srv)
}

// loadConfig reads configFile if given, otherwise falls back to
// config.Default(), then layers environment overrides and validates the
// result.
func loadConfig(configFile string) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		loaded.SetDefaults()
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildChatModel selects the provider adapter named by cfg.Provider from
// graph/model/{anthropic,openai,google}; the Gateway above is
// provider-agnostic over whichever model.ChatModel this returns.
func buildChatModel(cfg config.LLMConfig) (model.ChatModel, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewChatModel(cfg.APIKey, cfg.Model), nil
	case "openai":
		return openai.NewChatModel(cfg.APIKey, cfg.Model), nil
	case "google":
		return google.NewChatModel(cfg.APIKey, cfg.Model), nil
	default:
		// config.Validate already rejects unknown providers; this is
		// unreachable in practice but keeps buildChatModel total.
		return nil, os.ErrInvalid
	}
}

// buildCheckpointer opens the durable backend named by cfg.Backend. An
// unreachable backend logs a warning and falls back to the in-memory
// store rather than failing startup.
func buildCheckpointer(cfg config.CheckpointerConfig) checkpointer.Checkpointer[workflow.GraphState] {
	switch cfg.Backend {
	case "sqlite":
		cp, err := checkpointer.NewSQLiteCheckpointer[workflow.GraphState](cfg.DSN)
		if err != nil {
			log.Printf("workflowserver: sqlite checkpointer unavailable (%v), falling back to in-memory", err)
			return checkpointer.NewMemCheckpointer[workflow.GraphState]()
		}
		return cp
	case "mysql":
		cp, err := checkpointer.NewMySQLCheckpointer[workflow.GraphState](cfg.DSN)
		if err != nil {
			log.Printf("workflowserver: mysql checkpointer unavailable (%v), falling back to in-memory", err)
			return checkpointer.NewMemCheckpointer[workflow.GraphState]()
		}
		return cp
	default:
		return checkpointer.NewMemCheckpointer[workflow.GraphState]()
	}
}

// buildEmitter fans node-lifecycle events out to a LogEmitter (always)
// and, when OTEL_ENABLED is set, an OTelEmitter, so every graph
// transition is logged and optionally traced.
func buildEmitter() emit.Emitter {
	logEmitter := emit.NewLogEmitter(os.Stdout, os.Getenv("LOG_FORMAT") == "json")
	if os.Getenv("OTEL_ENABLED") == "" {
		return logEmitter
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracer := tp.Tracer("workflowserver")
	return emit.NewMultiEmitter(logEmitter, emit.NewOTelEmitter(tracer))
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	log.Printf("workflowserver: metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("workflowserver: metrics server error: %v", err)
	}
}

func waitForShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("workflowserver: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("workflowserver: shutdown error: %v", err)
	}
}
