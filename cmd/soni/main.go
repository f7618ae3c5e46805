// Command soni is the reference host process for the Dialogue Runtime
// Core: it loads one flow document, wires the registries/checkpointer/NLU
// provider the document's own settings call for, and serves it over the
// Telegram transport. Grounded on the teacher's examples/basic-bot/main.go
// (env-derived token, log.Fatal on setup failure, bot.Start() as the last
// call) generalized from a fixed teacher Bot to a document-driven
// runtime.Engine.
package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jmorenobl/soni/checkpoint"
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/graph"
	"github.com/jmorenobl/soni/nlu"
	"github.com/jmorenobl/soni/nlu/anthropicnlu"
	"github.com/jmorenobl/soni/nlu/openainlu"
	"github.com/jmorenobl/soni/nlu/rulebased"
	"github.com/jmorenobl/soni/registry"
	"github.com/jmorenobl/soni/responses"
	"github.com/jmorenobl/soni/runtime"
	"github.com/jmorenobl/soni/telemetry"
	"github.com/jmorenobl/soni/transport/telegram"
)

func main() {
	if lvl, err := logrus.ParseLevel(getenv("SONI_LOG_LEVEL", "info")); err == nil {
		telemetry.SetLevel(lvl)
	}

	docPath := os.Getenv("SONI_DOC_PATH")
	if docPath == "" {
		log.Fatal("SONI_DOC_PATH environment variable is required")
	}
	token := os.Getenv("SONI_TELEGRAM_TOKEN")
	if token == "" {
		log.Fatal("SONI_TELEGRAM_TOKEN environment variable is required")
	}

	doc, err := dsl.Load(docPath)
	if err != nil {
		log.Fatalf("failed to load flow document %s: %v", docPath, err)
	}

	// Action/validator/normalizer registries start empty: actions,
	// validators and normalizers are deployment-specific collaborators
	// (§3's registries are "the contract, not the implementation") that a
	// concrete bot adds before compiling. A generic host has nothing
	// domain-specific to register; any step naming an unregistered
	// collaborator is rejected by graph.Compile below with a CompileError,
	// so the host exits at startup rather than silently no-opping.
	regs := graph.Registries{
		Actions:     registry.NewActionRegistry(),
		Validators:  registry.NewValidatorRegistry(),
		Normalizers: registry.NewNormalizerRegistry(),
	}

	graphs, warnings, err := graph.Compile(doc, regs)
	if err != nil {
		log.Fatalf("failed to compile flow document: %v", err)
	}
	for _, w := range warnings {
		telemetry.Log.WithField("warning", w).Warn("flow document compiled with warnings")
	}

	checkpointer, err := buildCheckpointer(doc.Settings.Persistence.Backend)
	if err != nil {
		log.Fatalf("failed to build checkpointer: %v", err)
	}

	understander, generator := buildNLU(doc)

	promReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(promReg)
	go serveMetrics(promReg)

	engine := runtime.NewEngine(runtime.Config{
		Doc:          doc,
		Graphs:       graphs,
		Actions:      regs.Actions,
		Validators:   regs.Validators,
		Normalizers:  regs.Normalizers,
		NormCache:    registryCache(),
		Understander: understander,
		Generator:    generator,
		Responses:    responses.New(doc.Responses, doc.Settings),
		Checkpointer: checkpointer,
		Metrics:      metrics,
	})

	bot, err := telegram.NewFromToken(token, engine)
	if err != nil {
		log.Fatalf("failed to create telegram bot: %v", err)
	}

	telemetry.Log.Info("starting soni dialogue runtime")
	if err := bot.Start(); err != nil {
		log.Fatalf("telegram transport stopped: %v", err)
	}
}

// buildCheckpointer selects a checkpoint.Checkpointer per the document's
// own settings.persistence.backend (§6.1): the value is opaque to the
// core (dsl/ir.go's Settings doc comment), it is this host's job to know
// what "redis"/"sqlite"/"memory" mean.
func buildCheckpointer(backend string) (checkpoint.Checkpointer, error) {
	switch backend {
	case "", "memory":
		return checkpoint.NewMemoryCheckpointer(), nil
	case "redis":
		url := os.Getenv("SONI_REDIS_URL")
		if url == "" {
			url = "redis://localhost:6379/0"
		}
		ttl := envDuration("SONI_SESSION_TTL", time.Hour)
		return checkpoint.NewRedisCheckpointer(url, ttl)
	case "sqlite":
		path := getenv("SONI_SQLITE_PATH", "soni.db")
		return checkpoint.NewSQLiteCheckpointer(path)
	default:
		log.Fatalf("unknown persistence.backend %q (want memory, redis, or sqlite)", backend)
		return nil, nil
	}
}

// buildNLU selects the NLU provider pair per SONI_NLU_PROVIDER, defaulting
// to the dependency-free rule-based provider so the bot runs without any
// API key configured. The rule-based provider is seeded with one pattern
// per flow name so a fresh document is immediately reachable by typing
// the flow's own name.
func buildNLU(doc *dsl.Document) (nlu.Understander, nlu.Generator) {
	switch os.Getenv("SONI_NLU_PROVIDER") {
	case "anthropic":
		p := anthropicnlu.New(os.Getenv("SONI_ANTHROPIC_API_KEY"), os.Getenv("SONI_ANTHROPIC_MODEL"))
		return p, p
	case "openai":
		p := openainlu.New(os.Getenv("SONI_OPENAI_API_KEY"), os.Getenv("SONI_OPENAI_MODEL"))
		return p, p
	default:
		p := rulebased.New()
		for name := range doc.Flows {
			p.Register(rulebased.Pattern{Command: name, Phrases: []string{name}})
		}
		return p, p
	}
}

func registryCache() *registry.NormalizationCache {
	return registry.NewNormalizationCache(5 * time.Minute)
}

// serveMetrics exposes the Prometheus registry over /metrics on
// SONI_METRICS_ADDR (default :9090), grounded on
// dshills-langgraph-go's prometheus_monitoring example.
func serveMetrics(reg *prometheus.Registry) {
	addr := getenv("SONI_METRICS_ADDR", ":9090")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	telemetry.Log.WithField("addr", addr).Info("serving prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		telemetry.Log.WithError(err).Error("metrics server stopped")
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
