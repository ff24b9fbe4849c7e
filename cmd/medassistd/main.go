// Medassistd is the conversational health-information daemon.
//
// It serves the chat and records API over HTTP, answers questions with
// passages retrieved from the configured knowledge base, applies the
// triage rule catalog to reported symptoms, and sweeps appointment
// reminders on a schedule.
//
// Configuration comes from built-in defaults, an optional YAML file,
// and MEDASSISTD_* environment variables. See internal/config for the
// full key reference.
//
// Usage:
//
//	# Start with defaults (in-memory records, embedded knowledge base)
//	medassistd
//
//	# Start with a config file plus environment overrides
//	medassistd -config configs/medassistd.yaml
//
//	# Show version information
//	medassistd version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/config"
	"github.com/fyrsmithlabs/medassistd/internal/ehr"
	"github.com/fyrsmithlabs/medassistd/internal/httpapi"
	"github.com/fyrsmithlabs/medassistd/internal/knowledge"
	"github.com/fyrsmithlabs/medassistd/internal/llm"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
	"github.com/fyrsmithlabs/medassistd/internal/observability"
	"github.com/fyrsmithlabs/medassistd/internal/orchestrator"
	"github.com/fyrsmithlabs/medassistd/internal/reminder"
	"github.com/fyrsmithlabs/medassistd/internal/session"
	"github.com/fyrsmithlabs/medassistd/internal/telemetry"
	"github.com/fyrsmithlabs/medassistd/internal/tools"
	"github.com/fyrsmithlabs/medassistd/internal/triage"
	"github.com/fyrsmithlabs/medassistd/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
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
			fmt.Fprintf(os.Stderr, "  medassistd            Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  medassistd version    Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("medassistd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
//
// Initialization order, each stage fatal on error:
//  1. Configuration (defaults, file, environment)
//  2. Telemetry and logging
//  3. Records store (postgres or in-memory)
//  4. Triage rule catalog
//  5. Knowledge base and embedder
//  6. Collaborator client, sessions, tool registry, orchestrator
//  7. Reminder dispatch (NATS or log-only) and the sweep scheduler
//  8. HTTP server
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "starting medassistd",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("telemetry", tel.IsEnabled()))

	metrics := observability.NewMetrics(observability.Namespace)

	records, err := ehr.NewStore(ctx, cfg.Database.URL.Value(), logger)
	if err != nil {
		return fmt.Errorf("initialize records store: %w", err)
	}
	defer records.Close()

	catalog, err := triage.LoadCatalog(cfg.Triage.RulesPath)
	if err != nil {
		return fmt.Errorf("load triage rules: %w", err)
	}
	engine := triage.NewEngine(catalog)

	logger.Info(ctx, "triage catalog loaded",
		zap.String("path", cfg.Triage.RulesPath),
		zap.Int("symptom_rules", len(catalog.Symptoms)),
		zap.Int("red_flags", len(catalog.RedFlags)))

	embedder, err := knowledge.NewEmbedder(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initialize embedder: %w", err)
	}
	kb, err := knowledge.NewStore(cfg.Knowledge, embedder, logger)
	if err != nil {
		return fmt.Errorf("initialize knowledge base: %w", err)
	}

	logger.Info(ctx, "knowledge base ready",
		zap.String("backend", cfg.Knowledge.Backend),
		zap.String("collection", cfg.Knowledge.Collection))

	collaborator, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("initialize collaborator client: %w", err)
	}

	sessions, err := session.NewManager(session.FromAppConfig(cfg.Session), logger)
	if err != nil {
		return fmt.Errorf("initialize session manager: %w", err)
	}
	sessions.SetEvictHook(func(string) { metrics.RecordEviction() })
	metrics.RegisterActiveSessions(func() float64 { return float64(sessions.Count()) })
	sessions.StartJanitor(ctx)

	registry, err := initTools(kb, engine, records, metrics, cfg.Knowledge.TopK, logger)
	if err != nil {
		return fmt.Errorf("initialize tools: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.FromAppConfig(cfg.LLM),
		collaborator, registry, sessions, records, logger, metrics)
	if err != nil {
		return fmt.Errorf("initialize orchestrator: %w", err)
	}

	dispatcher, closeDispatch, err := initDispatcher(ctx, cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("initialize reminder dispatch: %w", err)
	}
	defer closeDispatch()

	if cfg.Scheduler.Enabled {
		sched, err := reminder.NewScheduler(records, dispatcher, logger, metrics,
			reminder.WithInterval(cfg.Scheduler.Interval.Duration()))
		if err != nil {
			return fmt.Errorf("initialize reminder scheduler: %w", err)
		}
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start reminder scheduler: %w", err)
		}
		defer sched.Stop()
	} else {
		logger.Info(ctx, "reminder scheduler disabled")
	}

	srv := server.NewServer(cfg.Server, cfg.Telemetry.ServiceName, logger)

	api, err := httpapi.NewAPI(orch, sessions, records, logger)
	if err != nil {
		return fmt.Errorf("initialize http api: %w", err)
	}
	api.RegisterRoutes(srv.Echo())

	logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	// Start server (blocks until context cancellation)
	return srv.Start(ctx)
}

// initTools builds the tool registry the orchestrator exposes to the
// model: knowledge search, symptom triage, and the two records tools.
func initTools(kb knowledge.Store, engine *triage.Engine, records ehr.Store, metrics *observability.Metrics, topK int, logger *logging.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(logger, metrics)

	searchTool, err := tools.NewSearchTool(kb, topK)
	if err != nil {
		return nil, fmt.Errorf("search tool: %w", err)
	}
	triageTool, err := tools.NewTriageTool(engine, metrics)
	if err != nil {
		return nil, fmt.Errorf("triage tool: %w", err)
	}
	apptTool, err := tools.NewAppointmentTool(records)
	if err != nil {
		return nil, fmt.Errorf("appointment tool: %w", err)
	}
	remTool, err := tools.NewReminderTool(records)
	if err != nil {
		return nil, fmt.Errorf("reminder tool: %w", err)
	}

	for _, t := range []tools.Tool{searchTool, triageTool, apptTool, remTool} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// initDispatcher picks the reminder delivery path. With a NATS URL
// configured, due reminders publish to notify.subject_prefix.<method>;
// otherwise deliveries only log. The returned closer releases the NATS
// connection and is a no-op for the log path.
func initDispatcher(ctx context.Context, cfg config.NotifyConfig, logger *logging.Logger) (reminder.Dispatcher, func(), error) {
	if cfg.NATSURL == "" {
		logger.Info(ctx, "reminder delivery logs only; set notify.nats_url to publish")
		return reminder.NewLogDispatcher(logger), func() {}, nil
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
	}

	dispatcher, err := reminder.NewNATSDispatcher(nc, cfg.SubjectPrefix, logger)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	logger.Info(ctx, "reminder delivery over NATS",
		zap.String("url", cfg.NATSURL),
		zap.String("subject_prefix", cfg.SubjectPrefix))
	return dispatcher, nc.Close, nil
}
