package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/Waryjustice/azure-incident-resolver/internal/bus"
	"github.com/Waryjustice/azure-incident-resolver/internal/cloud"
	"github.com/Waryjustice/azure-incident-resolver/internal/codefix"
	"github.com/Waryjustice/azure-incident-resolver/internal/comms"
	"github.com/Waryjustice/azure-incident-resolver/internal/config"
	"github.com/Waryjustice/azure-incident-resolver/internal/detection"
	"github.com/Waryjustice/azure-incident-resolver/internal/diagnosis"
	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/Waryjustice/azure-incident-resolver/internal/handler"
	"github.com/Waryjustice/azure-incident-resolver/internal/notify"
	"github.com/Waryjustice/azure-incident-resolver/internal/observability"
	"github.com/Waryjustice/azure-incident-resolver/internal/orchestrator"
	"github.com/Waryjustice/azure-incident-resolver/internal/reasoner"
	"github.com/Waryjustice/azure-incident-resolver/internal/resolution"
	"github.com/Waryjustice/azure-incident-resolver/internal/scm"
	"github.com/Waryjustice/azure-incident-resolver/internal/store"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	// Persistence is optional: without a database the pipeline runs
	// in-memory and the knowledge store is disabled.
	var incidentStore *store.Store
	pool, err := connectDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("Database unavailable, running without persistence: %v", err)
	} else if pool != nil {
		defer pool.Close()
		incidentStore = store.NewStore(pool)
	}

	var rsn reasoner.Reasoner
	var completer codefix.Completer
	if cfg.AnthropicAPIKey != "" {
		anthropic := reasoner.NewAnthropicReasoner(reasoner.AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: time.Duration(cfg.AnthropicTimeout) * time.Second,
		})
		rsn = anthropic
		completer = anthropic
	} else {
		log.Println("ANTHROPIC_API_KEY not set, diagnosis uses the rule fallback")
	}

	diagEngine := diagnosis.NewEngine(rsn, diagnosis.NewHistory(cfg.HistorySize))
	resEngine := resolution.NewEngine(
		buildExecutors(ctx, cfg),
		buildCodeFixer(completer),
		buildPullRequester(cfg),
	)

	var notifier notify.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookSender(notify.WebhookConfig{URL: cfg.WebhookURL})
	} else {
		log.Println("WEBHOOK_URL not set, notifications disabled")
	}
	var knowledge comms.KnowledgeStore
	if incidentStore != nil {
		knowledge = incidentStore
	}
	commsEngine := comms.NewEngine(notifier, knowledge, metrics)

	var orchStore orchestrator.Store
	if incidentStore != nil {
		orchStore = incidentStore
	}
	core := orchestrator.New(diagEngine, resEngine, commsEngine, orchStore, metrics)
	pipeline := buildPipeline(ctx, cfg, core, pool)

	var pmReader handler.PostMortemReader
	if incidentStore != nil {
		pmReader = incidentStore
	}
	startMonitor(ctx, cfg, pipeline)

	incidents := handler.NewIncidentHandler(pipeline, core, pmReader)
	router := handler.SetupRouter(incidents, metrics, cfg.CORSAllowOrigin)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Incident resolver starting on :%s (bus=%s, dry_run=%v)", cfg.ServerPort, cfg.BusMode, cfg.DryRun)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

func connectDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		log.Println("DATABASE_URL not set, running without persistence")
		return nil, nil
	}
	pool, err := store.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// buildExecutors registers an automated-fix executor per immediate
// action. Each cloud client is optional; a failed client setup only
// disables the actions it backs.
func buildExecutors(ctx context.Context, cfg *config.Config) *cloud.Registry {
	registry := cloud.NewRegistry()

	awsClients, err := cloud.NewAWSClients(ctx, cfg.AWSRegion)
	if err != nil {
		log.Printf("AWS clients unavailable, database scaling and VM reboot disabled: %v", err)
		awsClients = nil
	} else {
		registry.Register(domain.ActionScaleDatabaseTier, cloud.NewDatabaseScaler(awsClients, cfg.DryRun))
	}

	var podRestarter cloud.Executor
	clientset, err := cloud.NewKubernetesClient(cfg.KubeConfig)
	if err != nil {
		log.Printf("Kubernetes client unavailable, pod restart and rollback disabled: %v", err)
	} else {
		podRestarter = cloud.NewServiceRestarter(clientset, cfg.Namespace, cfg.DryRun)
		registry.Register(domain.ActionRollbackDeployment, cloud.NewDeploymentRollback(clientset, cfg.Namespace, cfg.DryRun))
	}

	// Container services restart via pod deletion, VM-backed resources
	// via EC2 reboot.
	if podRestarter != nil || awsClients != nil {
		restart := cloud.NewTypeDispatcher(podRestarter)
		if awsClients != nil {
			restart.Route("VirtualMachine", cloud.NewInstanceRebooter(awsClients, cfg.DryRun))
		}
		registry.Register(domain.ActionRestartService, restart)
	}

	if cfg.GatewayURL != "" {
		registry.Register(domain.ActionEnableCircuitBreaker, cloud.NewCircuitBreakerExecutor(cfg.GatewayURL, cfg.DryRun))
	} else {
		log.Println("GATEWAY_ADMIN_URL not set, circuit breaker action disabled")
	}

	return registry
}

func buildCodeFixer(completer codefix.Completer) resolution.CodeFixer {
	if completer == nil {
		return nil
	}
	return codefix.NewGenerator(completer)
}

func buildPullRequester(cfg *config.Config) resolution.PullRequester {
	if cfg.GitHubToken == "" || cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
		log.Println("GitHub credentials not set, pull request creation disabled")
		return nil
	}
	return scm.NewGitHubClient(scm.GitHubConfig{
		Owner: cfg.GitHubOwner,
		Repo:  cfg.GitHubRepo,
		Token: cfg.GitHubToken,
		Base:  cfg.GitHubBaseBranch,
	})
}

// startMonitor runs the background detection loop when a Prometheus
// endpoint and a targets file are configured.
func startMonitor(ctx context.Context, cfg *config.Config, pipeline handler.Pipeline) {
	if cfg.PrometheusURL == "" || cfg.MonitorTargetsFile == "" {
		log.Println("Detection monitor disabled, incidents arrive via the API only")
		return
	}
	targets, err := detection.LoadTargets(cfg.MonitorTargetsFile)
	if err != nil {
		log.Printf("Detection monitor disabled, cannot load targets: %v", err)
		return
	}
	source := detection.NewPrometheusSource(cfg.PrometheusURL, targets, 0)
	monitor := detection.NewMonitor(detection.NewDetector(), source, pipeline,
		time.Duration(cfg.DetectionInterval)*time.Second)
	go monitor.Run(ctx)
}

// buildPipeline selects the submission path: direct in-process calls,
// an in-memory channel bus, or the durable postgres queue.
func buildPipeline(ctx context.Context, cfg *config.Config, core *orchestrator.Orchestrator, pool *pgxpool.Pool) handler.Pipeline {
	var b bus.Bus
	switch cfg.BusMode {
	case "direct":
		return core
	case "postgres":
		if pool == nil {
			log.Println("BUS_MODE=postgres requires a database, falling back to channel bus")
			b = bus.NewChannelBus()
			break
		}
		b = bus.NewPostgresBus(pool, bus.PostgresBusConfig{})
	default:
		b = bus.NewChannelBus()
	}

	queue := orchestrator.NewQueuePipeline(core, b)
	go func() {
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Queue pipeline stopped: %v", err)
		}
	}()
	return queue
}
