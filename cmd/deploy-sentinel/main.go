package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dreschagin/deploy-sentinel/internal/audit"
	"github.com/dreschagin/deploy-sentinel/internal/discovery"
	"github.com/dreschagin/deploy-sentinel/internal/discovery/k8s"
	"github.com/dreschagin/deploy-sentinel/internal/monitor"
	"github.com/dreschagin/deploy-sentinel/internal/notify"
	"github.com/dreschagin/deploy-sentinel/internal/observability/cloudwatch"
	"github.com/dreschagin/deploy-sentinel/internal/report"
	"github.com/dreschagin/deploy-sentinel/pkg/config"
	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

type options struct {
	environment     string
	configPath      string
	durationMinutes int
	dryRun          bool
}

func main() {
	opts := options{}

	root := &cobra.Command{
		Use:   "deploy-sentinel",
		Short: "Post-deployment health monitor with automatic rollback",
		Long: "deploy-sentinel watches a freshly deployed service for a fixed window, " +
			"compares its health and metrics against configured quality gates, and " +
			"triggers at most one rollback when the gates fail.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	root.Flags().StringVar(&opts.environment, "env", "", "environment to monitor (required)")
	root.Flags().StringVar(&opts.configPath, "config", "config/monitor.json", "path to the monitor config file")
	root.Flags().IntVar(&opts.durationMinutes, "duration-minutes", 60, "length of the monitoring window")
	root.Flags().BoolVar(&opts.dryRun, "dry-run", false, "evaluate gates but never perform a real rollback")
	_ = root.MarkFlagRequired("env")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "deploy-sentinel: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	infra, err := config.LoadInfra()
	if err != nil {
		return fmt.Errorf("load infrastructure config: %w", err)
	}

	log := logger.New(infra.LogLevel)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	env, err := cfg.Environment(opts.environment)
	if err != nil {
		return err
	}

	if opts.durationMinutes <= 0 {
		return fmt.Errorf("duration-minutes must be positive")
	}
	duration := time.Duration(opts.durationMinutes) * time.Minute

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseURL, err := resolveBaseURL(ctx, env.BaseURL, infra.Discovery)
	if err != nil {
		return fmt.Errorf("resolve service base URL: %w", err)
	}

	log.Info("Starting deployment monitor",
		"environment", opts.environment,
		"base_url", baseURL,
		"duration", duration.String(),
		"dry_run", opts.dryRun,
	)

	notifier, err := buildNotifier(infra.Notify, log)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}
	defer notifier.Close()

	publisher, err := buildPublisher(ctx, infra.CloudWatch)
	if err != nil {
		return fmt.Errorf("build datapoint publisher: %w", err)
	}
	if publisher != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := publisher.Close(closeCtx); err != nil {
				log.Warn("CloudWatch publisher close failed", "error", err.Error())
			}
		}()
	}

	timeout := time.Duration(cfg.HealthCheck.TimeoutSeconds) * time.Second

	var executor monitor.RollbackExecutor
	if opts.dryRun {
		executor = monitor.NewDryRunExecutor(log)
	} else {
		executor = monitor.NewExecExecutor(cfg.Rollback.Command, cfg.Rollback.Timeout(), log)
	}

	registry := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(registry)

	loop := monitor.NewLoop(
		monitor.LoopConfig{
			Environment:        opts.environment,
			DryRun:             opts.dryRun,
			Duration:           duration,
			FastPhase:          cfg.PollIntervals.FastPhase(),
			FastInterval:       cfg.PollIntervals.FastInterval(),
			SlowInterval:       cfg.PollIntervals.SlowInterval(),
			StabilityThreshold: cfg.HealthCheck.RequiredConsecutiveOKForStability,
		},
		monitor.LoopDeps{
			Probe:     monitor.NewHealthProbe(baseURL, cfg.HealthCheck.Endpoint, timeout, cfg.HealthCheck.ExpectedStatus, log),
			Collector: monitor.NewMetricsCollector(baseURL, cfg.MetricsEndpoints, timeout, log),
			Baseline:  monitor.NewBaselineTracker(monitor.NewFileBaselineStore(cfg.BaselineDir), log),
			Gates:     monitor.NewGateEvaluator(monitor.RulesFromConfig(cfg.AutoRollbackTriggers)),
			Rollback:  monitor.NewRollbackCoordinator(executor, opts.dryRun, log),
			Notifier:  notifier,
			Publisher: publisher,
			Metrics:   metrics,
			Log:       log,
		},
	)

	statusServer := startStatusServer(infra.StatusPort, loop, registry, log)
	if statusServer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = statusServer.Shutdown(shutdownCtx)
		}()
	}

	session, runErr := loop.Run(ctx)
	finishedAt := time.Now().UTC()

	// The audit trail and report are recorded for every terminal state,
	// rollback failures included.
	recordOutcome(log, infra, session, finishedAt)

	if runErr != nil {
		if errors.Is(runErr, monitor.ErrRollbackFailed) {
			return runErr
		}
		return fmt.Errorf("monitoring aborted: %w", runErr)
	}

	log.Info("Monitoring finished",
		"session_id", session.ID,
		"state", string(session.State),
		"checks", session.CheckCount,
	)
	return nil
}

// resolveBaseURL prefers Kubernetes service discovery when enabled and falls
// back to the statically configured URL otherwise.
func resolveBaseURL(ctx context.Context, staticURL string, cfg config.DiscoveryConfig) (string, error) {
	var resolver discovery.Resolver

	if cfg.Enabled {
		k8sResolver, err := k8s.NewInClusterResolver(cfg.Namespace, cfg.ServiceSelector)
		if err != nil {
			return "", err
		}
		resolver = k8sResolver
	} else {
		staticResolver, err := discovery.NewStaticResolver(staticURL)
		if err != nil {
			return "", err
		}
		resolver = staticResolver
	}

	resolved, err := resolver.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(resolved.String(), "/"), nil
}

func buildNotifier(cfg config.NotifyConfig, log *logger.Logger) (notify.Notifier, error) {
	logNotifier := notify.NewLogNotifier(log)
	if !cfg.NATSEnabled {
		return logNotifier, nil
	}

	natsNotifier, err := notify.NewNATSNotifier(cfg.NATSURL, cfg.SubjectPrefix, log)
	if err != nil {
		return nil, err
	}

	throttled := notify.NewThrottled(natsNotifier, cfg.RatePerMinute, cfg.Burst, log)
	return notify.NewMulti(logNotifier, throttled), nil
}

func buildPublisher(ctx context.Context, cfg config.CloudWatchConfig) (*cloudwatch.Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	return cloudwatch.NewPublisher(ctx, cloudwatch.PublisherConfig{
		Namespace:       cfg.Namespace,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		BufferSize:      cfg.BufferSize,
		FlushInterval:   cfg.FlushInterval,
	})
}

// startStatusServer exposes /healthz, the status endpoint and /metrics when a
// port is configured. Returns nil when the server is disabled.
func startStatusServer(port string, loop *monitor.Loop, registry *prometheus.Registry, log *logger.Logger) *http.Server {
	if port == "" {
		return nil
	}

	handler := monitor.NewHandler(loop, registry)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Info("Status server started", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Status server failed", err)
		}
	}()

	return server
}

// recordOutcome persists the finished session to the optional audit trail and
// report bucket. Both are best-effort; failures never change the exit code.
func recordOutcome(log *logger.Logger, infra *config.InfraConfig, session *monitor.Session, finishedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if infra.Audit.Enabled {
		store, err := audit.Open(ctx, infra.Audit.DSN(), log)
		if err != nil {
			log.Warn("Audit trail unavailable", "error", err.Error())
		} else {
			if err := store.RecordSession(ctx, session, finishedAt); err != nil {
				log.Warn("Audit record failed", "error", err.Error())
			}
			store.Close()
		}
	}

	if infra.Report.Enabled {
		uploader, err := report.NewUploader(ctx, report.Config{
			Bucket:          infra.Report.Bucket,
			Region:          infra.Report.Region,
			Endpoint:        infra.Report.Endpoint,
			AccessKeyID:     infra.Report.AccessKeyID,
			SecretAccessKey: infra.Report.SecretAccessKey,
			UsePathStyle:    infra.Report.UsePathStyle,
			KeyPrefix:       infra.Report.KeyPrefix,
		})
		if err != nil {
			log.Warn("Report uploader unavailable", "error", err.Error())
			return
		}

		key, err := uploader.Upload(ctx, report.FromSession(session, finishedAt))
		if err != nil {
			log.Warn("Report upload failed", "error", err.Error())
			return
		}
		log.Info("Session report uploaded", "key", key)
	}
}
