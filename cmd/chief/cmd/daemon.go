package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	chiefconfig "chief/internal/config"
	"chief/internal/exec"
	"chief/internal/heartbeat"
	"chief/internal/logger"
	"chief/internal/observability"
	"chief/internal/orchestrator"
	"chief/internal/telemetry"
)

var daemonPollSeconds int

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the orchestrator: scheduler, telemetry emitter, and heartbeat ticker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := chiefconfig.LoadChiefConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		pollInterval := time.Duration(cfg.PollSeconds) * time.Second
		if daemonPollSeconds > 0 {
			pollInterval = time.Duration(daemonPollSeconds) * time.Second
		}

		log := logger.New()

		now := time.Now()
		jobs, err := loadAndCompile(configPath(), now)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		shutdownTracer, err := observability.InitTracer(ctx, "chief", cfg.OTELEndpoint)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer shutdownTracer(context.Background())

		metricsHandler, shutdownMetrics, err := observability.InitMetrics()
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer shutdownMetrics(context.Background())

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metricsHandler)
			log.Info("chief metrics listening", "addr", ":6164")
			if err := http.ListenAndServe(":6164", mux); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()

		emitter, err := telemetry.NewEmitter(telemetry.EmitterConfig{
			MonitorURL:      cfg.MonitorEndpoint,
			APIKey:          cfg.MonitorAPIKey,
			FlushInterval:   cfg.EmitterFlushInterval,
			SpoolPath:       cfg.SpoolPath,
			HTTPTimeout:     cfg.EmitterTimeout,
			BufferMaxEvents: cfg.EmitterBufferMaxEvents,
		}, log)
		if err != nil {
			return fmt.Errorf("build telemetry emitter: %w", err)
		}

		executor := exec.NewExecutor(exec.NewExecRuntime(""))
		executor.MonitorEndpoint = cfg.MonitorEndpoint
		executor.MonitorAPIKey = cfg.MonitorAPIKey

		d := orchestrator.New(jobs, executor, emitter, pollInterval, log)
		d.Seed(now)

		ticker := heartbeat.NewTicker(cfg.HeartbeatInterval, emitter, log)

		var g errgroup.Group
		g.Go(func() error { emitter.Run(ctx); return nil })
		g.Go(func() error { ticker.Run(ctx); return nil })
		g.Go(func() error { return d.Run(ctx) })

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		interrupted := false
		select {
		case <-quit:
			log.Info("chief daemon shutting down")
			interrupted = true
			cancel()
		case <-ctx.Done():
		}

		if err := g.Wait(); err != nil {
			return err
		}
		<-emitter.Stopped()

		if interrupted {
			return errInterrupted
		}
		return nil
	},
}

func init() {
	daemonCmd.Flags().IntVar(&daemonPollSeconds, "poll-seconds", 0, "override the scheduler poll interval in seconds")
	rootCmd.AddCommand(daemonCmd)
}
