// Package main is the entry point for overwatch, the telemetry
// Monitor: it ingests chief's events over HTTP, maintains per-job
// check state, and manages alert lifecycles.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chief/internal/config"
	"chief/internal/logger"
	"chief/internal/monitor/check"
	"chief/internal/monitor/ingest"
	"chief/internal/monitor/retention"
	"chief/internal/monitor/store"
	"chief/internal/observability"
)

func main() {
	log := logger.New()

	cfg, err := config.LoadOverwatchConfig()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, cfg.DBPath)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	shutdownTracer, err := observability.InitTracer(ctx, "overwatch", cfg.OTELEndpoint)
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer shutdownMetrics(context.Background())

	engine := check.New(st, st, log)
	evaluator := check.NewEvaluator(st, st, log)
	evaluator.RecoveryTTL = time.Duration(cfg.RecoveryTTLSeconds) * time.Second

	sweeper := retention.NewSweeper(st, cfg.RetentionDays,
		time.Duration(cfg.RetentionIntervalSeconds)*time.Second, time.Now, log)

	srv := ingest.New(ingest.Config{
		Addr:          cfg.Addr,
		APIKey:        cfg.APIKey,
		RatePerSecond: cfg.RatePerSecond,
		RateBurst:     cfg.RateBurst,
		BatchLimit:    cfg.BatchLimit,
	}, st, engine, time.Now, log)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Info("overwatch metrics listening", "addr", ":6163")
		if err := http.ListenAndServe(":6163", mux); err != nil {
			log.Error("metrics server error", "error", err)
		}
	}()

	var g errgroup.Group
	g.Go(func() error {
		log.Info("overwatch ingest listening", "addr", cfg.Addr)
		return srv.Run(ctx)
	})
	g.Go(func() error {
		evaluator.Run(ctx, time.Duration(cfg.EvaluatorIntervalSeconds)*time.Second, time.Now)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("overwatch shutting down")
	cancel()

	if err := g.Wait(); err != nil {
		log.Error("overwatch stopped with error", "error", err)
		fmt.Println(err)
	}
}
