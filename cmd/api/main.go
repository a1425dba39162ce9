package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/Cypherspark/devops-app/internal/config"
	"github.com/Cypherspark/devops-app/internal/core"
	"github.com/Cypherspark/devops-app/internal/db"
	httpapi "github.com/Cypherspark/devops-app/internal/http"
	"github.com/Cypherspark/devops-app/internal/lifecycle"
	"github.com/Cypherspark/devops-app/internal/logging"
	"github.com/Cypherspark/devops-app/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		exitCode = 1
		return
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		exitCode = 1
		return
	}

	// ---- Context / signals ----
	rootCtx, cancel := lifecycle.SignalContext(context.Background(), logger, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(rootCtx, cfg, logger, nil); err != nil {
		logger.WithError(err).Error("Server exited with error")
		exitCode = 1
	}
}

// run blocks until ctx is done and the service has drained. ready, when set,
// receives the bound address once the listener is open.
func run(ctx context.Context, cfg config.Config, logger *log.Logger, ready func(addr string)) error {
	started := time.Now()
	mgr := lifecycle.New(lifecycle.Options{Logger: logger, ShutdownTimeout: cfg.ShutdownTimeout})

	// ---- DB ----
	pool, err := db.NewPool(ctx, cfg.DB)
	if err != nil {
		return err
	}
	store := db.NewDB(pool, cfg.DB.QueryTimeout)

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	stopStats := make(chan struct{})
	if cfg.Metrics.Enabled {
		stats := metrics.NewPGXPoolStats(reg, pool)
		go stats.Start(cfg.Metrics.PoolStatsInterval, stopStats)
	}

	svc := core.NewService(store, core.Options{
		Environment: cfg.Environment,
		Hostname:    cfg.Hostname,
		Logger:      logger,
		Observer:    m,
		Classify:    db.Classify,
	})

	// ---- Bootstrap (never fatal) ----
	svc.Bootstrap(ctx)

	// ---- HTTP server ----
	ln, err := net.Listen("tcp", cfg.HTTP.Addr())
	if err != nil {
		close(stopStats)
		store.Close()
		return fmt.Errorf("listen: %w", err)
	}

	opts := httpapi.Options{
		Logger:           logger,
		Metrics:          m,
		ProcessRateLimit: cfg.HTTP.ProcessRateLimit,
		ProcessRateBurst: cfg.HTTP.ProcessRateBurst,
		StartedAt:        started,
	}
	if cfg.Metrics.Enabled {
		opts.Gatherer = reg
	}
	api := httpapi.NewServer(svc, opts)
	server := &http.Server{
		Handler:      api.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	mgr.OnShutdown("pool stats", func(context.Context) error {
		close(stopStats)
		return nil
	})
	mgr.OnShutdown("db pool", lifecycle.Blocking(store.Close))

	addr := ln.Addr().String()
	logger.Infof("Server is running on %s", addr)
	logger.Infof("Environment: %s", cfg.Environment)
	logger.Infof("Health check: http://%s/health", addr)
	if ready != nil {
		ready(addr)
	}

	return mgr.Run(ctx, server, ln)
}
