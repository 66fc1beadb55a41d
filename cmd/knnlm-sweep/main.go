// Package main is the knnlm-sweep CLI entry point. It sweeps kNN softmax
// temperatures over a query set and persists the per-temperature outputs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/knnlm"
	"github.com/hupe1980/knnlm/internal/config"
	promcollector "github.com/hupe1980/knnlm/metrics/prometheus"
	"github.com/hupe1980/knnlm/resource"
	"github.com/hupe1980/knnlm/sweep"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "knnlm-sweep: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("knnlm-sweep", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	resume := fs.Bool("resume", false, "skip temperatures already committed")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "knnlm-sweep version %s\n", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *resume {
		cfg.Sweep.Resume = true
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	logger.Info("config loaded", slog.String("config_path", *configPath))

	rc := resource.NewController(cfg.Resource)
	opts := []knnlm.Option{
		knnlm.WithLogger(logger),
		knnlm.WithResourceController(rc),
		knnlm.WithoutFusion(),
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector, err := promcollector.NewCollector(reg, "knnlm")
		if err != nil {
			return err
		}
		opts = append(opts, knnlm.WithMetricsCollector(collector))

		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sweepCfg, err := cfg.SweepConfig()
	if err != nil {
		return err
	}

	out, err := newOutputStore(ctx, cfg.Output)
	if err != nil {
		return fmt.Errorf("output store: %w", err)
	}

	commitLog, err := newCommitLog(ctx, cfg, out)
	if err != nil {
		return fmt.Errorf("commit log: %w", err)
	}

	lm, err := knnlm.Open(ctx, cfg.Datastore, opts...)
	if err != nil {
		return err
	}
	defer lm.Close()

	loadOpts := []sweep.Option{sweep.WithLogger(logger.Logger), sweep.WithResourceController(rc)}
	queries, err := sweep.LoadQueries(ctx, cfg.Sweep.Queries, loadOpts...)
	if err != nil {
		return err
	}
	tokens, err := sweep.LoadTokens(ctx, cfg.Sweep.Tokens, loadOpts...)
	if err != nil {
		return err
	}

	report, err := lm.Sweep(ctx, out, sweepCfg, queries, tokens, sweep.WithCommitLog(commitLog))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "computed %d temperatures, skipped %d, recall %.4f\n",
		len(report.Points), len(report.Skipped), report.Recall)
	for _, p := range report.Points {
		fmt.Fprintf(stdout, "T=%s mean_log_prob=%.6f elapsed=%s\n", p.Key, p.MeanLogProb, p.Elapsed.Round(time.Millisecond))
	}

	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*knnlm.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return knnlm.NewLogger(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return knnlm.NewLogger(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *knnlm.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	return srv
}
