package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dicklesworthstone/procmon"
	"github.com/Dicklesworthstone/procmon/internal/config"
	"github.com/Dicklesworthstone/procmon/internal/exporter"
	"github.com/Dicklesworthstone/procmon/internal/logging"
	"github.com/Dicklesworthstone/procmon/internal/sampler"
	"github.com/Dicklesworthstone/procmon/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"
)

func main() {
	cfg, err := config.FromFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "procmon:", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "procmon:", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	tui := !cfg.JSON && !cfg.JSONStream
	if tui && !term.IsTerminal(int(os.Stdout.Fd())) {
		// no terminal to draw on; stream frames instead
		tui = false
		cfg.JSONStream = true
	}

	log := logging.New(os.Stderr, "procmon", cfg.LogLevel)
	if tui {
		fileLog, closeFn, path, err := logging.Setup("procmon", cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		defer closeFn()
		log = fileLog
		log.Info("logging to file", "path", path)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon, err := procmon.NewWithConfig(procmon.Config{Logger: log})
	if err != nil {
		return fmt.Errorf("creating monitor: %w", err)
	}
	if cfg.Cores > mon.CoreCount() {
		return fmt.Errorf("-cores %d exceeds the %d detected cores", cfg.Cores, mon.CoreCount())
	}

	for i := 0; i < cfg.Burn; i++ {
		go burn(ctx)
	}

	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(mon, cfg.MetricsAddr, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	s := sampler.New(mon, cfg, log)
	log.Info("sampler starting",
		"run_id", s.RunID(), "interval", cfg.Interval, "scopes", fmt.Sprint(cfg.Scopes),
		"cores", mon.CoreCount(), "platform", mon.Platform().String())

	switch {
	case cfg.JSON:
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		f, ok := <-s.Stream(ctx)
		if !ok {
			return ctx.Err()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(f)
	case cfg.JSONStream:
		enc := json.NewEncoder(os.Stdout)
		for f := range s.Stream(ctx) {
			if err := enc.Encode(f); err != nil {
				return err
			}
		}
		return nil
	default:
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		info := ui.Info{Platform: mon.Platform(), Cores: mon.CoreCount(), ClockHz: mon.ClockHz(), Burn: cfg.Burn}
		return ui.RunTUI(s.Stream(ctx), info, cancel)
	}
}

func serveMetrics(mon *procmon.Monitor, addr string, log *slog.Logger) (func(), error) {
	router, err := exporter.NewRouter(mon, prometheus.NewRegistry(), log)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("metrics server stopped")
	}, nil
}

// burn keeps one core busy until ctx is done.
func burn(ctx context.Context) int {
	x := 0
	for {
		select {
		case <-ctx.Done():
			return x
		default:
		}
		for i := 0; i < 1_000_000; i++ {
			x ^= i
		}
	}
}
