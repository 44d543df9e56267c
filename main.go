// Command lcc-dbupdater tracks live chess tournaments and keeps a store of
// per-game state up to date. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs migrations (or uses an in-memory store).
//   - Starts one polling driver per tournament; new positions get generated
//     commentary and a board image.
//   - Exposes the read API with /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/Broadcast-Mate/lcc-dbupdater/config"
	"github.com/Broadcast-Mate/lcc-dbupdater/server"
	"github.com/Broadcast-Mate/lcc-dbupdater/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, "lcc-dbupdater", version)
	if err != nil {
		logger.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("starting drivers", slog.Int("tournament_count", len(a.drivers)), slog.Any("tournaments", cfg.TournamentIDs))
	a.run(ctx, cfg.HTTPAddr)
}

// run starts every driver and the HTTP server, and returns once ctx is done
// and all of them, including the server's graceful shutdown, have finished.
func (a *app) run(ctx context.Context, addr string) {
	var wg sync.WaitGroup
	for _, d := range a.drivers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Run(ctx); err != nil {
				a.logger.Error("driver exited with error", slog.String("tournament", d.TournamentID), slog.Any("err", err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx, addr, a.handler(ctx)); err != nil {
			a.logger.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")
	wg.Wait()
}

// newLogger configures slog from LOG_LEVEL and LOG_FORMAT (text|json).
func newLogger(level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	unknown := false
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		unknown = true
	}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	logger := slog.New(handler)
	if unknown {
		logger.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	logger.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", strings.ToLower(format)))
	return logger
}
