package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Broadcast-Mate/lcc-dbupdater/chessfeed"
	"github.com/Broadcast-Mate/lcc-dbupdater/commentary"
	"github.com/Broadcast-Mate/lcc-dbupdater/config"
	"github.com/Broadcast-Mate/lcc-dbupdater/db"
	"github.com/Broadcast-Mate/lcc-dbupdater/live"
	"github.com/Broadcast-Mate/lcc-dbupdater/media"
	"github.com/Broadcast-Mate/lcc-dbupdater/server"
)

// store is everything the drivers and the read API need from persistence.
type store interface {
	live.Store
	live.CursorStore
	server.Reader
}

// app is the wired service: one driver per tournament sharing a store,
// an enricher (and so one enrichment limiter) and an optional feed cache.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store
	drivers []*live.Driver

	readyChecks []server.ReadyCheck
	closers     []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = st

	var cache chessfeed.Cache
	if cfg.RedisURL != "" {
		rc, err := chessfeed.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			// The cache only saves feed requests; run without it.
			logger.Warn("redis unavailable, feed cache disabled", slog.Any("err", err), slog.String("component", "feed_cache"))
		} else {
			cache = rc
			a.closers = append(a.closers, rc.Close)
			a.readyChecks = append(a.readyChecks, server.ReadyCheck{Name: "feed_cache", Ping: rc.Ping})
		}
	}

	enricher, err := newEnricher(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	feedHTTP := &http.Client{Timeout: cfg.FeedTimeout}
	for _, tid := range cfg.TournamentIDs {
		tlog := logger.With(slog.String("tournament", tid))
		feed := &chessfeed.Client{
			BaseURL:       cfg.FeedBaseURL,
			TournamentID:  tid,
			HTTPClient:    feedHTTP,
			Cache:         cache,
			CacheTTL:      cfg.FeedCacheTTL,
			IndexCacheTTL: cfg.FeedIndexCacheTTL,
		}
		a.drivers = append(a.drivers, &live.Driver{
			TournamentID: tid,
			Rounds:       &live.RoundTracker{Feed: feed, Logger: tlog},
			Processor: &live.Processor{
				Fetcher:  &live.Fetcher{TournamentID: tid, Feed: feed, Logger: tlog},
				Store:    st,
				Enricher: enricher,
				Logger:   tlog,
			},
			Cursors:  st,
			Interval: cfg.PollInterval,
			Logger:   tlog,
		})
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store, error) {
	if a.cfg.StoreBackend == config.StoreMemory {
		a.logger.Warn("using in-memory store: nothing is persisted", slog.String("component", "db"))
		return live.NewMemoryStore(), nil
	}
	database, err := db.Connect(a.cfg.DBDsn)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, database.Close)
	if err := pingWithRetry(ctx, database, 5, 2*time.Second); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.logger.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Setup(ctx, database); err != nil {
		return nil, err
	}
	return db.NewStore(database), nil
}

// pingWithRetry waits for Postgres to accept connections (compose start order).
func pingWithRetry(ctx context.Context, database *sql.DB, attempts int, wait time.Duration) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = database.PingContext(ctx); err == nil {
			return nil
		}
		slog.Warn("postgres not ready", slog.Int("attempt", i), slog.Any("err", err), slog.String("component", "db"))
		if i < attempts {
			if serr := live.SleepContext(ctx, wait); serr != nil {
				return serr
			}
		}
	}
	return err
}

// newEnricher builds the shared enrichment pipeline. Commentary and images
// are each optional.
func newEnricher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*live.Enricher, error) {
	e := &live.Enricher{
		Retry: live.RetryPolicy{
			MaxAttempts: cfg.CommentaryMaxAttempts,
			Backoff:     live.LinearBackoff(cfg.CommentaryBackoff),
			Sleep:       live.SleepContext,
		},
		Limiter: live.NewLimiter(cfg.EnrichmentConcurrency),
		Logger:  logger,
	}
	if cfg.CommentaryURL != "" {
		e.Commentary = &commentary.Client{URL: cfg.CommentaryURL, HTTPClient: &http.Client{Timeout: cfg.CommentaryTimeout}}
	} else {
		logger.Info("commentary disabled: COMMENTARY_URL not set", slog.String("component", "enrich"))
	}

	if !cfg.ImagesEnabled() {
		return e, nil
	}
	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.Renderer = &media.Renderer{URL: cfg.ImageURL, HTTPClient: &http.Client{Timeout: 30 * time.Second}}
	e.Uploader = uploader
	return e, nil
}

func newUploader(ctx context.Context, cfg *config.Config) (live.MediaUploader, error) {
	switch cfg.MediaBackend {
	case config.MediaS3:
		u, err := media.NewS3Uploader(ctx, media.S3Config{
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Prefix:          cfg.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 uploader: %w", err)
		}
		return u, nil
	case config.MediaHTTP:
		var oc *media.OAuthConfig
		if cfg.MediaClientID != "" {
			oc = &media.OAuthConfig{
				ClientID:     cfg.MediaClientID,
				ClientSecret: cfg.MediaClientSecret,
				TokenURL:     cfg.MediaTokenURL,
				Scopes:       cfg.MediaScopes,
			}
		}
		return media.NewHTTPUploader(ctx, cfg.MediaUploadURL, oc, &http.Client{Timeout: 30 * time.Second}), nil
	}
	return nil, fmt.Errorf("unsupported media backend %q", cfg.MediaBackend)
}

// statuses snapshots every driver for /status and /readyz.
func (a *app) statuses() []live.DriverStatus {
	out := make([]live.DriverStatus, 0, len(a.drivers))
	for _, d := range a.drivers {
		out = append(out, d.Status())
	}
	return out
}

func (a *app) handler(ctx context.Context) http.Handler {
	return server.NewMux(ctx, a.store, a.statuses, server.Options{
		AdminToken:         a.cfg.AdminToken,
		AdminUsername:      a.cfg.AdminUsername,
		AdminPassword:      a.cfg.AdminPassword,
		RateLimitPerIP:     a.cfg.RateLimitPerIP,
		RateLimitWindow:    a.cfg.RateLimitWindow,
		CORSPermissive:     a.cfg.CORSPermissive,
		CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
		ReadyChecks:        a.readyChecks,
		Logger:             a.logger,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("close failed", slog.Any("err", err))
		}
	}
	a.closers = nil
}
