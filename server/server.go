// Package server exposes the read-only HTTP API over tracked games, plus
// health, readiness, driver status and Prometheus metrics. It injects
// correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Broadcast-Mate/lcc-dbupdater/telemetry"
)

// Options configures middleware. Zero values disable auth and rate limiting
// and restrict CORS.
type Options struct {
	AdminToken    string
	AdminUsername string
	AdminPassword string

	RateLimitPerIP  int
	RateLimitWindow time.Duration

	CORSPermissive     bool
	CORSAllowedOrigins []string

	ReadyChecks []ReadyCheck

	Logger *slog.Logger
}

// NewMux returns the HTTP handler with all routes. ctx bounds the rate
// limiter's cleanup goroutine.
func NewMux(ctx context.Context, store Reader, status StatusFunc, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authCfg := newAuthConfig(opts)
	limiter := newIPRateLimiter(ctx, newRateLimiterConfig(opts))
	handlers := NewHandlers(store, status, logger)
	handlers.extra = opts.ReadyChecks

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.Handle("/status", adminAuth(http.HandlerFunc(handlers.HandleStatus), authCfg))

	api := http.NewServeMux()
	api.HandleFunc("GET /tournaments/{id}/games/ongoing", handlers.HandleOngoingGames)
	api.HandleFunc("GET /tournaments/{id}/results", handlers.HandleResults)
	api.HandleFunc("GET /games/{id}", handlers.HandleGame)
	limited := rateLimitMiddleware(api, limiter)
	mux.Handle("/tournaments/", limited)
	mux.Handle("/games/", limited)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, r.Method+" "+routeOf(r.URL.Path),
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx, logger).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(wrapped, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", wrapped.statusCode))
		if wrapped.statusCode >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", wrapped.statusCode))
		}
	})
	return withCORSConfig(handler, newCORSConfig(opts))
}

// routeOf collapses ids so span names stay low-cardinality.
func routeOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/games/"):
		return "/games/{id}"
	case strings.HasSuffix(path, "/games/ongoing"):
		return "/tournaments/{id}/games/ongoing"
	case strings.HasSuffix(path, "/results"):
		return "/tournaments/{id}/results"
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	// ListenAndServe returns as soon as Shutdown starts; wait for in-flight
	// requests to drain.
	<-shutdownDone
	return nil
}
