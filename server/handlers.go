package server

import (
	"context"
	"log/slog"

	"github.com/Broadcast-Mate/lcc-dbupdater/game"
	"github.com/Broadcast-Mate/lcc-dbupdater/live"
)

// Reader is the read side of the game store. db.Store and live.MemoryStore
// both satisfy it.
type Reader interface {
	ListOngoing(ctx context.Context, tournamentID string) ([]game.State, error)
	ListResults(ctx context.Context, tournamentID string) ([]game.State, error)
	GetByID(ctx context.Context, gameID string) (*game.State, error)
	Ping(ctx context.Context) error
}

// StatusFunc snapshots the running tournament drivers.
type StatusFunc func() []live.DriverStatus

// ReadyCheck is an optional dependency checked by /readyz, e.g. the feed cache.
type ReadyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	store  Reader
	status StatusFunc
	extra  []ReadyCheck
	logger *slog.Logger
}

func NewHandlers(store Reader, status StatusFunc, logger *slog.Logger) *Handlers {
	if status == nil {
		status = func() []live.DriverStatus { return nil }
	}
	return &Handlers{store: store, status: status, logger: logger.With(slog.String("component", "http"))}
}
