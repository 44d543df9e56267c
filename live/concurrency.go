package live

import (
	"context"
	"log/slog"

	"github.com/Broadcast-Mate/lcc-dbupdater/telemetry"
)

// Limiter caps concurrent enrichments across all tournament drivers so the
// rate-limited commentary and image backends see at most Cap() calls at once.
// A nil *Limiter imposes no limit.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter returns a limiter with n slots (minimum 1).
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done. It returns false if
// ctx ended first.
func (l *Limiter) Acquire(ctx context.Context) bool {
	if l == nil {
		return true
	}
	select {
	case l.slots <- struct{}{}:
		telemetry.SetEnrichmentsInFlight(len(l.slots))
		return true
	case <-ctx.Done():
		return false
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	if l == nil {
		return
	}
	select {
	case <-l.slots:
		telemetry.SetEnrichmentsInFlight(len(l.slots))
	default:
		slog.Warn("enrichment slot release called without corresponding acquire")
	}
}

// Active is the number of slots in use.
func (l *Limiter) Active() int {
	if l == nil {
		return 0
	}
	return len(l.slots)
}

// Cap is the configured maximum.
func (l *Limiter) Cap() int {
	if l == nil {
		return 0
	}
	return cap(l.slots)
}
