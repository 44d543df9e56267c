package live

import (
	"context"
	"log/slog"

	"github.com/Broadcast-Mate/lcc-dbupdater/game"
)

// RoundTracker answers round progression questions from the feed.
type RoundTracker struct {
	Feed   Feed
	Logger *slog.Logger
}

func (rt *RoundTracker) logger() *slog.Logger {
	if rt.Logger != nil {
		return rt.Logger
	}
	return slog.Default()
}

// LatestRoundNumber returns the highest 1-based round with live games, or
// failing that the highest round with any games, or 0 when there are none.
func (rt *RoundTracker) LatestRoundNumber(ctx context.Context) (int, error) {
	t, err := rt.Feed.Tournament(ctx)
	if err != nil {
		return 0, err
	}
	latestLive, latestPlayed := 0, 0
	for i, r := range t.Rounds {
		if r.Live > 0 {
			latestLive = i + 1
		}
		if r.Count > 0 {
			latestPlayed = i + 1
		}
	}
	if latestLive > 0 {
		return latestLive, nil
	}
	return latestPlayed, nil
}

// IsRoundLive reports whether any pairing of the round is flagged live.
// Feed failures read as not live.
func (rt *RoundTracker) IsRoundLive(ctx context.Context, round int) bool {
	idx, err := rt.Feed.RoundIndex(ctx, round)
	if err != nil {
		rt.logger().Debug("round index unavailable, treating as not live", slog.Int("round", round), slog.Any("err", err))
		return false
	}
	for _, p := range idx.Pairings {
		if p.Live {
			return true
		}
	}
	return false
}

// AreAllGamesOver reports whether the round has pairings and none of them is
// still ongoing. Feed failures read as not over.
func (rt *RoundTracker) AreAllGamesOver(ctx context.Context, round int) bool {
	idx, err := rt.Feed.RoundIndex(ctx, round)
	if err != nil {
		rt.logger().Debug("round index unavailable, treating as not over", slog.Int("round", round), slog.Any("err", err))
		return false
	}
	if len(idx.Pairings) == 0 {
		return false
	}
	for _, p := range idx.Pairings {
		if game.NormalizeResult(p.Result) == game.Ongoing {
			return false
		}
	}
	return true
}

// GameCount returns the number of pairings in the round, 0 on feed failure.
func (rt *RoundTracker) GameCount(ctx context.Context, round int) int {
	idx, err := rt.Feed.RoundIndex(ctx, round)
	if err != nil {
		rt.logger().Debug("round index unavailable", slog.Int("round", round), slog.Any("err", err))
		return 0
	}
	return len(idx.Pairings)
}
