// Package live is the round/game reconciliation and enrichment pipeline: it
// reads games from the feed, decides what changed against the stored state,
// enriches genuine position changes and hands the result to the store.
package live

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Broadcast-Mate/lcc-dbupdater/chessfeed"
	"github.com/Broadcast-Mate/lcc-dbupdater/game"
)

// ReasonNoPairing is the FetchError reason for a game number outside the round index.
const ReasonNoPairing = "no pairing"

// Feed is the subset of the feed client the pipeline reads from.
type Feed interface {
	Tournament(ctx context.Context) (*chessfeed.Tournament, error)
	RoundIndex(ctx context.Context, round int) (*chessfeed.RoundIndex, error)
	Game(ctx context.Context, round, gameNumber int) (*chessfeed.GameRecord, error)
}

// Fetcher turns feed documents into normalized game states.
type Fetcher struct {
	TournamentID string
	Feed         Feed
	Logger       *slog.Logger
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Fetch reads one game and its pairing. A replay failure is logged and the
// best-effort position is kept; everything else is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, round, gameNumber int) (*game.State, error) {
	idx, err := f.Feed.RoundIndex(ctx, round)
	if err != nil {
		return nil, &FetchError{Round: round, GameNumber: gameNumber, Reason: "round index", Err: err}
	}
	if gameNumber < 1 || gameNumber > len(idx.Pairings) {
		return nil, &FetchError{Round: round, GameNumber: gameNumber, Reason: ReasonNoPairing}
	}
	pairing := idx.Pairings[gameNumber-1]
	if pairing.White == nil || pairing.Black == nil {
		return nil, &FetchError{Round: round, GameNumber: gameNumber, Reason: ReasonNoPairing}
	}
	rec, err := f.Feed.Game(ctx, round, gameNumber)
	if err != nil {
		return nil, &FetchError{Round: round, GameNumber: gameNumber, Reason: "game record", Err: err}
	}

	moves := game.CleanMoves(rec.Moves)
	replayed, err := game.Replay(moves)
	if err != nil {
		var warn *game.ReplayWarning
		if !errors.As(err, &warn) {
			return nil, &FetchError{Round: round, GameNumber: gameNumber, Reason: "replay", Err: err}
		}
		f.logger().Warn("replay incomplete, keeping best-effort position",
			slog.Int("round", round), slog.Int("game", gameNumber),
			slog.Int("ply", warn.Ply), slog.String("move", warn.Move), slog.Any("err", warn.Err))
		moves = moves[:replayed.Applied]
	}

	white := game.PlayerName(pairing.White.FName, pairing.White.MName, pairing.White.LName)
	black := game.PlayerName(pairing.Black.FName, pairing.Black.MName, pairing.Black.LName)

	result := game.NormalizeResult(rec.Result)
	if result == game.Ongoing && rec.Result == "" {
		result = game.NormalizeResult(pairing.Result)
	}

	return &game.State{
		GameID:            game.BuildID(f.TournamentID, round, gameNumber, white, black),
		TournamentID:      f.TournamentID,
		Round:             round,
		GameNumber:        gameNumber,
		LatestFEN:         replayed.FEN,
		FENBeforeLastMove: replayed.FENBefore,
		LastMove:          replayed.LastMove,
		LatestPGN:         game.JoinPGN(moves),
		WhiteName:         white,
		BlackName:         black,
		WhiteFideID:       pairing.White.FideID,
		BlackFideID:       pairing.Black.FideID,
		WhiteTitle:        pairing.White.Title,
		BlackTitle:        pairing.Black.Title,
		Result:            result,
		IsLive:            rec.Live,
	}, nil
}
