package live

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Broadcast-Mate/lcc-dbupdater/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Processor runs one game through fetch, reconcile, enrich and persist.
type Processor struct {
	Fetcher  *Fetcher
	Store    Store
	Enricher *Enricher // nil disables enrichment
	Now      func() time.Time
	Logger   *slog.Logger
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// ProcessGame handles one game of a round. A *FetchError or
// *PersistenceError means nothing was written. An *EnrichmentError is
// returned after the update itself has been persisted without the missing
// commentary.
func (p *Processor) ProcessGame(ctx context.Context, round, gameNumber int) (Decision, error) {
	ctx, span := telemetry.StartSpan(ctx, "live.process_game",
		attribute.String("tournament_id", p.Fetcher.TournamentID),
		attribute.Int("round", round), attribute.Int("game", gameNumber))
	d, err := p.processGame(ctx, round, gameNumber)
	span.SetAttributes(attribute.String("decision", d.String()))
	telemetry.EndSpan(span, err)
	return d, err
}

func (p *Processor) processGame(ctx context.Context, round, gameNumber int) (Decision, error) {
	logger := telemetry.LoggerWithCorr(ctx, p.logger()).With(slog.Int("round", round), slog.Int("game", gameNumber))

	fetched, err := p.Fetcher.Fetch(ctx, round, gameNumber)
	if err != nil {
		telemetry.IncFetchError(ClassifyError(err).String())
		return NoChange, err
	}
	logger = logger.With(slog.String("game_id", fetched.GameID))

	stored, err := p.Store.Get(ctx, fetched.GameID, fetched.TournamentID)
	if err != nil {
		telemetry.IncPersistenceError()
		return NoChange, &PersistenceError{GameID: fetched.GameID, Op: "get", Err: err}
	}

	decision := Reconcile(stored, fetched)
	telemetry.IncDecision(decision.String())
	if decision == NoChange {
		logger.Debug("game unchanged")
		return decision, nil
	}

	var enrichment Enrichment
	var enrichErr error
	if p.Enricher != nil && ShouldEnrich(decision, stored) {
		enrichment, enrichErr = p.Enricher.Enrich(ctx, fetched)
		if enrichErr != nil {
			logger.Warn("enrichment failed, persisting without commentary",
				slog.String("class", ClassifyError(enrichErr).String()), slog.Any("err", enrichErr))
		}
	}

	u := Update{
		Decision:     decision,
		State:        fetched,
		Commentary:   enrichment.Commentary,
		ImageMediaID: enrichment.ImageMediaID,
		At:           p.now(),
	}
	if err := p.Store.Upsert(ctx, u); err != nil {
		telemetry.IncPersistenceError()
		return decision, &PersistenceError{GameID: fetched.GameID, Op: "upsert", Err: err}
	}
	logger.Info("game updated",
		slog.String("decision", decision.String()),
		slog.String("result", string(fetched.Result)),
		slog.String("last_move", fetched.LastMove),
		slog.Bool("commentary", enrichment.Commentary != nil),
		slog.Bool("image", enrichment.ImageMediaID != ""))

	if enrichErr != nil {
		var ee *EnrichmentError
		if !errors.As(enrichErr, &ee) {
			enrichErr = &EnrichmentError{GameID: fetched.GameID, Stage: StageCommentary, Err: enrichErr}
		}
		return decision, enrichErr
	}
	return decision, nil
}
