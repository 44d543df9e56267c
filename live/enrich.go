package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Broadcast-Mate/lcc-dbupdater/commentary"
	"github.com/Broadcast-Mate/lcc-dbupdater/game"
	"github.com/Broadcast-Mate/lcc-dbupdater/media"
	"github.com/Broadcast-Mate/lcc-dbupdater/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Enrichment stages, used in EnrichmentError and metrics.
const (
	StageCommentary = "commentary"
	StageImage      = "image"
)

// MateEvaluation is the fixed evaluation magnitude recorded for a checkmate.
const MateEvaluation = 100.0

// CommentaryGenerator produces commentary for a position.
type CommentaryGenerator interface {
	Generate(ctx context.Context, r commentary.Request) (*commentary.Response, error)
}

// ImageRenderer draws a board image.
type ImageRenderer interface {
	Render(ctx context.Context, r media.ImageRequest) (*media.Image, error)
}

// MediaUploader stores an image and returns its media id.
type MediaUploader interface {
	Upload(ctx context.Context, img *media.Image) (string, error)
}

// Enrichment is what the pipeline adds to a full update. Either part may be
// absent.
type Enrichment struct {
	Commentary   *game.Commentary
	ImageMediaID string
}

// Enricher generates commentary and a board image for a new position. A nil
// Commentary disables generated commentary (checkmates are still
// described); a nil Renderer or Uploader disables images.
type Enricher struct {
	Commentary CommentaryGenerator
	Renderer   ImageRenderer
	Uploader   MediaUploader
	Retry      RetryPolicy
	Limiter    *Limiter
	Logger     *slog.Logger
}

func (e *Enricher) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Enrich returns an error only when commentary could not be produced after
// all attempts. Image failures are logged and leave ImageMediaID empty.
func (e *Enricher) Enrich(ctx context.Context, st *game.State) (Enrichment, error) {
	ctx, span := telemetry.StartSpan(ctx, "live.enrich", attribute.String("game_id", st.GameID))
	start := time.Now()
	out, err := e.enrich(ctx, st)
	if telemetry.EnrichmentDuration != nil {
		telemetry.EnrichmentDuration.Observe(time.Since(start).Seconds())
	}
	telemetry.EndSpan(span, err)
	return out, err
}

func (e *Enricher) enrich(ctx context.Context, st *game.State) (Enrichment, error) {
	logger := telemetry.LoggerWithCorr(ctx, e.logger()).With(slog.String("game_id", st.GameID))
	if !e.Limiter.Acquire(ctx) {
		return Enrichment{}, &EnrichmentError{GameID: st.GameID, Stage: StageCommentary, Err: ctx.Err()}
	}
	defer e.Limiter.Release()

	var c *game.Commentary
	switch {
	case game.IsCheckmate(st.LatestFEN):
		c = checkmateCommentary(st)
		logger.Info("checkmate detected, commentary synthesized", slog.String("result", string(st.Result)))
	case e.Commentary != nil:
		gen, err := e.generate(ctx, logger, st)
		if err != nil {
			telemetry.IncEnrichmentFailure(StageCommentary)
			return Enrichment{}, &EnrichmentError{GameID: st.GameID, Stage: StageCommentary, Err: err}
		}
		c = gen
	}

	out := Enrichment{Commentary: c}
	if c == nil || c.Evaluation == nil || e.Renderer == nil || e.Uploader == nil {
		return out, nil
	}
	id, err := e.image(ctx, st, *c.Evaluation)
	if err != nil {
		telemetry.IncEnrichmentFailure(StageImage)
		logger.Warn("image enrichment failed, keeping commentary", slog.Any("err", err))
		return out, nil
	}
	telemetry.IncImageUploaded()
	out.ImageMediaID = id
	return out, nil
}

func (e *Enricher) generate(ctx context.Context, logger *slog.Logger, st *game.State) (*game.Commentary, error) {
	req := commentary.Request{
		FEN:       st.LatestFEN,
		LastMove:  st.LastMove,
		WhiteName: st.WhiteName,
		BlackName: st.BlackName,
	}
	var resp *commentary.Response
	err := e.Retry.Do(ctx, logger, func(ctx context.Context, attempt int) error {
		telemetry.IncCommentaryAttempt()
		r, err := e.Commentary.Generate(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &game.Commentary{Text: resp.Text, Evaluation: game.Eval(resp.Evaluation)}, nil
}

func (e *Enricher) image(ctx context.Context, st *game.State, eval float64) (string, error) {
	img, err := e.Renderer.Render(ctx, media.ImageRequest{
		FEN:              st.LatestFEN,
		WhiteName:        st.WhiteName,
		BlackName:        st.BlackName,
		Evaluation:       eval,
		HighlightSquares: game.SplitSquares(st.LastMove),
	})
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	id, err := e.Uploader.Upload(ctx, img)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return id, nil
}

// checkmateCommentary describes a mate without calling any backend. The
// winner comes from the result when it is decisive, otherwise from the side
// to move (the mated side).
func checkmateCommentary(st *game.State) *game.Commentary {
	whiteWon := !game.WhiteToMove(st.LatestFEN)
	switch st.Result {
	case game.WhiteWins:
		whiteWon = true
	case game.BlackWins:
		whiteWon = false
	}
	winner, eval := st.BlackName, -MateEvaluation
	if whiteWon {
		winner, eval = st.WhiteName, MateEvaluation
	}
	move := st.LastMove
	if fields := strings.Fields(st.LatestPGN); len(fields) > 0 {
		move = fields[len(fields)-1] + "#"
	}
	return &game.Commentary{
		Text:       fmt.Sprintf("Checkmate! %s wins with %s.", winner, move),
		Evaluation: game.Eval(eval),
	}
}
