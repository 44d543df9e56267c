package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Broadcast-Mate/lcc-dbupdater/telemetry"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// Driver polls one tournament. It follows a single round cursor: the cursor
// starts at the latest round with activity, and moves to the next round once
// every game of the current one is over and the next one has started or has
// pairings, or once the next round is live while no board of the current one
// is. Games are processed sequentially.
type Driver struct {
	TournamentID string
	Rounds       *RoundTracker
	Processor    *Processor
	Cursors      CursorStore // optional; keeps the cursor across restarts
	Interval     time.Duration
	Logger       *slog.Logger

	mu        sync.Mutex
	cursor    int
	lastCycle time.Time
	lastErr   string
}

// DriverStatus is a snapshot for the status endpoint.
type DriverStatus struct {
	TournamentID string    `json:"tournament_id"`
	Round        int       `json:"round"`
	LastCycle    time.Time `json:"last_cycle,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Driver) cursorKey() string { return "round_cursor:" + d.TournamentID }

// Status returns the current cursor and last cycle information.
func (d *Driver) Status() DriverStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DriverStatus{TournamentID: d.TournamentID, Round: d.cursor, LastCycle: d.lastCycle, LastError: d.lastErr}
}

// Cursor is the round currently being polled, 0 before the first cycle.
func (d *Driver) Cursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// Run polls every Interval until ctx is cancelled. Cycles never overlap and
// a failed cycle does not stop the loop.
func (d *Driver) Run(ctx context.Context) error {
	interval := d.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("new scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := d.RunCycle(ctx); err != nil && ctx.Err() == nil {
				d.logger().Warn("poll cycle failed", slog.String("tournament_id", d.TournamentID), slog.Any("err", err))
			}
		}),
		gocron.WithName("poll:"+d.TournamentID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule poll job: %w", err)
	}
	d.logger().Info("tournament driver starting", slog.String("tournament_id", d.TournamentID), slog.Duration("interval", interval))
	s.Start()
	<-ctx.Done()
	err = s.Shutdown()
	d.logger().Info("tournament driver stopped", slog.String("tournament_id", d.TournamentID))
	return err
}

// RunCycle performs one poll of the cursor round.
func (d *Driver) RunCycle(ctx context.Context) error {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	logger := telemetry.LoggerWithCorr(ctx, d.logger()).With(slog.String("tournament_id", d.TournamentID))
	telemetry.IncPollCycle(d.TournamentID)
	start := time.Now()
	err := d.runCycle(ctx, logger)
	if telemetry.CycleDuration != nil {
		telemetry.CycleDuration.Observe(time.Since(start).Seconds())
	}
	d.mu.Lock()
	d.lastCycle = time.Now().UTC()
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	d.mu.Unlock()
	return err
}

func (d *Driver) runCycle(ctx context.Context, logger *slog.Logger) error {
	round, err := d.currentRound(ctx)
	if err != nil {
		return err
	}
	if round == 0 {
		logger.Debug("no rounds with games yet")
		return nil
	}
	logger = logger.With(slog.Int("round", round))

	n := d.Rounds.GameCount(ctx, round)
	counts := map[Decision]int{}
	failed := 0
	for g := 1; g <= n; g++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		decision, err := d.Processor.ProcessGame(ctx, round, g)
		counts[decision]++
		if err != nil {
			failed++
			logGameError(logger, g, err)
		}
	}

	next := round + 1
	switch {
	case d.Rounds.AreAllGamesOver(ctx, round):
		if d.Rounds.IsRoundLive(ctx, next) || d.Rounds.GameCount(ctx, next) > 0 {
			logger.Info("round finished, advancing", slog.Int("next_round", next))
			d.setCursor(ctx, logger, next)
		}
	case !d.Rounds.IsRoundLive(ctx, round) && d.Rounds.IsRoundLive(ctx, next):
		// Adjourned boards or results the feed never settles would
		// otherwise pin the cursor here. They are not polled again.
		logger.Warn("round has unfinished boards but none live, next round is live; advancing",
			slog.Int("next_round", next))
		d.setCursor(ctx, logger, next)
	}

	logger.Info("poll cycle complete",
		slog.Int("games", n),
		slog.Int("full_updates", counts[FullUpdate]),
		slog.Int("metadata_updates", counts[MetadataUpdate]),
		slog.Int("failed", failed))
	return nil
}

func (d *Driver) currentRound(ctx context.Context) (int, error) {
	if c := d.Cursor(); c > 0 {
		return c, nil
	}
	logger := telemetry.LoggerWithCorr(ctx, d.logger()).With(slog.String("tournament_id", d.TournamentID))
	if d.Cursors != nil {
		r, ok, err := d.Cursors.GetCursor(ctx, d.cursorKey())
		if err != nil {
			logger.Warn("load round cursor", slog.Any("err", err))
		} else if ok && r > 0 {
			logger.Info("resuming from saved round cursor", slog.Int("round", r))
			d.mu.Lock()
			d.cursor = r
			d.mu.Unlock()
			telemetry.SetCurrentRound(d.TournamentID, r)
			return r, nil
		}
	}
	latest, err := d.Rounds.LatestRoundNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest round: %w", err)
	}
	if latest > 0 {
		d.setCursor(ctx, logger, latest)
	}
	return latest, nil
}

func (d *Driver) setCursor(ctx context.Context, logger *slog.Logger, round int) {
	d.mu.Lock()
	d.cursor = round
	d.mu.Unlock()
	telemetry.SetCurrentRound(d.TournamentID, round)
	if d.Cursors == nil {
		return
	}
	if err := d.Cursors.SetCursor(ctx, d.cursorKey(), round); err != nil {
		logger.Warn("save round cursor", slog.Int("round", round), slog.Any("err", err))
	}
}

func logGameError(logger *slog.Logger, gameNumber int, err error) {
	attrs := []any{slog.Int("game", gameNumber), slog.String("class", ClassifyError(err).String()), slog.Any("err", err)}
	var (
		fe *FetchError
		ee *EnrichmentError
		pe *PersistenceError
	)
	switch {
	case errors.As(err, &fe):
		logger.Warn("game fetch failed, skipping", attrs...)
	case errors.As(err, &ee):
		logger.Warn("game persisted without enrichment", attrs...)
	case errors.As(err, &pe):
		logger.Error("game persistence failed, will retry next cycle", attrs...)
	default:
		logger.Error("game processing failed", attrs...)
	}
}
