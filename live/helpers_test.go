package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Broadcast-Mate/lcc-dbupdater/chessfeed"
	"github.com/Broadcast-Mate/lcc-dbupdater/commentary"
	"github.com/Broadcast-Mate/lcc-dbupdater/media"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeFeed struct {
	mu         sync.Mutex
	tournament *chessfeed.Tournament
	rounds     map[int]*chessfeed.RoundIndex
	games      map[[2]int]*chessfeed.GameRecord
	down       bool
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		tournament: &chessfeed.Tournament{},
		rounds:     map[int]*chessfeed.RoundIndex{},
		games:      map[[2]int]*chessfeed.GameRecord{},
	}
}

var errFeedDown = errors.New("dial tcp: connection refused")

func (f *fakeFeed) Tournament(ctx context.Context) (*chessfeed.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errFeedDown
	}
	return f.tournament, nil
}

func (f *fakeFeed) RoundIndex(ctx context.Context, round int) (*chessfeed.RoundIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errFeedDown
	}
	idx, ok := f.rounds[round]
	if !ok {
		return nil, &chessfeed.StatusError{URL: "round", Code: 404}
	}
	return idx, nil
}

func (f *fakeFeed) Game(ctx context.Context, round, gameNumber int) (*chessfeed.GameRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errFeedDown
	}
	rec, ok := f.games[[2]int{round, gameNumber}]
	if !ok {
		return nil, &chessfeed.StatusError{URL: "game", Code: 404}
	}
	return rec, nil
}

func (f *fakeFeed) setRounds(rounds ...chessfeed.RoundSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tournament = &chessfeed.Tournament{Rounds: rounds}
}

func (f *fakeFeed) setRound(round int, pairings ...chessfeed.Pairing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds[round] = &chessfeed.RoundIndex{Pairings: pairings}
}

func (f *fakeFeed) setGame(round, gameNumber int, rec chessfeed.GameRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games[[2]int{round, gameNumber}] = &rec
}

func (f *fakeFeed) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func pairing(white, black string, result string, live bool) chessfeed.Pairing {
	return chessfeed.Pairing{
		White:  player(white),
		Black:  player(black),
		Result: result,
		Live:   live,
	}
}

func player(full string) *chessfeed.Player {
	p := &chessfeed.Player{Title: "GM", FideID: int64(len(full))}
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == ' ' {
			p.FName, p.LName = full[:i], full[i+1:]
			return p
		}
	}
	p.LName = full
	return p
}

type fakeCommentary struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (*commentary.Response, error)
}

func (c *fakeCommentary) Generate(ctx context.Context, r commentary.Request) (*commentary.Response, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if c.fn == nil {
		return &commentary.Response{Text: "move " + r.LastMove, Evaluation: 0.25}, nil
	}
	return c.fn(n)
}

func (c *fakeCommentary) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeRenderer struct {
	err  error
	last media.ImageRequest
}

func (r *fakeRenderer) Render(ctx context.Context, ir media.ImageRequest) (*media.Image, error) {
	r.last = ir
	if r.err != nil {
		return nil, r.err
	}
	return &media.Image{Data: []byte("png"), ContentType: "image/png"}, nil
}

type fakeUploader struct {
	n   int
	err error
}

func (u *fakeUploader) Upload(ctx context.Context, img *media.Image) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.n++
	return "media-" + strconv.Itoa(u.n), nil
}

type recordedSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordedSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type harness struct {
	feed     *fakeFeed
	store    *MemoryStore
	gen      *fakeCommentary
	renderer *fakeRenderer
	uploader *fakeUploader
	sleep    *recordedSleep
	proc     *Processor
	rounds   *RoundTracker
}

func newHarness() *harness {
	h := &harness{
		feed:     newFakeFeed(),
		store:    NewMemoryStore(),
		gen:      &fakeCommentary{},
		renderer: &fakeRenderer{},
		uploader: &fakeUploader{},
		sleep:    &recordedSleep{},
	}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.proc = &Processor{
		Fetcher: &Fetcher{TournamentID: "t1", Feed: h.feed, Logger: quietLogger},
		Store:   h.store,
		Enricher: &Enricher{
			Commentary: h.gen,
			Renderer:   h.renderer,
			Uploader:   h.uploader,
			Retry:      RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(5 * time.Second), Sleep: h.sleep.Sleep},
			Limiter:    NewLimiter(1),
			Logger:     quietLogger,
		},
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
		Logger: quietLogger,
	}
	h.rounds = &RoundTracker{Feed: h.feed, Logger: quietLogger}
	return h
}

func (h *harness) driver() *Driver {
	return &Driver{
		TournamentID: "t1",
		Rounds:       h.rounds,
		Processor:    h.proc,
		Cursors:      h.store,
		Interval:     10 * time.Millisecond,
		Logger:       quietLogger,
	}
}
