package live

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Broadcast-Mate/lcc-dbupdater/game"
)

// Update is one write handed to the store.
type Update struct {
	Decision     Decision
	State        *game.State
	Commentary   *game.Commentary
	ImageMediaID string
	At           time.Time
}

// Store persists game states keyed by (game id, tournament id). Get returns
// nil, nil for a game that was never written.
type Store interface {
	Get(ctx context.Context, gameID, tournamentID string) (*game.State, error)
	Upsert(ctx context.Context, u Update) error
}

// CursorStore persists a driver's round cursor. ok is false when no cursor
// has been saved yet.
type CursorStore interface {
	GetCursor(ctx context.Context, key string) (round int, ok bool, err error)
	SetCursor(ctx context.Context, key string, round int) error
}

// Apply merges an update into the stored state and returns the new state.
// It is the reference for what every Store must persist:
//   - NoChange leaves the state untouched;
//   - MetadataUpdate touches only result, live flag and timestamp;
//   - FullUpdate replaces every fetched field, appends the new commentary if
//     any, and replaces the image id only when a new one exists.
//
// The round of an existing game is never rewritten; tournament id and
// timestamp are always set.
func Apply(stored *game.State, u Update) *game.State {
	if u.Decision == NoChange {
		return stored.Clone()
	}
	if stored != nil && u.Decision == MetadataUpdate {
		next := stored.Clone()
		next.Result = u.State.Result
		next.IsLive = u.State.IsLive
		next.TournamentID = u.State.TournamentID
		next.LastUpdated = u.At
		return next
	}

	next := u.State.Clone()
	next.Commentaries = []game.Commentary{}
	next.ImageMediaID = ""
	if stored != nil {
		next.Round = stored.Round
		next.Commentaries = stored.Clone().Commentaries
		if next.Commentaries == nil {
			next.Commentaries = []game.Commentary{}
		}
		next.ImageMediaID = stored.ImageMediaID
	}
	if u.Decision == FullUpdate {
		if u.Commentary != nil {
			next.Commentaries = append(next.Commentaries, u.Commentary.Copy())
		}
		if u.ImageMediaID != "" {
			next.ImageMediaID = u.ImageMediaID
		}
	}
	next.LastUpdated = u.At
	return next
}

// MemoryStore keeps games and cursors in process memory. It backs dry runs
// (STORE_BACKEND=memory) and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	games   map[memKey]*game.State
	cursors map[string]int
	writes  int
}

type memKey struct{ gameID, tournamentID string }

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: map[memKey]*game.State{}, cursors: map[string]int{}}
}

func (m *MemoryStore) Get(_ context.Context, gameID, tournamentID string) (*game.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.games[memKey{gameID, tournamentID}].Clone(), nil
}

func (m *MemoryStore) Upsert(_ context.Context, u Update) error {
	if u.Decision == NoChange {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{u.State.GameID, u.State.TournamentID}
	m.games[k] = Apply(m.games[k], u)
	m.writes++
	return nil
}

// Writes counts upserts that changed something.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Len is the number of stored games.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}

func (m *MemoryStore) GetCursor(_ context.Context, key string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.cursors[key]
	return r, ok, nil
}

func (m *MemoryStore) SetCursor(_ context.Context, key string, round int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[key] = round
	return nil
}

// ListOngoing returns the tournament's games still in progress ordered by
// round and board.
func (m *MemoryStore) ListOngoing(_ context.Context, tournamentID string) ([]game.State, error) {
	return m.list(tournamentID, func(r game.Result) bool { return r == game.Ongoing }), nil
}

// ListResults returns the tournament's finished games.
func (m *MemoryStore) ListResults(_ context.Context, tournamentID string) ([]game.State, error) {
	return m.list(tournamentID, game.Result.IsTerminal), nil
}

// GetByID finds a game by id in any tournament.
func (m *MemoryStore) GetByID(_ context.Context, gameID string) (*game.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, st := range m.games {
		if k.gameID == gameID {
			return st.Clone(), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) list(tournamentID string, keep func(game.Result) bool) []game.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []game.State{}
	for k, st := range m.games {
		if k.tournamentID == tournamentID && keep(st.Result) {
			out = append(out, *st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].GameNumber < out[j].GameNumber
	})
	return out
}
