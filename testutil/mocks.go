// Package testutil provides httptest doubles for the feed, commentary, image
// and media services, plus a Postgres helper gated on TEST_PG_DSN.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Broadcast-Mate/lcc-dbupdater/chessfeed"
)

// MockFeedServer serves tournament, round and game documents for one
// tournament under /{tournamentID}/...
type MockFeedServer struct {
	*httptest.Server
	TournamentID string

	mu       sync.Mutex
	docs     map[string]any
	hits     map[string]int
	Requests atomic.Int64
}

// NewMockFeedServer creates a feed server; unknown documents return 404.
func NewMockFeedServer(t *testing.T, tournamentID string) *MockFeedServer {
	t.Helper()
	m := &MockFeedServer{TournamentID: tournamentID, docs: map[string]any{}, hits: map[string]int{}}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Requests.Add(1)
		m.mu.Lock()
		m.hits[r.URL.Path]++
		doc, ok := m.docs[r.URL.Path]
		m.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *MockFeedServer) set(path string, doc any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs["/"+m.TournamentID+path] = doc
}

// Hits returns how many requests were made for a path relative to the
// tournament, e.g. "/round-1/index.json".
func (m *MockFeedServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits["/"+m.TournamentID+path]
}

// SetTournament sets the round summaries.
func (m *MockFeedServer) SetTournament(rounds ...chessfeed.RoundSummary) {
	m.set("/tournament.json", chessfeed.Tournament{Rounds: rounds})
}

// SetRound sets the pairing index of a round.
func (m *MockFeedServer) SetRound(round int, pairings ...chessfeed.Pairing) {
	m.set(fmt.Sprintf("/round-%d/index.json", round), chessfeed.RoundIndex{Pairings: pairings})
}

// SetGame sets the move record of a board.
func (m *MockFeedServer) SetGame(round, gameNumber int, rec chessfeed.GameRecord) {
	m.set(fmt.Sprintf("/round-%d/game-%d.json", round, gameNumber), rec)
}

// MockCommentaryServer answers commentary requests with a fixed evaluation.
// Set Fail to make it return an error payload.
type MockCommentaryServer struct {
	*httptest.Server
	Calls atomic.Int64
	Fail  atomic.Bool
}

func NewMockCommentaryServer(t *testing.T, eval float64) *MockCommentaryServer {
	t.Helper()
	m := &MockCommentaryServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Calls.Add(1)
		var req struct {
			LastMove string `json:"last_move"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if m.Fail.Load() {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "model overloaded"}) //nolint:errcheck // test mock response
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"commentary":     "After " + req.LastMove + " the game goes on.",
			"stockfish_eval": eval,
		})
	}))
	t.Cleanup(m.Close)
	return m
}

// MockImageServer returns a tiny PNG for every render request.
type MockImageServer struct {
	*httptest.Server
	Calls atomic.Int64
}

func NewMockImageServer(t *testing.T) *MockImageServer {
	t.Helper()
	m := &MockImageServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Calls.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG\r\n\x1a\n"))
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUploadServer accepts multipart uploads and returns sequential media ids.
type MockUploadServer struct {
	*httptest.Server
	Uploads atomic.Int64
}

func NewMockUploadServer(t *testing.T) *MockUploadServer {
	t.Helper()
	m := &MockUploadServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("media"); err != nil {
			http.Error(w, "missing media", http.StatusBadRequest)
			return
		}
		n := m.Uploads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"media_id_string": fmt.Sprintf("media-%d", n)}) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}
