package chessfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newFeedServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/t1/tournament.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		_, _ = w.Write([]byte(`{"rounds":[{"count":5,"live":0},{"count":3,"live":2},{"count":0,"live":0}]}`))
	})
	mux.HandleFunc("/t1/round-2/index.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairings":[{"white":{"fname":"Magnus","lname":"Carlsen","title":"GM","fideid":1503014},"black":{"fname":"Hikaru","lname":"Nakamura","title":"GM"},"result":null,"live":true}]}`))
	})
	mux.HandleFunc("/t1/round-2/game-1.json", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["poll"]; !ok {
			t.Errorf("game request without poll query: %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"live":true,"result":null,"moves":["e4 6000+30","c5 5990+30"]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientDocuments(t *testing.T) {
	var hits int32
	srv := newFeedServer(t, &hits)
	c := &Client{BaseURL: srv.URL, TournamentID: "t1"}
	ctx := context.Background()

	tour, err := c.Tournament(ctx)
	if err != nil {
		t.Fatalf("Tournament: %v", err)
	}
	if len(tour.Rounds) != 3 || tour.Rounds[1].Live != 2 {
		t.Fatalf("rounds = %+v", tour.Rounds)
	}

	idx, err := c.RoundIndex(ctx, 2)
	if err != nil {
		t.Fatalf("RoundIndex: %v", err)
	}
	if len(idx.Pairings) != 1 {
		t.Fatalf("pairings = %+v", idx.Pairings)
	}
	p := idx.Pairings[0]
	if p.White.LName != "Carlsen" || p.White.FideID != 1503014 || p.Result != "" || !p.Live {
		t.Fatalf("pairing = %+v", p)
	}

	g, err := c.Game(ctx, 2, 1)
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if len(g.Moves) != 2 || g.Moves[0] != "e4 6000+30" {
		t.Fatalf("moves = %v", g.Moves)
	}
}

func TestClientStatusError(t *testing.T) {
	var hits int32
	srv := newFeedServer(t, &hits)
	c := &Client{BaseURL: srv.URL, TournamentID: "t1"}
	_, err := c.RoundIndex(context.Background(), 9)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestClientRejectsInvalidArgs(t *testing.T) {
	c := &Client{BaseURL: "http://unused", TournamentID: "t1"}
	if _, err := c.RoundIndex(context.Background(), 0); err == nil {
		t.Fatal("expected error for round 0")
	}
	if _, err := c.Game(context.Background(), 1, 0); err == nil {
		t.Fatal("expected error for game 0")
	}
	if _, err := (&Client{}).Tournament(context.Background()); err == nil {
		t.Fatal("expected error for empty tournament id")
	}
}

func TestClientTournamentCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	cache, err := NewRedisCache(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer cache.Close()

	var hits int32
	srv := newFeedServer(t, &hits)
	c := &Client{BaseURL: srv.URL, TournamentID: "t1", Cache: cache, CacheTTL: time.Minute}
	for i := 0; i < 3; i++ {
		if _, err := c.Tournament(context.Background()); err != nil {
			t.Fatalf("Tournament: %v", err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected 1 upstream request, got %d", n)
	}
	if !mr.Exists("chessfeed:tournament:t1") {
		t.Fatal("tournament document not cached")
	}

	mr.FastForward(2 * time.Minute)
	if _, err := c.Tournament(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("expected refetch after ttl, got %d requests", n)
	}
}

func TestRedisCacheMiss(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	cache, err := NewRedisCache(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	if _, ok, err := cache.Get(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}
}

func TestClientRoundIndexCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	cache, err := NewRedisCache(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer cache.Close()

	var indexHits, gameHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/t1/round-3/index.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&indexHits, 1)
		_, _ = w.Write([]byte(`{"pairings":[{"white":{"lname":"A"},"black":{"lname":"B"},"live":true},{"white":{"lname":"C"},"black":{"lname":"D"},"live":true}]}`))
	})
	mux.HandleFunc("/t1/round-3/game-1.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&gameHits, 1)
		_, _ = w.Write([]byte(`{"live":true,"moves":["e4"]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, TournamentID: "t1", Cache: cache, IndexCacheTTL: 10 * time.Second}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		idx, err := c.RoundIndex(ctx, 3)
		if err != nil {
			t.Fatalf("RoundIndex: %v", err)
		}
		if len(idx.Pairings) != 2 {
			t.Fatalf("pairings = %+v", idx.Pairings)
		}
		if _, err := c.Game(ctx, 3, 1); err != nil {
			t.Fatalf("Game: %v", err)
		}
	}
	if n := atomic.LoadInt32(&indexHits); n != 1 {
		t.Errorf("index requests = %d, want 1", n)
	}
	if n := atomic.LoadInt32(&gameHits); n != 5 {
		t.Errorf("game requests = %d, want 5 (game records are not cached)", n)
	}
	if !mr.Exists("chessfeed:index:t1:3") {
		t.Fatal("round index not cached")
	}

	mr.FastForward(11 * time.Second)
	if _, err := c.RoundIndex(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&indexHits); n != 2 {
		t.Errorf("expected refetch after ttl, got %d index requests", n)
	}

	// Without a TTL the index always goes to the feed.
	c.IndexCacheTTL = 0
	for i := 0; i < 2; i++ {
		if _, err := c.RoundIndex(ctx, 3); err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt32(&indexHits); n != 4 {
		t.Errorf("uncached index requests = %d, want 4", n)
	}
}

func TestRedisCachePing(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	cache, err := NewRedisCache(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	if err := cache.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mr.Close()
	if err := cache.Ping(context.Background()); err == nil {
		t.Fatal("expected Ping to fail once redis is gone")
	}
}
