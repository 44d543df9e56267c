// Package chessfeed is a minimal client for the live tournament feed: the
// tournament document, per-round pairing indexes and per-game move records.
package chessfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RoundSummary is one entry of the tournament document.
type RoundSummary struct {
	Count int `json:"count"`
	Live  int `json:"live"`
}

// Tournament lists the rounds of a tournament in order; round N is Rounds[N-1].
type Tournament struct {
	Name   string         `json:"name,omitempty"`
	Rounds []RoundSummary `json:"rounds"`
}

// Player is a pairing participant.
type Player struct {
	FName      string `json:"fname"`
	MName      string `json:"mname"`
	LName      string `json:"lname"`
	Title      string `json:"title"`
	Federation string `json:"federation"`
	FideID     int64  `json:"fideid"`
}

// Pairing is one board of a round. Result uses the feed vocabulary and is
// empty while the game is running.
type Pairing struct {
	White  *Player `json:"white"`
	Black  *Player `json:"black"`
	Result string  `json:"result"`
	Live   bool    `json:"live"`
}

// RoundIndex is the pairing index of a round; board N is Pairings[N-1].
type RoundIndex struct {
	Date     string    `json:"date,omitempty"`
	Pairings []Pairing `json:"pairings"`
}

// GameRecord is the per-game document with raw, annotated moves.
type GameRecord struct {
	Live   bool     `json:"live"`
	Result string   `json:"result"`
	Moves  []string `json:"moves"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("feed %s: status %d", e.URL, e.Code) }

// Client reads one tournament from the feed. Cache is optional. It holds the
// tournament document for CacheTTL and round indexes for IndexCacheTTL, which
// should stay under the poll interval: a cycle reads the index of its round
// once per board. Game records are never cached. A zero TTL disables caching
// of that document.
type Client struct {
	BaseURL       string
	TournamentID  string
	HTTPClient    *http.Client
	Cache         Cache
	CacheTTL      time.Duration
	IndexCacheTTL time.Duration
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + c.TournamentID + "/" + path
}

// Tournament fetches the tournament document.
func (c *Client) Tournament(ctx context.Context) (*Tournament, error) {
	if c.TournamentID == "" {
		return nil, fmt.Errorf("tournament id empty")
	}
	raw, err := c.cachedGet(ctx, "chessfeed:tournament:"+c.TournamentID, "tournament.json", c.CacheTTL)
	if err != nil {
		return nil, err
	}
	var t Tournament
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode tournament: %w", err)
	}
	return &t, nil
}

// RoundIndex fetches the pairing index of a 1-based round.
func (c *Client) RoundIndex(ctx context.Context, round int) (*RoundIndex, error) {
	if round <= 0 {
		return nil, fmt.Errorf("invalid round %d", round)
	}
	key := fmt.Sprintf("chessfeed:index:%s:%d", c.TournamentID, round)
	b, err := c.cachedGet(ctx, key, fmt.Sprintf("round-%d/index.json", round), c.IndexCacheTTL)
	if err != nil {
		return nil, err
	}
	var idx RoundIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("decode round %d index: %w", round, err)
	}
	return &idx, nil
}

// Game fetches the move record of a 1-based game in a round. The poll query
// asks the feed for the freshest copy.
func (c *Client) Game(ctx context.Context, round, gameNumber int) (*GameRecord, error) {
	if round <= 0 || gameNumber <= 0 {
		return nil, fmt.Errorf("invalid game %d/%d", round, gameNumber)
	}
	b, err := c.get(ctx, c.url(fmt.Sprintf("round-%d/game-%d.json?poll", round, gameNumber)))
	if err != nil {
		return nil, err
	}
	var g GameRecord
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("decode game %d/%d: %w", round, gameNumber, err)
	}
	return &g, nil
}

// cachedGet serves path from the cache when present, otherwise fetches it and
// stores it for ttl. Cache errors are logged and fall through to the feed.
func (c *Client) cachedGet(ctx context.Context, key, path string, ttl time.Duration) ([]byte, error) {
	useCache := c.Cache != nil && ttl > 0
	if useCache {
		b, ok, err := c.Cache.Get(ctx, key)
		if err != nil {
			slog.Warn("feed cache get", slog.String("key", key), slog.Any("err", err))
		} else if ok {
			return b, nil
		}
	}
	b, err := c.get(ctx, c.url(path))
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := c.Cache.Set(ctx, key, b, ttl); err != nil {
			slog.Warn("feed cache set", slog.String("key", key), slog.Any("err", err))
		}
	}
	return b, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u, Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
