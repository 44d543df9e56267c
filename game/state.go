// Package game holds the canonical per-game model tracked for a tournament
// and the pure helpers that derive it from raw feed data: result vocabulary,
// deterministic ids, move cleaning and PGN replay.
package game

import "time"

// NoMove is stored as LastMove until the first half-move has been played.
const NoMove = "none"

// Commentary is one generated remark about a position. Evaluation is in pawns
// from white's point of view and may be absent.
type Commentary struct {
	Text       string   `json:"text"`
	Evaluation *float64 `json:"evaluation,omitempty"`
}

// Copy returns c with its own evaluation pointer.
func (c Commentary) Copy() Commentary {
	if c.Evaluation != nil {
		v := *c.Evaluation
		c.Evaluation = &v
	}
	return c
}

// State is the normalized view of one tournament game.
type State struct {
	GameID       string `json:"game_id"`
	TournamentID string `json:"tournament_id"`
	Round        int    `json:"round"`
	GameNumber   int    `json:"game_number"`

	LatestFEN         string `json:"latest_fen"`
	FENBeforeLastMove string `json:"fen_before_last_move"`
	LastMove          string `json:"last_move"`
	LatestPGN         string `json:"latest_pgn"`

	WhiteName   string `json:"white_name"`
	BlackName   string `json:"black_name"`
	WhiteFideID int64  `json:"white_fide_id,omitempty"`
	BlackFideID int64  `json:"black_fide_id,omitempty"`
	WhiteTitle  string `json:"white_title,omitempty"`
	BlackTitle  string `json:"black_title,omitempty"`

	Result Result `json:"result"`
	IsLive bool   `json:"is_live"`

	Commentaries []Commentary `json:"commentaries"`
	ImageMediaID string       `json:"image_media_id,omitempty"`
	LastUpdated  time.Time    `json:"last_updated"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Commentaries != nil {
		cp.Commentaries = make([]Commentary, len(s.Commentaries))
		for i, c := range s.Commentaries {
			cp.Commentaries[i] = c.Copy()
		}
	}
	return &cp
}

// Eval is a small helper for building commentaries with an evaluation.
func Eval(v float64) *float64 { return &v }
