package game

import (
	"fmt"

	"github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Replayed is the position information recovered from a move list.
type Replayed struct {
	FEN       string
	FENBefore string
	LastMove  string
	// Applied is the number of moves that replayed cleanly.
	Applied int
}

// ReplayWarning reports a move list that could not be replayed to the end.
// The accompanying Replayed still holds the position reached before Move.
type ReplayWarning struct {
	Ply  int
	Move string
	Err  error
}

func (w *ReplayWarning) Error() string {
	return fmt.Sprintf("replay stopped at ply %d (%q): %v", w.Ply, w.Move, w.Err)
}

func (w *ReplayWarning) Unwrap() error { return w.Err }

// Replay plays cleaned SAN moves from the initial position. On an illegal or
// malformed move it returns the best-effort position reached so far together
// with a *ReplayWarning.
func Replay(moves []string) (Replayed, error) {
	g := chess.NewGame()
	out := Replayed{FEN: g.FEN(), FENBefore: g.FEN(), LastMove: NoMove}
	for i, san := range moves {
		before := g.Position()
		beforeFEN := g.FEN()
		if err := g.PushNotationMove(san, chess.AlgebraicNotation{}, nil); err != nil {
			return out, &ReplayWarning{Ply: i + 1, Move: san, Err: err}
		}
		last := g.Moves()[len(g.Moves())-1]
		out.FENBefore = beforeFEN
		out.FEN = g.FEN()
		out.LastMove = chess.UCINotation{}.Encode(before, last)
		out.Applied = i + 1
	}
	return out, nil
}

// IsCheckmate reports whether the side to move in fen is mated. Unparseable
// positions are never checkmate.
func IsCheckmate(fen string) bool {
	opt, err := chess.FEN(fen)
	if err != nil {
		return false
	}
	return chess.NewGame(opt).Method() == chess.Checkmate
}

// WhiteToMove reports the side to move in fen; it defaults to white when the
// position cannot be parsed.
func WhiteToMove(fen string) bool {
	opt, err := chess.FEN(fen)
	if err != nil {
		return true
	}
	return chess.NewGame(opt).Position().Turn() == chess.White
}
