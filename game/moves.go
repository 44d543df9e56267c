package game

import (
	"strings"
)

// CleanMoves strips the per-move annotations the feed attaches to raw moves:
// clock suffixes ("e4 6000+30"), {comments}, move numbers and !? glyphs.
// Check markers are dropped as well; the replay recomputes them.
func CleanMoves(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		if san := cleanMove(m); san != "" {
			out = append(out, san)
		}
	}
	return out
}

func cleanMove(m string) string {
	m = stripComments(m)
	fields := strings.Fields(m)
	if len(fields) == 0 {
		return ""
	}
	san := fields[0]
	if i := strings.LastIndex(san, "."); i >= 0 {
		san = san[i+1:]
	}
	san = strings.TrimRight(san, "!?+#")
	switch san {
	case "", "*", "1-0", "0-1", "1/2-1/2":
		return ""
	case "0-0":
		return "O-O"
	case "0-0-0":
		return "O-O-O"
	}
	return san
}

func stripComments(s string) string {
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			return s
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			return s[:open]
		}
		s = s[:open] + " " + s[open+end+1:]
	}
}

// JoinPGN renders cleaned moves the way they are stored.
func JoinPGN(moves []string) string { return strings.Join(moves, " ") }

// SplitSquares splits a coordinate move into its 2-character square tokens,
// ignoring a trailing promotion piece. NoMove and malformed input yield nil.
func SplitSquares(move string) []string {
	if move == NoMove || len(move) < 4 {
		return nil
	}
	return []string{move[0:2], move[2:4]}
}
