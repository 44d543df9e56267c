package game

import "strings"

// Result is the normalized outcome of a game.
type Result string

const (
	WhiteWins Result = "1-0"
	BlackWins Result = "0-1"
	Draw      Result = "1/2-1/2"
	Ongoing   Result = "ongoing"
	Unknown   Result = "unknown"
)

// IsTerminal reports whether the result closes the game. Unknown is not
// terminal: the feed may still settle on a real outcome later.
func (r Result) IsTerminal() bool {
	switch r {
	case WhiteWins, BlackWins, Draw:
		return true
	}
	return false
}

var feedResults = map[string]Result{
	"WHITEWIN":     WhiteWins,
	"WHITEDEFAULT": WhiteWins,
	"1-0":          WhiteWins,
	"BLACKWIN":     BlackWins,
	"BLACKDEFAULT": BlackWins,
	"0-1":          BlackWins,
	"DRAW":         Draw,
	"1/2-1/2":      Draw,
	"½-½":          Draw,
	"0.5-0.5":      Draw,
	"":             Ongoing,
	"*":            Ongoing,
	"ONGOING":      Ongoing,
	"LIVE":         Ongoing,
	"NULL":         Ongoing,
}

// NormalizeResult maps the feed result vocabulary onto Result. A missing
// value (null in the feed decodes to "") means the game is still running;
// anything unrecognized becomes Unknown.
func NormalizeResult(raw string) Result {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if r, ok := feedResults[key]; ok {
		return r
	}
	return Unknown
}
