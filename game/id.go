package game

import (
	"fmt"
	"strings"
	"unicode"
)

const tokenLen = 8

// PlayerToken derives the short pairing token used in game ids: both names
// lower-cased with all whitespace removed, concatenated, first 8 runes.
func PlayerToken(whiteName, blackName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(whiteName + blackName) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	runes := []rune(b.String())
	if len(runes) > tokenLen {
		runes = runes[:tokenLen]
	}
	return string(runes)
}

// BuildID returns the deterministic id for a game. It is stable across polls
// as long as the pairing does not change.
func BuildID(tournamentID string, round, gameNumber int, whiteName, blackName string) string {
	return fmt.Sprintf("%s-%d-%d-%s", tournamentID, round, gameNumber, PlayerToken(whiteName, blackName))
}

// PlayerName joins the feed's name parts, skipping empty ones.
func PlayerName(first, middle, last string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{first, middle, last} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
