package server

import (
	"log/slog"
	"net/http"

	"github.com/Broadcast-Mate/lcc-dbupdater/game"
)

type gameList struct {
	TournamentID string       `json:"tournament_id"`
	Count        int          `json:"count"`
	Games        []game.State `json:"games"`
}

// HandleOngoingGames lists a tournament's games still in progress.
// Optional ?round=N narrows the list.
func (h *Handlers) HandleOngoingGames(w http.ResponseWriter, r *http.Request) {
	tid := r.PathValue("id")
	games, err := h.store.ListOngoing(r.Context(), tid)
	h.writeGames(w, r, tid, games, err)
}

// HandleResults lists a tournament's finished games. Optional ?round=N.
func (h *Handlers) HandleResults(w http.ResponseWriter, r *http.Request) {
	tid := r.PathValue("id")
	games, err := h.store.ListResults(r.Context(), tid)
	h.writeGames(w, r, tid, games, err)
}

func (h *Handlers) writeGames(w http.ResponseWriter, r *http.Request, tid string, games []game.State, err error) {
	if err != nil {
		h.logger.Error("list games", slog.String("tournament", tid), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to list games")
		return
	}
	if round := parseIntQuery(r, "round", 0); round > 0 {
		games = filterRound(games, round)
	}
	if games == nil {
		games = []game.State{}
	}
	writeJSON(w, http.StatusOK, gameList{TournamentID: tid, Count: len(games), Games: games})
}

// HandleGame returns one game with its full commentary history.
func (h *Handlers) HandleGame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get game", slog.String("game_id", id), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleStatus reports each tournament driver's cursor and last cycle.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"drivers": h.status()})
}

func filterRound(games []game.State, round int) []game.State {
	out := games[:0:0]
	for _, g := range games {
		if g.Round == round {
			out = append(out, g)
		}
	}
	return out
}
