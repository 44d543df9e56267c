package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Broadcast-Mate/lcc-dbupdater/game"
	"github.com/Broadcast-Mate/lcc-dbupdater/live"
	"github.com/Broadcast-Mate/lcc-dbupdater/telemetry"
)

// Store is the Postgres implementation of live.Store and live.CursorStore,
// plus the read projections served by the HTTP API.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

var (
	_ live.Store       = (*Store)(nil)
	_ live.CursorStore = (*Store)(nil)
)

const gameColumns = `game_id, tournament_id, round, game_number, latest_fen, fen_before_last_move,
	last_move, latest_pgn, white_name, black_name, white_fide_id, black_fide_id,
	white_title, black_title, result, is_live, commentaries, image_media_id, last_updated`

const insertGame = `INSERT INTO games (` + gameColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17::jsonb,NULLIF($18,''),$19)
	ON CONFLICT (game_id, tournament_id) DO UPDATE SET `

// Round is never part of a SET clause: the first write decides it.
const fullUpdateSet = `game_number=EXCLUDED.game_number,
	latest_fen=EXCLUDED.latest_fen,
	fen_before_last_move=EXCLUDED.fen_before_last_move,
	last_move=EXCLUDED.last_move,
	latest_pgn=EXCLUDED.latest_pgn,
	white_name=EXCLUDED.white_name,
	black_name=EXCLUDED.black_name,
	white_fide_id=EXCLUDED.white_fide_id,
	black_fide_id=EXCLUDED.black_fide_id,
	white_title=EXCLUDED.white_title,
	black_title=EXCLUDED.black_title,
	result=EXCLUDED.result,
	is_live=EXCLUDED.is_live,
	commentaries=games.commentaries || EXCLUDED.commentaries,
	image_media_id=COALESCE(EXCLUDED.image_media_id, games.image_media_id),
	last_updated=EXCLUDED.last_updated`

const metadataUpdateSet = `result=EXCLUDED.result,
	is_live=EXCLUDED.is_live,
	last_updated=EXCLUDED.last_updated`

// Upsert writes u in a single statement. NoChange issues no SQL. A
// MetadataUpdate for a game that has no row yet inserts the full fetched
// state, matching live.Apply.
func (s *Store) Upsert(ctx context.Context, u live.Update) error {
	var set string
	switch u.Decision {
	case live.NoChange:
		return nil
	case live.MetadataUpdate:
		set = metadataUpdateSet
	case live.FullUpdate:
		set = fullUpdateSet
	default:
		return fmt.Errorf("upsert: unknown decision %d", u.Decision)
	}

	st := u.State
	newComments := []game.Commentary{}
	media := ""
	if u.Decision == live.FullUpdate {
		if u.Commentary != nil {
			newComments = append(newComments, *u.Commentary)
		}
		media = u.ImageMediaID
	}
	commentsJSON, err := json.Marshal(newComments)
	if err != nil {
		return fmt.Errorf("encode commentaries: %w", err)
	}

	ctx, span := telemetry.StartSpan(ctx, "db.upsert")
	_, err = s.DB.ExecContext(ctx, insertGame+set,
		st.GameID, st.TournamentID, st.Round, st.GameNumber,
		st.LatestFEN, st.FENBeforeLastMove, st.LastMove, st.LatestPGN,
		st.WhiteName, st.BlackName, st.WhiteFideID, st.BlackFideID,
		st.WhiteTitle, st.BlackTitle, string(st.Result), st.IsLive,
		string(commentsJSON), media, u.At,
	)
	telemetry.EndSpan(span, err)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", st.GameID, err)
	}
	return nil
}

// Get returns the stored game or nil, nil when it was never written.
func (s *Store) Get(ctx context.Context, gameID, tournamentID string) (*game.State, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE game_id=$1 AND tournament_id=$2`, gameID, tournamentID)
	st, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", gameID, err)
	}
	return st, nil
}

// GetByID finds a game by id in any tournament, preferring the most recently
// updated row. Returns nil, nil when absent.
func (s *Store) GetByID(ctx context.Context, gameID string) (*game.State, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE game_id=$1 ORDER BY last_updated DESC LIMIT 1`, gameID)
	st, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", gameID, err)
	}
	return st, nil
}

// ListOngoing returns the tournament's games still in progress.
func (s *Store) ListOngoing(ctx context.Context, tournamentID string) ([]game.State, error) {
	return s.list(ctx, `tournament_id=$1 AND result=$2`, tournamentID, string(game.Ongoing))
}

// ListResults returns the tournament's finished games.
func (s *Store) ListResults(ctx context.Context, tournamentID string) ([]game.State, error) {
	return s.list(ctx, `tournament_id=$1 AND result IN ($2,$3,$4)`, tournamentID,
		string(game.WhiteWins), string(game.BlackWins), string(game.Draw))
}

func (s *Store) list(ctx context.Context, where string, args ...any) ([]game.State, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE `+where+` ORDER BY round, game_number`, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []game.State{}
	for rows.Next() {
		st, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanGame(sc scanner) (*game.State, error) {
	var (
		st       game.State
		result   string
		comments []byte
		media    sql.NullString
	)
	err := sc.Scan(&st.GameID, &st.TournamentID, &st.Round, &st.GameNumber,
		&st.LatestFEN, &st.FENBeforeLastMove, &st.LastMove, &st.LatestPGN,
		&st.WhiteName, &st.BlackName, &st.WhiteFideID, &st.BlackFideID,
		&st.WhiteTitle, &st.BlackTitle, &result, &st.IsLive,
		&comments, &media, &st.LastUpdated)
	if err != nil {
		return nil, err
	}
	st.Result = game.Result(result)
	st.ImageMediaID = media.String
	st.Commentaries = []game.Commentary{}
	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &st.Commentaries); err != nil {
			return nil, fmt.Errorf("decode commentaries: %w", err)
		}
	}
	return &st, nil
}

// GetCursor reads a round cursor from kv.
func (s *Store) GetCursor(ctx context.Context, key string) (int, bool, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor %s: %w", key, err)
	}
	round, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("cursor %s holds %q: %w", key, v, err)
	}
	return round, true, nil
}

// SetCursor stores a round cursor in kv.
func (s *Store) SetCursor(ctx context.Context, key string, round int) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW()) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		key, strconv.Itoa(round))
	if err != nil {
		return fmt.Errorf("set cursor %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }
