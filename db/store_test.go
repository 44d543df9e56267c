package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/Broadcast-Mate/lcc-dbupdater/game"
	"github.com/Broadcast-Mate/lcc-dbupdater/live"
)

// openTestDB connects to TEST_PG_DSN, recreates the schema and returns a store.
func openTestDB(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	database, err := Connect(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	cleanDatabase(t, context.Background(), database)
	if err := RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return NewStore(database)
}

func cleanDatabase(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS games CASCADE`,
		`DROP TABLE IF EXISTS kv CASCADE`,
		`DROP TABLE IF EXISTS schema_migrations CASCADE`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Logf("warning: clean database statement failed (may be expected): %v", err)
		}
	}
}

func sampleState() *game.State {
	return &game.State{
		GameID: "t1-1-1-abcd", TournamentID: "t1", Round: 1, GameNumber: 1,
		LatestFEN: "F1", FENBeforeLastMove: "F0", LastMove: "e2e4", LatestPGN: "e4",
		WhiteName: "A B", BlackName: "C D", WhiteFideID: 1, BlackFideID: 2,
		Result: game.Ongoing, IsLive: true,
	}
}

func TestMigrationsCreateTables(t *testing.T) {
	s := openTestDB(t)
	for _, table := range []string{"games", "kv"} {
		var exists bool
		err := s.DB.QueryRow(`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s does not exist after migration", table)
		}
	}
	version, dirty, err := GetMigrationVersion(s.DB)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if dirty || version < 1 {
		t.Errorf("version=%d dirty=%v", version, dirty)
	}
	if err := RunMigrations(s.DB); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
	if err := Migrate(context.Background(), s.DB); err != nil {
		t.Fatalf("legacy Migrate over versioned schema: %v", err)
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	s := openTestDB(t)
	if err := MigrateDown(s.DB); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	var exists bool
	if err := s.DB.QueryRow(`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'games')`).Scan(&exists); err != nil {
		t.Fatalf("check table: %v", err)
	}
	if exists {
		t.Error("games still exists after MigrateDown")
	}
	if err := RunMigrations(s.DB); err != nil {
		t.Fatalf("RunMigrations() after down error = %v", err)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := openTestDB(t)
	st, err := s.Get(context.Background(), "nope", "t1")
	if err != nil || st != nil {
		t.Fatalf("Get missing = %v, %v; want nil, nil", st, err)
	}
}

// TestStoreMatchesApply drives the same update sequence through Postgres and
// live.Apply and compares the persisted states after every step.
func TestStoreMatchesApply(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := sampleState()
	moved := sampleState()
	moved.Round = 7 // must not overwrite the stored round
	moved.LatestFEN, moved.FENBeforeLastMove, moved.LastMove, moved.LatestPGN = "F2", "F1", "e7e5", "e4 e5"
	drawn := moved.Clone()
	drawn.Result, drawn.IsLive = game.Draw, false
	drawn.WhiteName = "ignored by metadata update"

	steps := []live.Update{
		{Decision: live.FullUpdate, State: first, Commentary: &game.Commentary{Text: "one", Evaluation: game.Eval(0.3)}, ImageMediaID: "m1"},
		{Decision: live.NoChange, State: first},
		{Decision: live.FullUpdate, State: moved},
		{Decision: live.FullUpdate, State: moved, Commentary: &game.Commentary{Text: "two"}, ImageMediaID: "m2"},
		{Decision: live.MetadataUpdate, State: drawn},
	}

	var want *game.State
	for i, u := range steps {
		u.At = at.Add(time.Duration(i) * time.Minute)
		if err := s.Upsert(ctx, u); err != nil {
			t.Fatalf("step %d: upsert: %v", i, err)
		}
		want = live.Apply(want, u)

		got, err := s.Get(ctx, first.GameID, "t1")
		if err != nil {
			t.Fatalf("step %d: get: %v", i, err)
		}
		if got == nil {
			t.Fatalf("step %d: row missing", i)
		}
		if got.LatestFEN != want.LatestFEN || got.Result != want.Result || got.IsLive != want.IsLive ||
			got.Round != want.Round || got.ImageMediaID != want.ImageMediaID || got.WhiteName != want.WhiteName ||
			len(got.Commentaries) != len(want.Commentaries) {
			t.Fatalf("step %d: got %+v\nwant %+v", i, got, want)
		}
		for j := range want.Commentaries {
			if got.Commentaries[j].Text != want.Commentaries[j].Text {
				t.Errorf("step %d: commentary %d = %q, want %q", i, j, got.Commentaries[j].Text, want.Commentaries[j].Text)
			}
		}
	}

	if want.Round != 1 || len(want.Commentaries) != 2 || want.ImageMediaID != "m2" || want.Result != game.Draw {
		t.Errorf("unexpected final state %+v", want)
	}
}

func TestStoreProjections(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	at := time.Now().UTC()

	ongoing := sampleState()
	done := sampleState()
	done.GameID, done.GameNumber, done.Result, done.IsLive = "t1-1-2-efgh", 2, game.WhiteWins, false
	other := sampleState()
	other.TournamentID = "t2"

	for _, st := range []*game.State{done, ongoing, other} {
		if err := s.Upsert(ctx, live.Update{Decision: live.FullUpdate, State: st, At: at}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	list, err := s.ListOngoing(ctx, "t1")
	if err != nil || len(list) != 1 || list[0].GameID != ongoing.GameID {
		t.Fatalf("ListOngoing = %+v, %v", list, err)
	}
	list, err = s.ListResults(ctx, "t1")
	if err != nil || len(list) != 1 || list[0].GameID != done.GameID {
		t.Fatalf("ListResults = %+v, %v", list, err)
	}
	got, err := s.GetByID(ctx, done.GameID)
	if err != nil || got == nil || got.Result != game.WhiteWins {
		t.Fatalf("GetByID = %+v, %v", got, err)
	}
	if got.Commentaries == nil {
		t.Error("commentaries should decode to an empty list")
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestStoreCursor(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	if _, ok, err := s.GetCursor(ctx, "round_cursor:t1"); err != nil || ok {
		t.Fatalf("fresh cursor ok=%v err=%v", ok, err)
	}
	for _, r := range []int{3, 4} {
		if err := s.SetCursor(ctx, "round_cursor:t1", r); err != nil {
			t.Fatalf("SetCursor: %v", err)
		}
	}
	r, ok, err := s.GetCursor(ctx, "round_cursor:t1")
	if err != nil || !ok || r != 4 {
		t.Fatalf("GetCursor = %d, %v, %v; want 4", r, ok, err)
	}
}
