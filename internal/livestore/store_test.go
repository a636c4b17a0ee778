package livestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/baccarat-roads/internal/games"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "live.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func hand(id string, shoe int, w games.Winner, p, b int) LiveHand {
	return LiveHand{ExternalID: id, Shoe: shoe, Winner: w, PlayerScore: p, BankerScore: b}
}

func TestFindOrCreateTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.FindOrCreateTable(ctx, "Speed Baccarat A", 8)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.FindOrCreateTable(ctx, "Speed Baccarat A", 6)
	if err != nil {
		t.Fatal(err)
	}
	if id != again {
		t.Errorf("expected the same table id, got %s and %s", id, again)
	}

	lt, err := s.GetTable(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if lt.Decks != 8 || lt.TotalHands != 0 || lt.CurrentShoe != 0 {
		t.Errorf("unexpected new table: %+v", lt)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.db")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.FindOrCreateTable(context.Background(), "t1", 8)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := New(path)
	if err != nil {
		t.Fatalf("reopen should re-run migrations cleanly: %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetTable(context.Background(), id); err != nil {
		t.Errorf("table lost after reopen: %v", err)
	}
}

func TestIngestHandIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.FindOrCreateTable(ctx, "t1", 8)

	res, err := s.IngestHand(ctx, id, hand("h1", 1, games.Banker, 3, 7))
	if err != nil || !res.Accepted {
		t.Fatalf("first ingest: %+v, %v", res, err)
	}
	res, err = s.IngestHand(ctx, id, hand("h1", 1, games.Banker, 3, 7))
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted || res.Reason != "duplicate" {
		t.Errorf("expected duplicate, got %+v", res)
	}

	lt, _ := s.GetTable(ctx, id)
	if lt.TotalHands != 1 || lt.BankerWins != 1 {
		t.Errorf("expected one banker hand, got %+v", lt)
	}
}

func TestIngestHandValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.FindOrCreateTable(ctx, "t1", 8)

	tests := []struct {
		name string
		hand LiveHand
	}{
		{"missing id", hand("", 1, games.Player, 8, 2)},
		{"zero shoe", hand("a", 0, games.Player, 8, 2)},
		{"bad winner", hand("b", 1, games.Winner("X"), 8, 2)},
		{"score too high", hand("c", 1, games.Player, 10, 2)},
		{"negative score", hand("d", 1, games.Banker, 1, -1)},
		{"player winner with lower score", hand("e", 1, games.Player, 2, 9)},
		{"banker winner on equal scores", hand("f", 1, games.Banker, 4, 4)},
		{"tie with different scores", hand("g", 1, games.Tie, 6, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.IngestHand(ctx, id, tt.hand)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if res.Accepted {
				t.Error("invalid hand accepted")
			}
		})
	}

	lt, _ := s.GetTable(ctx, id)
	if lt.TotalHands != 0 {
		t.Errorf("invalid hands were stored: %+v", lt)
	}
}

func TestIngestHandUnknownTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.IngestHand(ctx, uuid.New(), hand("h1", 1, games.Banker, 3, 7))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %+v, %v", res, err)
	}
	if res.Accepted || res.Reason == "duplicate" {
		t.Errorf("hand for a missing table reported as %+v", res)
	}

	id, _ := s.FindOrCreateTable(ctx, "gone", 8)
	if err := s.DeleteTable(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.IngestHand(ctx, id, hand("h1", 1, games.Banker, 3, 7)); !errors.Is(err, ErrNotFound) {
		t.Errorf("ingest after delete: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteTable(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestAggregatesAndShoeHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.FindOrCreateTable(ctx, "t1", 8)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hands := []LiveHand{
		hand("1", 1, games.Player, 7, 2),
		hand("2", 1, games.Banker, 1, 9),
		hand("3", 2, games.Tie, 5, 5),
		hand("4", 2, games.Banker, 0, 6),
		hand("5", 2, games.Banker, 4, 8),
	}
	for i, h := range hands {
		h.PlayedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := s.IngestHand(ctx, id, h); err != nil {
			t.Fatal(err)
		}
	}

	lt, err := s.GetTable(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if lt.TotalHands != 5 || lt.CurrentShoe != 2 || lt.BankerWins != 3 || lt.PlayerWins != 1 || lt.Ties != 1 {
		t.Errorf("unexpected aggregates: %+v", lt)
	}

	shoe, history, err := s.ShoeHistory(ctx, id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if shoe != 2 || len(history) != 3 {
		t.Fatalf("expected 3 hands in shoe 2, got shoe %d with %d", shoe, len(history))
	}
	if history[0].Winner != games.Tie || history[2].BankerScore != 8 {
		t.Errorf("history out of order: %+v", history)
	}

	shoe, history, err = s.ShoeHistory(ctx, id, 1)
	if err != nil || shoe != 1 || len(history) != 2 {
		t.Errorf("shoe 1: got %d hands, %v", len(history), err)
	}

	list, total, err := s.ListHands(ctx, id, 2, "desc", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(list) != 2 || list[0].ExternalID != "5" {
		t.Errorf("ListHands desc: total %d, %+v", total, list)
	}

	tail, err := s.TailHands(ctx, id, list[1].ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 1 || tail[0].ExternalID != "5" {
		t.Errorf("TailHands: %+v", tail)
	}
}

func TestEmptyTableShoeHistory(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.FindOrCreateTable(context.Background(), "empty", 8)

	shoe, history, err := s.ShoeHistory(context.Background(), id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if shoe != 0 || len(history) != 0 {
		t.Errorf("expected no hands, got shoe %d and %d hands", shoe, len(history))
	}
}

func TestNotesListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, _ := s.FindOrCreateTable(ctx, "a", 8)
	b, _ := s.FindOrCreateTable(ctx, "b", 6)

	if err := s.UpdateNotes(ctx, a, "dealer change at 40"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateNotes(ctx, uuid.New(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown table, got %v", err)
	}

	tables, err := s.ListTables(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}

	if _, err := s.IngestHand(ctx, a, hand("1", 1, games.Player, 9, 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTable(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTable(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted table still present: %v", err)
	}
	rest, _, err := s.ListHands(ctx, a, 0, "asc", 10, 0)
	if err != nil || len(rest) != 0 {
		t.Errorf("hands should cascade on delete, got %d", len(rest))
	}
	if _, err := s.GetTable(ctx, b); err != nil {
		t.Errorf("other table affected: %v", err)
	}
}

func TestExportCSV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.FindOrCreateTable(ctx, "t1", 8)
	s.IngestHand(ctx, id, LiveHand{ExternalID: "1", Shoe: 1, Winner: games.Player, PlayerScore: 8, BankerScore: 3, PlayerPair: true})
	s.IngestHand(ctx, id, hand("2", 1, games.Banker, 2, 6))

	var buf bytes.Buffer
	if err := s.ExportCSV(ctx, &buf, id); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,shoe,") {
		t.Errorf("bad header %q", lines[0])
	}
	if !strings.Contains(lines[1], ",P,8,3,true,false") {
		t.Errorf("bad first row %q", lines[1])
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(rows) != 3 || len(rows[2]) != 8 || rows[2][3] != "B" || rows[2][5] != "6" {
		t.Errorf("unexpected CSV rows %v", rows)
	}
}
