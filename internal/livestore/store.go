package livestore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/MJE43/baccarat-roads/internal/games"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrNotFound = errors.New("live table not found")
	ErrInvalid  = errors.New("invalid live hand")
)

// --------- Data models ---------

type LiveTable struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Decks       int       `json:"decks"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Notes       string    `json:"notes"`
	TotalHands  int64     `json:"total_hands"`
	CurrentShoe int       `json:"current_shoe"`
	BankerWins  int64     `json:"banker_wins"`
	PlayerWins  int64     `json:"player_wins"`
	Ties        int64     `json:"ties"`
}

// LiveHand is one hand observed at a live table. Card faces are not
// recorded, only what the scoreboard shows.
type LiveHand struct {
	ID          int64        `json:"id"`
	TableID     uuid.UUID    `json:"table_id"`
	ExternalID  string       `json:"external_id"`
	Shoe        int          `json:"shoe"`
	ReceivedAt  time.Time    `json:"received_at"`
	PlayedAt    time.Time    `json:"played_at"`
	Winner      games.Winner `json:"winner"`
	PlayerScore int          `json:"player_score"`
	BankerScore int          `json:"banker_score"`
	PlayerPair  bool         `json:"player_pair"`
	BankerPair  bool         `json:"banker_pair"`
}

// Result converts the hand into the form the road builders consume.
func (h LiveHand) Result() games.HandResult {
	return games.HandResult{
		Winner:       h.Winner,
		PlayerScore:  h.PlayerScore,
		BankerScore:  h.BankerScore,
		IsPairPlayer: h.PlayerPair,
		IsPairBanker: h.BankerPair,
	}
}

// IngestResult indicates whether a hand was stored or ignored as duplicate.
type IngestResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// --------- Store ---------

type Store struct {
	db *sql.DB
}

// New opens/creates a SQLite database at dbPath and applies migrations.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("live migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("live migrations: %w", err)
	}
	return nil
}

// --------- Tables ---------

// FindOrCreateTable gets the table id for name, creating the table with
// decks if it does not exist yet.
func (s *Store) FindOrCreateTable(ctx context.Context, name string, decks int) (uuid.UUID, error) {
	now := time.Now().UTC()
	if decks <= 0 {
		decks = 8
	}

	var idStr string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM live_tables WHERE name=?`, name).Scan(&idStr)
	switch {
	case err == nil:
		if _, err2 := s.db.ExecContext(ctx,
			`UPDATE live_tables SET last_seen_at=? WHERE id=?`, now, idStr); err2 != nil {
			return uuid.Nil, err2
		}
		return uuid.Parse(idStr)
	case errors.Is(err, sql.ErrNoRows):
		id := uuid.New()
		_, err2 := s.db.ExecContext(ctx,
			`INSERT INTO live_tables(id, name, decks, created_at, last_seen_at, notes)
			 VALUES(?, ?, ?, ?, ?, '')`,
			id.String(), name, decks, now, now)
		if err2 != nil {
			// Race: another writer inserted concurrently; select again.
			if isUniqueErr(err2) {
				return s.FindOrCreateTable(ctx, name, decks)
			}
			return uuid.Nil, err2
		}
		return id, nil
	default:
		return uuid.Nil, err
	}
}

// UpdateNotes sets or clears notes on a table.
func (s *Store) UpdateNotes(ctx context.Context, tableID uuid.UUID, notes string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE live_tables SET notes=? WHERE id=?`, notes, tableID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	return nil
}

const tableSelect = `
	SELECT t.id, t.name, t.decks, t.created_at, t.last_seen_at, t.notes,
	       COALESCE(h.cnt, 0), COALESCE(h.shoe, 0),
	       COALESCE(h.banker, 0), COALESCE(h.player, 0), COALESCE(h.ties, 0)
	FROM live_tables t
	LEFT JOIN (
		SELECT table_id, COUNT(*) AS cnt, MAX(shoe) AS shoe,
		       SUM(winner = 'B') AS banker, SUM(winner = 'P') AS player, SUM(winner = 'T') AS ties
		FROM live_hands GROUP BY table_id
	) h ON t.id = h.table_id`

func scanTable(row interface{ Scan(...any) error }) (LiveTable, error) {
	var lt LiveTable
	err := row.Scan(&lt.ID, &lt.Name, &lt.Decks, &lt.CreatedAt, &lt.LastSeenAt, &lt.Notes,
		&lt.TotalHands, &lt.CurrentShoe, &lt.BankerWins, &lt.PlayerWins, &lt.Ties)
	return lt, err
}

// GetTable returns table metadata including aggregates.
func (s *Store) GetTable(ctx context.Context, tableID uuid.UUID) (LiveTable, error) {
	lt, err := scanTable(s.db.QueryRowContext(ctx, tableSelect+` WHERE t.id=?`, tableID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return LiveTable{}, fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	return lt, err
}

// ListTables returns tables ordered by last_seen_at desc with aggregates.
func (s *Store) ListTables(ctx context.Context, limit, offset int) ([]LiveTable, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, tableSelect+`
		ORDER BY t.last_seen_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LiveTable{}
	for rows.Next() {
		lt, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

// DeleteTable removes a table and all of its hands.
func (s *Store) DeleteTable(ctx context.Context, tableID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM live_tables WHERE id=?`, tableID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	return nil
}

// --------- Hands (ingest/query) ---------

// IngestHand stores a hand under the table. Idempotent on
// (table_id, external_id).
func (s *Store) IngestHand(ctx context.Context, tableID uuid.UUID, hand LiveHand) (IngestResult, error) {
	if hand.ExternalID == "" {
		return IngestResult{Reason: "missing hand id"}, fmt.Errorf("%w: missing external_id", ErrInvalid)
	}
	if hand.Shoe < 1 {
		return IngestResult{Reason: "invalid shoe"}, fmt.Errorf("%w: shoe must be >= 1", ErrInvalid)
	}
	winner, err := games.ParseWinner(string(hand.Winner))
	if err != nil {
		return IngestResult{Reason: "invalid winner"}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !validScore(hand.PlayerScore) || !validScore(hand.BankerScore) {
		return IngestResult{Reason: "invalid score"}, fmt.Errorf("%w: scores must be 0-9", ErrInvalid)
	}
	if want := games.WinnerFor(hand.PlayerScore, hand.BankerScore); winner != want {
		return IngestResult{Reason: "winner does not match scores"},
			fmt.Errorf("%w: winner %s with scores %d-%d", ErrInvalid, winner, hand.PlayerScore, hand.BankerScore)
	}
	if hand.PlayedAt.IsZero() {
		hand.PlayedAt = time.Now()
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO live_hands(
			table_id, external_id, shoe, received_at, played_at,
			winner, player_score, banker_score, player_pair, banker_pair
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tableID.String(), hand.ExternalID, hand.Shoe, now, hand.PlayedAt.UTC(),
		string(winner), hand.PlayerScore, hand.BankerScore, hand.PlayerPair, hand.BankerPair)
	switch {
	case isUniqueErr(err):
		return IngestResult{Reason: "duplicate"}, nil
	case isForeignKeyErr(err):
		return IngestResult{Reason: "unknown table"}, fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	case err != nil:
		return IngestResult{Reason: "db_error"}, err
	}

	// touch last_seen_at
	_, _ = s.db.ExecContext(ctx, `UPDATE live_tables SET last_seen_at=? WHERE id=?`, now, tableID.String())
	return IngestResult{Accepted: true}, nil
}

func validScore(v int) bool { return v >= 0 && v <= 9 }

const handColumns = `id, table_id, external_id, shoe, received_at, played_at,
	winner, player_score, banker_score, player_pair, banker_pair`

func scanHands(rows *sql.Rows) ([]LiveHand, error) {
	out := []LiveHand{}
	for rows.Next() {
		var h LiveHand
		if err := rows.Scan(&h.ID, &h.TableID, &h.ExternalID, &h.Shoe, &h.ReceivedAt, &h.PlayedAt,
			&h.Winner, &h.PlayerScore, &h.BankerScore, &h.PlayerPair, &h.BankerPair); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListHands returns paginated hands for a table. shoe of zero lists every
// shoe; order can be "asc" or "desc" by id.
func (s *Store) ListHands(ctx context.Context, tableID uuid.UUID, shoe int, order string, limit, offset int) ([]LiveHand, int64, error) {
	if limit <= 0 || limit > 10000 {
		limit = 500
	}
	if order != "desc" {
		order = "asc"
	}
	where := "table_id = ?"
	args := []any{tableID.String()}
	if shoe > 0 {
		where += " AND shoe = ?"
		args = append(args, shoe)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM live_hands WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageQ := fmt.Sprintf(`SELECT %s FROM live_hands WHERE %s ORDER BY id %s LIMIT ? OFFSET ?`,
		handColumns, where, strings.ToUpper(order))
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, pageQ, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	hands, err := scanHands(rows)
	return hands, total, err
}

// TailHands returns hands strictly after lastID for a table, limited.
func (s *Store) TailHands(ctx context.Context, tableID uuid.UUID, lastID int64, limit int) ([]LiveHand, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+handColumns+`
		FROM live_hands
		WHERE table_id=? AND id > ?
		ORDER BY id ASC
		LIMIT ?`, tableID.String(), lastID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHands(rows)
}

// ShoeHistory returns the hands of one shoe in play order. shoe of zero
// selects the table's latest shoe.
func (s *Store) ShoeHistory(ctx context.Context, tableID uuid.UUID, shoe int) (int, []games.HandResult, error) {
	if shoe <= 0 {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(shoe), 0) FROM live_hands WHERE table_id=?`, tableID.String()).Scan(&shoe); err != nil {
			return 0, nil, err
		}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+handColumns+`
		FROM live_hands WHERE table_id=? AND shoe=? ORDER BY played_at ASC, id ASC`, tableID.String(), shoe)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	hands, err := scanHands(rows)
	if err != nil {
		return 0, nil, err
	}
	history := make([]games.HandResult, len(hands))
	for i, h := range hands {
		history[i] = h.Result()
	}
	return shoe, history, nil
}

// ExportCSV writes all hands for a table to the writer as CSV (header included).
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, tableID uuid.UUID) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "shoe", "played_at", "winner", "player_score", "banker_score", "player_pair", "banker_pair"}); err != nil {
		return err
	}
	var lastID int64
	for {
		chunk, err := s.TailHands(ctx, tableID, lastID, 2000)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		for _, h := range chunk {
			if err := cw.Write([]string{
				strconv.FormatInt(h.ID, 10),
				strconv.Itoa(h.Shoe),
				h.PlayedAt.UTC().Format(time.RFC3339Nano),
				string(h.Winner),
				strconv.Itoa(h.PlayerScore),
				strconv.Itoa(h.BankerScore),
				strconv.FormatBool(h.PlayerPair),
				strconv.FormatBool(h.BankerPair),
			}); err != nil {
				return err
			}
		}
		lastID = chunk[len(chunk)-1].ID
	}
	cw.Flush()
	return cw.Error()
}

// --------- helpers ---------

// modernc sqlite reports "UNIQUE constraint failed: ..." and
// "FOREIGN KEY constraint failed".
func isUniqueErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
