// Package scriptstore provides SQLite persistence for strategy script sessions.
package scriptstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/MJE43/baccarat-roads/internal/games"
)

var ErrNotFound = errors.New("script session not found")

// ScriptSession is one strategy run over a provably fair shoe.
type ScriptSession struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	ScriptSource   string          `json:"scriptSource"`
	ServerSeedHash string          `json:"serverSeedHash"`
	ClientSeed     string          `json:"clientSeed"`
	Nonce          uint64          `json:"nonce"`
	Decks          int             `json:"decks"`
	StartBalance   decimal.Decimal `json:"startBalance"`
	FinalBalance   decimal.Decimal `json:"finalBalance"`
	CreatedAt      time.Time       `json:"createdAt"`
	EndedAt        *time.Time      `json:"endedAt,omitempty"`
	FinalState     string          `json:"finalState"`
	TotalHands     int             `json:"totalHands"`
	TotalWins      int             `json:"totalWins"`
	TotalLosses    int             `json:"totalLosses"`
	TotalProfit    decimal.Decimal `json:"totalProfit"`
	TotalWagered   decimal.Decimal `json:"totalWagered"`
	HighestStreak  int             `json:"highestStreak"`
	LowestStreak   int             `json:"lowestStreak"`
}

// ScriptHand is one settled hand within a session.
type ScriptHand struct {
	ID          int64                               `json:"id"`
	SessionID   string                              `json:"sessionId"`
	Hand        int                                 `json:"hand"`
	Winner      games.Winner                        `json:"winner"`
	PlayerScore int                                 `json:"playerScore"`
	BankerScore int                                 `json:"bankerScore"`
	Bets        map[games.BetTarget]decimal.Decimal `json:"bets"`
	Stake       decimal.Decimal                     `json:"stake"`
	Returned    decimal.Decimal                     `json:"returned"`
	Balance     decimal.Decimal                     `json:"balance"`
}

// ScriptHandsPage is a paginated hands response.
type ScriptHandsPage struct {
	Hands      []ScriptHand `json:"hands"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	PerPage    int          `json:"perPage"`
	TotalPages int          `json:"totalPages"`
}

// SessionStats holds final stats for ending a session.
type SessionStats struct {
	FinalBalance  decimal.Decimal
	TotalHands    int
	TotalWins     int
	TotalLosses   int
	TotalProfit   decimal.Decimal
	TotalWagered  decimal.Decimal
	HighestStreak int
	LowestStreak  int
}

// Store provides SQLite persistence for script sessions.
type Store struct {
	db *sql.DB
}

// New creates a new script store using the given SQLite database path.
// Pragmas go in the DSN so every pooled connection gets them.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("scriptstore: open db: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("scriptstore: open db: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate runs the script session migrations.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS script_sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			script_source TEXT NOT NULL DEFAULT '',
			server_seed_hash TEXT NOT NULL,
			client_seed TEXT NOT NULL,
			nonce INTEGER NOT NULL,
			decks INTEGER NOT NULL,
			start_balance TEXT NOT NULL DEFAULT '0',
			final_balance TEXT NOT NULL DEFAULT '0',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			final_state TEXT NOT NULL DEFAULT 'running',
			total_hands INTEGER NOT NULL DEFAULT 0,
			total_wins INTEGER NOT NULL DEFAULT 0,
			total_losses INTEGER NOT NULL DEFAULT 0,
			total_profit TEXT NOT NULL DEFAULT '0',
			total_wagered TEXT NOT NULL DEFAULT '0',
			highest_streak INTEGER NOT NULL DEFAULT 0,
			lowest_streak INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS script_hands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			hand INTEGER NOT NULL,
			winner TEXT NOT NULL,
			player_score INTEGER NOT NULL,
			banker_score INTEGER NOT NULL,
			bets_json TEXT NOT NULL DEFAULT '{}',
			stake TEXT NOT NULL,
			returned TEXT NOT NULL,
			balance TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES script_sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_script_hands_session_hand ON script_hands(session_id, hand)`,
		`CREATE INDEX IF NOT EXISTS idx_script_sessions_created ON script_sessions(created_at DESC)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("scriptstore: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new script session and returns its ID.
func (s *Store) CreateSession(sess *ScriptSession) (string, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO script_sessions (id, name, script_source, server_seed_hash, client_seed,
			nonce, decks, start_balance, final_balance, final_state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.ScriptSource, sess.ServerSeedHash, sess.ClientSeed,
		sess.Nonce, sess.Decks, sess.StartBalance, sess.StartBalance, "running",
	)
	if err != nil {
		return "", fmt.Errorf("scriptstore: create session: %w", err)
	}
	return sess.ID, nil
}

// EndSession marks a session as ended with final stats.
func (s *Store) EndSession(id string, finalState string, stats SessionStats) error {
	res, err := s.db.Exec(
		`UPDATE script_sessions SET
			ended_at = ?, final_state = ?, final_balance = ?,
			total_hands = ?, total_wins = ?, total_losses = ?,
			total_profit = ?, total_wagered = ?,
			highest_streak = ?, lowest_streak = ?
		 WHERE id = ?`,
		time.Now().UTC(), finalState, stats.FinalBalance,
		stats.TotalHands, stats.TotalWins, stats.TotalLosses,
		stats.TotalProfit, stats.TotalWagered,
		stats.HighestStreak, stats.LowestStreak,
		id,
	)
	if err != nil {
		return fmt.Errorf("scriptstore: end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scriptstore: session %q: %w", id, ErrNotFound)
	}
	return nil
}

// InsertHandsBatch records multiple hands in a single transaction.
func (s *Store) InsertHandsBatch(sessionID string, hands []ScriptHand) error {
	if len(hands) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("scriptstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO script_hands (session_id, hand, winner, player_score, banker_score,
			bets_json, stake, returned, balance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("scriptstore: prepare: %w", err)
	}
	defer stmt.Close()

	for _, h := range hands {
		bets, err := json.Marshal(h.Bets)
		if err != nil {
			return fmt.Errorf("scriptstore: marshal bets #%d: %w", h.Hand, err)
		}
		_, err = stmt.Exec(sessionID, h.Hand, string(h.Winner), h.PlayerScore, h.BankerScore,
			string(bets), h.Stake, h.Returned, h.Balance)
		if err != nil {
			return fmt.Errorf("scriptstore: insert hand #%d: %w", h.Hand, err)
		}
	}
	return tx.Commit()
}

const sessionColumns = `id, name, script_source, server_seed_hash, client_seed, nonce, decks,
	start_balance, final_balance, created_at, ended_at, final_state,
	total_hands, total_wins, total_losses, total_profit, total_wagered,
	highest_streak, lowest_streak`

func scanSession(row interface{ Scan(...any) error }) (*ScriptSession, error) {
	sess := &ScriptSession{}
	var endedAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.Name, &sess.ScriptSource, &sess.ServerSeedHash, &sess.ClientSeed,
		&sess.Nonce, &sess.Decks, &sess.StartBalance, &sess.FinalBalance, &sess.CreatedAt,
		&endedAt, &sess.FinalState, &sess.TotalHands, &sess.TotalWins, &sess.TotalLosses,
		&sess.TotalProfit, &sess.TotalWagered, &sess.HighestStreak, &sess.LowestStreak,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return sess, nil
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(id string) (*ScriptSession, error) {
	sess, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM script_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scriptstore: session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scriptstore: get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions ordered by creation date (newest first).
func (s *Store) ListSessions(limit, offset int) ([]ScriptSession, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM script_sessions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("scriptstore: count sessions: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM script_sessions
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("scriptstore: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ScriptSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scriptstore: scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, total, rows.Err()
}

// GetSessionHands returns paginated hands for a session in play order.
func (s *Store) GetSessionHands(sessionID string, page, perPage int) (*ScriptHandsPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	var total int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM script_hands WHERE session_id = ?", sessionID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("scriptstore: count hands: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, hand, winner, player_score, banker_score, bets_json, stake, returned, balance
		 FROM script_hands WHERE session_id = ? ORDER BY hand ASC LIMIT ? OFFSET ?`,
		sessionID, perPage, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("scriptstore: get session hands: %w", err)
	}
	defer rows.Close()

	hands := []ScriptHand{}
	for rows.Next() {
		var h ScriptHand
		var bets string
		if err := rows.Scan(&h.ID, &h.SessionID, &h.Hand, &h.Winner, &h.PlayerScore, &h.BankerScore,
			&bets, &h.Stake, &h.Returned, &h.Balance); err != nil {
			return nil, fmt.Errorf("scriptstore: scan hand: %w", err)
		}
		if err := json.Unmarshal([]byte(bets), &h.Bets); err != nil {
			return nil, fmt.Errorf("scriptstore: decode bets #%d: %w", h.Hand, err)
		}
		hands = append(hands, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}

	return &ScriptHandsPage{
		Hands:      hands,
		TotalCount: total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// DeleteSession removes a session and all associated hands.
func (s *Store) DeleteSession(id string) error {
	// Foreign keys with CASCADE handle hands
	res, err := s.db.Exec("DELETE FROM script_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("scriptstore: delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scriptstore: session %q: %w", id, ErrNotFound)
	}
	return nil
}
