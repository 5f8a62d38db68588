package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pazaak/internal/game/pazaak"
)

// MatchRow is one journaled match.
type MatchRow struct {
	ID        string
	Players   []string
	StartedAt time.Time
	EndedAt   *time.Time
	Winner    string
}

// RoundRow is one journaled round result.
type RoundRow struct {
	MatchID     string
	RoundNumber int
	WinnerID    string
	IsVoid      bool
	Scores      map[string]int
	RecordedAt  time.Time
}

// Store is a write-mostly SQLite journal of finished rounds and matches.
// It is never read back to resume a match.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection keeps :memory: databases shared and serialises writes
	db.SetMaxOpenConns(1)
	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS matches (
			id         TEXT PRIMARY KEY,
			players    TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at   DATETIME,
			winner     TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS rounds (
			match_id     TEXT NOT NULL REFERENCES matches(id),
			seq          INTEGER NOT NULL,
			round_number INTEGER NOT NULL,
			winner_id    TEXT NOT NULL DEFAULT '',
			is_void      INTEGER NOT NULL,
			scores       TEXT NOT NULL,
			recorded_at  DATETIME NOT NULL,
			PRIMARY KEY (match_id, seq)
		);
	`)
	return err
}

// RecordMatchStart inserts a new match.
func (s *Store) RecordMatchStart(ctx context.Context, matchID string, players []string, at time.Time) error {
	data, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO matches (id, players, started_at) VALUES (?, ?, ?)",
		matchID, string(data), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record match %s: %w", matchID, err)
	}
	return nil
}

// RecordRound appends a round result. Void rounds replay under the same
// round number, so rows are keyed by arrival order.
func (s *Store) RecordRound(ctx context.Context, matchID string, r pazaak.RoundResult) error {
	scores, err := json.Marshal(r.PerPlayerScore)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rounds (match_id, seq, round_number, winner_id, is_void, scores, recorded_at)
		VALUES (?, (SELECT COUNT(*) FROM rounds WHERE match_id = ?), ?, ?, ?, ?, ?)
	`, matchID, matchID, r.RoundNumber, r.WinnerID, r.IsVoid, string(scores), s.now().UTC())
	if err != nil {
		return fmt.Errorf("record round %d of %s: %w", r.RoundNumber, matchID, err)
	}
	return nil
}

// RecordMatchEnd stamps the winner on a match.
func (s *Store) RecordMatchEnd(ctx context.Context, matchID, winner string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE matches SET winner = ?, ended_at = ? WHERE id = ?",
		winner, at.UTC(), matchID,
	)
	if err != nil {
		return fmt.Errorf("record end of %s: %w", matchID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record end of %s: %w", matchID, sql.ErrNoRows)
	}
	return nil
}

// GetMatch retrieves a match by id.
func (s *Store) GetMatch(ctx context.Context, id string) (*MatchRow, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, players, started_at, ended_at, winner FROM matches WHERE id = ?", id)
	return scanMatch(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(sc scanner) (*MatchRow, error) {
	var (
		m       MatchRow
		players string
		ended   sql.NullTime
	)
	if err := sc.Scan(&m.ID, &players, &m.StartedAt, &ended, &m.Winner); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(players), &m.Players); err != nil {
		return nil, fmt.Errorf("decode players of %s: %w", m.ID, err)
	}
	if ended.Valid {
		t := ended.Time
		m.EndedAt = &t
	}
	return &m, nil
}

// ListMatches returns the most recent matches, newest first.
func (s *Store) ListMatches(ctx context.Context, limit int) ([]MatchRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, players, started_at, ended_at, winner FROM matches ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []MatchRow
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

// ListRounds returns a match's rounds in the order they were played.
func (s *Store) ListRounds(ctx context.Context, matchID string) ([]RoundRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, round_number, winner_id, is_void, scores, recorded_at
		FROM rounds WHERE match_id = ? ORDER BY seq
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []RoundRow
	for rows.Next() {
		var (
			r      RoundRow
			scores string
		)
		if err := rows.Scan(&r.MatchID, &r.RoundNumber, &r.WinnerID, &r.IsVoid, &scores, &r.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scores), &r.Scores); err != nil {
			return nil, fmt.Errorf("decode scores: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
