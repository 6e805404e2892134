// Package store is the local SQLite archive of everything the watcher
// announces: one row per play and one per finished match. The archive
// backs the status and history queries; the matches.json collection
// remains the authoritative summary record.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

// Store wraps a SQLite database connection for the watcher.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath with WAL mode
// and a 5-second busy timeout, then runs any pending migrations.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection and WAL mode.
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("check journal mode: %w", err)
	}
	if journalMode != "wal" {
		_ = db.Close()
		return nil, fmt.Errorf("expected WAL journal mode, got %q", journalMode)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct queries.
// Use sparingly; prefer adding methods to Store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RecordPlay archives one announced play.
func (s *Store) RecordPlay(matchID, actor, card, zone string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO play_events (match_id, actor, card, zone, timestamp) VALUES (?, ?, ?, ?, ?)`,
		matchID, actor, card, zone, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert play event: %w", err)
	}
	return nil
}

// MatchRecord is one archived match summary row.
type MatchRecord struct {
	MatchID    string
	Result     string
	Format     string
	PlayerDeck string
	Opponent   string
	PlayCount  int
	FinishedAt time.Time
}

// RecordMatch archives one finished match.
func (s *Store) RecordMatch(m MatchRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO matches (match_id, result, format, player_deck, opponent, play_count, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.MatchID, m.Result, m.Format, m.PlayerDeck, m.Opponent, m.PlayCount,
		m.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// RecentMatches returns the most recently finished matches, newest first.
func (s *Store) RecentMatches(limit int) ([]MatchRecord, error) {
	rows, err := s.db.Query(
		`SELECT match_id, result, format, player_deck, opponent, play_count, finished_at
		 FROM matches ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		var m MatchRecord
		var finished string
		if err := rows.Scan(&m.MatchID, &m.Result, &m.Format, &m.PlayerDeck, &m.Opponent, &m.PlayCount, &finished); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, m)
	}
	return out, rows.Err()
}

// PlayEventsCount returns the number of archived plays.
func (s *Store) PlayEventsCount() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM play_events").Scan(&count)
	return count, err
}

// MatchesCount returns the number of archived matches.
func (s *Store) MatchesCount() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM matches").Scan(&count)
	return count, err
}

// DBSizeBytes returns the database file size in bytes.
// This is an approximation using page_count * page_size.
func (s *Store) DBSizeBytes() (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}

// GetState reads a value from the daemon_state kv table.
// Returns "" when the key is absent.
func (s *Store) GetState(key string) (string, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM daemon_state WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return val, err
}

// SetState upserts a value into the daemon_state kv table.
func (s *Store) SetState(key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO daemon_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	)
	return err
}
