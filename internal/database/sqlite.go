package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dealwatch/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps known deals in a SQLite table ordered by insertion.
type SQLiteStore struct {
	conn *sql.DB
	mu   sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) init() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS known_deals (
		position INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		original_price INTEGER,
		current_price INTEGER
	);
	`
	_, err := s.conn.Exec(createTableSQL)
	return err
}

// Load returns all deals in insertion order
func (s *SQLiteStore) Load() ([]models.KnownDeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query("SELECT title, original_price, current_price, url FROM known_deals ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.KnownDeal
	for rows.Next() {
		var d models.KnownDeal
		var originalPrice, currentPrice sql.NullInt64
		if err := rows.Scan(&d.Title, &originalPrice, &currentPrice, &d.URL); err != nil {
			return nil, err
		}
		d.OriginalPrice = fromNull(originalPrice)
		d.CurrentPrice = fromNull(currentPrice)
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// Append inserts one deal
func (s *SQLiteStore) Append(deal models.KnownDeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(
		"INSERT INTO known_deals (title, original_price, current_price, url) VALUES (?, ?, ?, ?)",
		deal.Title, toNull(deal.OriginalPrice), toNull(deal.CurrentPrice), deal.URL,
	)
	return err
}

// RewriteAll replaces every row with deals inside one transaction
func (s *SQLiteStore) RewriteAll(deals []models.KnownDeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec("DELETE FROM known_deals"); err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO known_deals (title, original_price, current_price, url) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range deals {
		if _, err := stmt.Exec(d.Title, toNull(d.OriginalPrice), toNull(d.CurrentPrice), d.URL); err != nil {
			return fmt.Errorf("insert %s: %w", d.URL, err)
		}
	}

	return tx.Commit()
}

func toNull(p models.Price) sql.NullInt64 {
	return sql.NullInt64{Int64: p.Amount, Valid: p.Valid}
}

func fromNull(n sql.NullInt64) models.Price {
	if !n.Valid {
		return models.Price{}
	}
	return models.NewPrice(n.Int64)
}
