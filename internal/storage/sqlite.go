package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/speedwagon-io/ambilight/internal/model"
)

type SQLiteStore struct {
	log *slog.Logger
	db  *sql.DB
}

func NewSQLiteStore(log *slog.Logger, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{
		log: log,
		db:  db,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS ambient_light_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL UNIQUE,
			lux REAL NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, reading model.LuxReading) (Outcome, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ambient_light_readings (timestamp, lux) VALUES (?, ?)`,
		reading.Timestamp,
		reading.Lux,
	)
	if err != nil {
		if isUniqueViolation(err) {
			s.log.Debug("duplicate reading, skipping", slog.Int64("timestamp", reading.Timestamp))
			return Duplicate, nil
		}
		return Failed, &StoreError{Op: "append", Err: err}
	}

	s.log.Debug("inserted lux reading",
		slog.Int64("timestamp", reading.Timestamp),
		slog.Float64("lux", reading.Lux),
	)
	return Inserted, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func (s *SQLiteStore) Latest(ctx context.Context) (model.LuxReading, error) {
	var r model.LuxReading
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp, lux FROM ambient_light_readings ORDER BY timestamp DESC LIMIT 1`,
	).Scan(&r.Timestamp, &r.Lux)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("failed to query latest reading: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ambient_light_readings").Scan(&count)
	return count, err
}

// Cleanup deletes readings taken before the given instant.
func (s *SQLiteStore) Cleanup(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM ambient_light_readings WHERE timestamp < ?",
		before.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to cleanup old readings: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.log.Info("cleaned up old readings", slog.Int64("deleted", deleted))
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
