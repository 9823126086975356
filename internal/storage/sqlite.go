package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/airmon/internal/models"
)

// Store defines the interface for durable reading storage. The store is
// append-only: Append and TruncateAll are the only mutations, rows are never
// updated or selectively deleted.
type Store interface {
	Close() error
	Migrate() error
	Append(reading *models.Reading) (*models.StoredReading, error)
	Latest() (*models.StoredReading, error)
	Query(limit int) ([]*models.StoredReading, error)
	QueryRange(start, end time.Time) ([]*models.StoredReading, error)
	TruncateAll() (int64, error)
	Count() (int64, error)
	StorageStats() (*StorageStats, error)
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists sensor readings in a single SQLite database.
//
// Row ids are assigned by AUTOINCREMENT and strictly increase within a store
// epoch. TruncateAll starts a new epoch: it removes every row and resets the
// sequence, so ids may restart at 1 afterwards. Clients caching row ids
// across a truncation must treat the epoch as changed rather than assume
// continuity.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger

	// writeMu makes appends and truncation mutually exclusive, so an
	// in-flight append can never produce a row that straddles a truncation.
	writeMu sync.Mutex
}

// StorageStats contains information about the database.
type StorageStats struct {
	TotalReadings  int64     `json:"total_readings"`
	OldestReceived time.Time `json:"oldest_received,omitempty"`
	NewestReceived time.Time `json:"newest_received,omitempty"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

const sqliteTimeFormat = "2006-01-02 15:04:05.000"

// NewSQLiteStore opens (or creates) the database at dbPath and migrates the
// schema. Reopening an existing, non-truncated database resumes row id
// assignment where the previous process left off.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Apply performance pragmas for SQLite
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Single connection: SQLite allows one writer, and a single connection
	// also gives every read a consistent snapshot relative to truncation.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist.
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL DEFAULT '',
		temperature REAL,
		humidity REAL,
		gas_raw INTEGER NOT NULL,
		gas_digital INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL,
		received_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_received ON readings(received_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

// Append inserts a reading and returns the stored row, carrying the assigned
// row id and receipt timestamp exactly as later queries will report them.
// This is the sole mutation path besides TruncateAll.
func (s *SQLiteStore) Append(reading *models.Reading) (*models.StoredReading, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Timestamps are stored at millisecond precision; truncate up front so
	// the returned row matches what a round trip through the table yields.
	receivedAt := time.Now().UTC().Truncate(time.Millisecond)
	recordedAt := reading.Timestamp.UTC().Truncate(time.Millisecond)
	if reading.Timestamp.IsZero() {
		recordedAt = receivedAt
	}

	result, err := s.db.Exec(`
		INSERT INTO readings (device_id, temperature, humidity, gas_raw, gas_digital, recorded_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		reading.DeviceID,
		nullFloat(reading.Temperature),
		nullFloat(reading.Humidity),
		reading.GasRaw,
		boolToInt(reading.GasDigital),
		recordedAt.Format(sqliteTimeFormat),
		receivedAt.Format(sqliteTimeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reading: %w", err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get row id: %w", err)
	}

	stored := &models.StoredReading{
		RowID:      rowID,
		ReceivedAt: receivedAt,
		Reading:    *reading,
	}
	stored.Timestamp = recordedAt
	return stored, nil
}

// Latest returns the most recently appended reading, or nil if the store is
// empty.
func (s *SQLiteStore) Latest() (*models.StoredReading, error) {
	row := s.db.QueryRow(`
		SELECT id, device_id, temperature, humidity, gas_raw, gas_digital, recorded_at, received_at
		FROM readings
		ORDER BY id DESC
		LIMIT 1
	`)

	reading, err := s.scanReading(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}

	return reading, nil
}

// Query returns at most limit rows, newest first by row id. A non-positive
// limit returns every row.
func (s *SQLiteStore) Query(limit int) ([]*models.StoredReading, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unlimited
	}

	rows, err := s.db.Query(`
		SELECT id, device_id, temperature, humidity, gas_raw, gas_digital, recorded_at, received_at
		FROM readings
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return s.scanReadings(rows)
}

// QueryRange returns rows with receipt timestamp in [start, end], ascending.
func (s *SQLiteStore) QueryRange(start, end time.Time) ([]*models.StoredReading, error) {
	rows, err := s.db.Query(`
		SELECT id, device_id, temperature, humidity, gas_raw, gas_digital, recorded_at, received_at
		FROM readings
		WHERE received_at BETWEEN ? AND ?
		ORDER BY received_at ASC, id ASC
	`,
		start.UTC().Format(sqliteTimeFormat),
		end.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings in range: %w", err)
	}
	defer rows.Close()

	return s.scanReadings(rows)
}

// TruncateAll removes every row in a single transaction and resets the row
// id sequence, starting a new store epoch. Returns the number of rows
// removed. Concurrent readers observe either the full pre-truncation state
// or an empty store, never a mix.
func (s *SQLiteStore) TruncateAll() (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec("DELETE FROM readings")
	if err != nil {
		return 0, fmt.Errorf("failed to truncate readings: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	// New epoch: reset AUTOINCREMENT so ids restart at 1.
	if _, err := tx.Exec("DELETE FROM sqlite_sequence WHERE name = 'readings'"); err != nil {
		return 0, fmt.Errorf("failed to reset row id sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit truncation: %w", err)
	}

	s.logger.Info().Int64("deleted", deleted).Msg("Store truncated, new epoch started")

	return deleted, nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return count, nil
}

// StorageStats returns statistics about the database.
func (s *SQLiteStore) StorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&stats.TotalReadings); err != nil {
		return nil, fmt.Errorf("failed to count readings: %w", err)
	}

	if stats.TotalReadings > 0 {
		var oldestStr, newestStr string
		err := s.db.QueryRow("SELECT MIN(received_at), MAX(received_at) FROM readings").
			Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, fmt.Errorf("failed to get timestamp range: %w", err)
		}
		stats.OldestReceived, _ = parseTimestamp(oldestStr)
		stats.NewestReceived, _ = parseTimestamp(newestStr)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// scanReading is a helper to scan a row into a StoredReading.
func (s *SQLiteStore) scanReading(row interface{ Scan(...interface{}) error }) (*models.StoredReading, error) {
	var r models.StoredReading
	var temp, hum sql.NullFloat64
	var gasDigital int
	var recordedAt, receivedAt string

	err := row.Scan(&r.RowID, &r.DeviceID, &temp, &hum, &r.GasRaw, &gasDigital, &recordedAt, &receivedAt)
	if err != nil {
		return nil, err
	}

	if temp.Valid {
		r.Temperature = &temp.Float64
	}
	if hum.Valid {
		r.Humidity = &hum.Float64
	}
	r.GasDigital = gasDigital != 0

	if r.Timestamp, err = parseTimestamp(recordedAt); err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
	}
	if r.ReceivedAt, err = parseTimestamp(receivedAt); err != nil {
		return nil, fmt.Errorf("failed to parse received_at: %w", err)
	}

	return &r, nil
}

// scanReadings scans multiple rows into a slice of stored readings.
func (s *SQLiteStore) scanReadings(rows *sql.Rows) ([]*models.StoredReading, error) {
	var readings []*models.StoredReading

	for rows.Next() {
		reading, err := s.scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return readings, nil
}

// parseTimestamp tries multiple formats to parse a SQLite timestamp.
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		sqliteTimeFormat,
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
