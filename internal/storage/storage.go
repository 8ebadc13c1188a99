package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver

	"hedged-grid-backtest/internal/models"
)

// Query selects the bars of one symbol/interval in [Start, End), or in
// [Start, End] when IncludeEnd is set.
type Query struct {
	Symbol     string
	Interval   models.Interval
	Start      time.Time
	End        time.Time
	IncludeEnd bool
}

// BarStore keeps OHLCV bars in SQLite, one row per (symbol, interval, open time).
type BarStore struct {
	db *sql.DB
}

// Open initializes the database connection and creates the bar table.
func Open(dataSourceName string) (*BarStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &BarStore{db: db}, nil
}

// createTables creates the necessary database tables if they don't exist.
func createTables(db *sql.DB) error {
	createBarsTableSQL := `
	CREATE TABLE IF NOT EXISTS bars (
		symbol TEXT NOT NULL,
		bar_interval TEXT NOT NULL,
		open_time INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (symbol, bar_interval, open_time)
	);`

	_, err := db.Exec(createBarsTableSQL)
	return err
}

// SaveBars upserts bars in one transaction and returns how many were written.
func (s *BarStore) SaveBars(ctx context.Context, bars []models.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR REPLACE INTO bars (symbol, bar_interval, open_time, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, string(b.Interval), b.Time.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return 0, fmt.Errorf("failed to insert bar %s %s: %w", b.Symbol, b.Time.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bars: %w", err)
	}
	return len(bars), nil
}

// LoadBars returns the bars matching q in chronological order.
func (s *BarStore) LoadBars(ctx context.Context, q Query) ([]models.Bar, error) {
	upper := "open_time < ?"
	if q.IncludeEnd {
		upper = "open_time <= ?"
	}
	query := `
	SELECT open_time, open, high, low, close, volume
	FROM bars
	WHERE symbol = ? AND bar_interval = ? AND open_time >= ? AND ` + upper + `
	ORDER BY open_time ASC`

	rows, err := s.db.QueryContext(ctx, query, q.Symbol, string(q.Interval), q.Start.UnixMilli(), q.End.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var ts int64
		b := models.Bar{Symbol: q.Symbol, Interval: q.Interval}
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar row: %w", err)
		}
		b.Time = time.UnixMilli(ts).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bars: %w", err)
	}
	return bars, nil
}

// Coverage reports the first and last stored bar and the row count.
func (s *BarStore) Coverage(ctx context.Context, symbol string, interval models.Interval) (first, last time.Time, count int, err error) {
	var minTS, maxTS sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
	SELECT MIN(open_time), MAX(open_time), COUNT(*)
	FROM bars WHERE symbol = ? AND bar_interval = ?`, symbol, string(interval))
	if err = row.Scan(&minTS, &maxTS, &count); err != nil {
		return first, last, 0, fmt.Errorf("failed to read coverage: %w", err)
	}
	if minTS.Valid {
		first = time.UnixMilli(minTS.Int64).UTC()
	}
	if maxTS.Valid {
		last = time.UnixMilli(maxTS.Int64).UTC()
	}
	return first, last, count, nil
}

// Close closes the database.
func (s *BarStore) Close() error {
	return s.db.Close()
}
