package market

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Manifest summarizes what one symbol's bar file contains.
type Manifest struct {
	Symbol   string `json:"symbol"`
	MinDate  int64  `json:"min_date"`
	MaxDate  int64  `json:"max_date"`
	Rows     int64  `json:"rows"`
	SyncedAt int64  `json:"synced_at"`
	Path     string `json:"path"`
}

// Store keeps daily bars in one sqlite file per symbol under a data root.
// It doubles as a Provider for backtests that replay cached history.
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(symbol string) (*sql.DB, string, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key == "" {
		return nil, "", fmt.Errorf("symbol cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok {
		return db, key, nil
	}
	path := filepath.Join(s.root, key+"_1d.db")
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, "", err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS bars (
		date   INTEGER PRIMARY KEY,
		open   REAL NOT NULL,
		high   REAL NOT NULL,
		low    REAL NOT NULL,
		close  REAL NOT NULL,
		volume REAL NOT NULL
	)`); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("init bar table for %s: %w", key, err)
	}
	s.dbs[key] = db
	return db, key, nil
}

// UpsertBars writes bars idempotently; re-ingesting the same history is a
// no-op so cached files can be refreshed in place.
func (s *Store) UpsertBars(ctx context.Context, symbol string, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}
	db, key, err := s.db(symbol)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bars (date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET open=excluded.open, high=excluded.high,
			low=excluded.low, close=excluded.close, volume=excluded.volume`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Date.UTC().Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s bar %s: %w", key, b.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

// RangeBars returns bars with from <= date <= to in ascending order.
func (s *Store) RangeBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error) {
	db, _, err := s.db(symbol)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT date, open, high, low, close, volume FROM bars WHERE date >= ? AND date <= ? ORDER BY date ASC`,
		from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBars(rows)
}

// Manifest reports row counts and date bounds for a symbol's file.
func (s *Store) Manifest(ctx context.Context, symbol string) (Manifest, error) {
	db, key, err := s.db(symbol)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	m.Symbol = key
	m.Path = filepath.Join(s.root, key+"_1d.db")
	m.SyncedAt = time.Now().Unix()
	row := db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(MIN(date),0), COALESCE(MAX(date),0) FROM bars`)
	if err := row.Scan(&m.Rows, &m.MinDate, &m.MaxDate); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// GetPriceSeries implements Provider over the cached files: the most recent
// lookback bars, ascending. An empty file maps to ErrNoData.
func (s *Store) GetPriceSeries(ctx context.Context, symbol string, lookback int) (Series, error) {
	db, key, err := s.db(symbol)
	if err != nil {
		return Series{}, err
	}
	query := `SELECT date, open, high, low, close, volume FROM bars ORDER BY date DESC`
	args := []any{}
	if lookback > 0 {
		query += ` LIMIT ?`
		args = append(args, lookback)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return Series{}, err
	}
	defer rows.Close()
	bars, err := scanBars(rows)
	if err != nil {
		return Series{}, err
	}
	if len(bars) == 0 {
		return Series{}, fmt.Errorf("%w: %s", ErrNoData, key)
	}
	// Rows came out newest-first; flip back to ascending.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return Series{Symbol: key, Bars: bars}, nil
}

func scanBars(rows *sql.Rows) ([]Bar, error) {
	var out []Bar
	for rows.Next() {
		var (
			ts  int64
			bar Bar
		)
		if err := rows.Scan(&ts, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, err
		}
		bar.Date = time.Unix(ts, 0).UTC()
		out = append(out, bar)
	}
	return out, rows.Err()
}
