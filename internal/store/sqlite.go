// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/errors"
	"flag-scanner/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", errors.Join(errors.ErrDatabaseError, err))
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", errors.Join(errors.ErrDatabaseError, err))
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Candle cache
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	-- Detected flag patterns and their annotations
	CREATE TABLE IF NOT EXISTS pattern_matches (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		orientation TEXT NOT NULL,
		t0_index INTEGER NOT NULL,
		t1_index INTEGER NOT NULL,
		t2_index INTEGER NOT NULL,
		t3_index INTEGER NOT NULL,
		t4_index INTEGER NOT NULL,
		t0_price REAL NOT NULL,
		t1_price REAL NOT NULL,
		t2_price REAL NOT NULL,
		t3_price REAL NOT NULL,
		t4_price REAL NOT NULL,
		t0_time DATETIME NOT NULL,
		t1_time DATETIME NOT NULL,
		t2_time DATETIME NOT NULL,
		t3_time DATETIME NOT NULL,
		t4_time DATETIME NOT NULL,
		breakout_index INTEGER NOT NULL DEFAULT -1,
		breakout_confirmed INTEGER NOT NULL DEFAULT 0,
		breakout_price REAL,
		breakout_strength REAL,
		quality REAL NOT NULL,
		pole_height REAL,
		components TEXT,
		trendline TEXT,
		label TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		detected_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Candle indices shift with the scanned window; keypoint times do not
	CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_keypoints
		ON pattern_matches(symbol, timeframe, orientation, t0_time, t1_time, t2_time, t3_time, t4_time);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf ON candles(symbol, timeframe, timestamp);
	CREATE INDEX IF NOT EXISTS idx_matches_symbol ON pattern_matches(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_matches_label ON pattern_matches(label);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Candles Methods
// ============================================================================

// SaveCandles saves candles to the database.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, timeframe, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCandles retrieves candles from the database. A zero from or to leaves
// that side of the range open.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	query := `SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ?`
	args := []interface{}{symbol, timeframe}

	if !from.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, to.UTC())
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, nil
}

// GetCandlesFreshness returns the timestamp of the latest cached candle.
func (s *SQLiteStore) GetCandlesFreshness(ctx context.Context, symbol, timeframe string) (time.Time, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM candles WHERE symbol = ? AND timeframe = ?
	`, symbol, timeframe).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get freshness: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, errors.NewDataError("candles", symbol, "no cached candles", errors.ErrDataNotFound)
	}
	return parseSQLiteTime(latest.String)
}

// ListSymbols returns the symbols cached for a timeframe.
func (s *SQLiteStore) ListSymbols(ctx context.Context, timeframe string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT symbol FROM candles WHERE timeframe = ? ORDER BY symbol
	`, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// ============================================================================
// Pattern Match Methods
// ============================================================================

// SaveMatches upserts matches keyed by symbol, timeframe, orientation and
// keypoint times. A rescan refreshes indices, breakout and quality fields but
// keeps the original id, label and detection time.
func (s *SQLiteStore) SaveMatches(ctx context.Context, symbol, timeframe string, matches []flags.PatternMatch) ([]MatchRecord, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO pattern_matches (
			id, symbol, timeframe, orientation,
			t0_index, t1_index, t2_index, t3_index, t4_index,
			t0_price, t1_price, t2_price, t3_price, t4_price,
			t0_time, t1_time, t2_time, t3_time, t4_time,
			breakout_index, breakout_confirmed, breakout_price, breakout_strength,
			quality, pole_height, components, trendline, detected_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, orientation, t0_time, t1_time, t2_time, t3_time, t4_time) DO UPDATE SET
			t0_index = excluded.t0_index,
			t1_index = excluded.t1_index,
			t2_index = excluded.t2_index,
			t3_index = excluded.t3_index,
			t4_index = excluded.t4_index,
			breakout_index = excluded.breakout_index,
			breakout_confirmed = excluded.breakout_confirmed,
			breakout_price = excluded.breakout_price,
			breakout_strength = excluded.breakout_strength,
			quality = excluded.quality,
			pole_height = excluded.pole_height,
			components = excluded.components,
			trendline = excluded.trendline,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer upsert.Close()

	now := time.Now().UTC()
	keys := make([]flags.PatternMatch, 0, len(matches))
	for _, m := range matches {
		components, _ := json.Marshal(m.Components)
		trendline, _ := json.Marshal(m.Trendline)
		sk := m.Skeleton
		confirmed := 0
		if m.BreakoutConfirmed {
			confirmed = 1
		}

		_, err := upsert.ExecContext(ctx,
			uuid.NewString(), symbol, timeframe, string(m.Orientation),
			sk[flags.T0].Index, sk[flags.T1].Index, sk[flags.T2].Index, sk[flags.T3].Index, sk[flags.T4].Index,
			sk[flags.T0].Price, sk[flags.T1].Price, sk[flags.T2].Price, sk[flags.T3].Price, sk[flags.T4].Price,
			sk[flags.T0].Time.UTC(), sk[flags.T1].Time.UTC(), sk[flags.T2].Time.UTC(), sk[flags.T3].Time.UTC(), sk[flags.T4].Time.UTC(),
			m.BreakoutIndex, confirmed, m.BreakoutPrice, m.BreakoutStrength,
			m.QualityScore, m.PoleHeight, string(components), string(trendline), now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert match %s: %w", m.Key(), err)
		}
		keys = append(keys, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	records := make([]MatchRecord, 0, len(keys))
	for _, m := range keys {
		sk := m.Skeleton
		row := s.db.QueryRowContext(ctx, selectMatches+`
			WHERE symbol = ? AND timeframe = ? AND orientation = ?
			AND t0_time = ? AND t1_time = ? AND t2_time = ? AND t3_time = ? AND t4_time = ?
		`, symbol, timeframe, string(m.Orientation),
			sk[flags.T0].Time.UTC(), sk[flags.T1].Time.UTC(), sk[flags.T2].Time.UTC(), sk[flags.T3].Time.UTC(), sk[flags.T4].Time.UTC())
		rec, err := scanMatch(row)
		if err != nil {
			return nil, fmt.Errorf("failed to read back match %s: %w", m.Key(), err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

const selectMatches = `
	SELECT id, symbol, timeframe, orientation,
		t0_index, t1_index, t2_index, t3_index, t4_index,
		t0_price, t1_price, t2_price, t3_price, t4_price,
		t0_time, t1_time, t2_time, t3_time, t4_time,
		breakout_index, breakout_confirmed, breakout_price, breakout_strength,
		quality, pole_height, components, trendline, label, note, detected_at, updated_at
	FROM pattern_matches`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*MatchRecord, error) {
	var rec MatchRecord
	var orientation, label, components, trendline string
	var confirmed int
	var idx [5]int
	var prices [5]float64
	var times [5]time.Time
	m := &rec.Match

	err := row.Scan(&rec.ID, &rec.Symbol, &rec.Timeframe, &orientation,
		&idx[0], &idx[1], &idx[2], &idx[3], &idx[4],
		&prices[0], &prices[1], &prices[2], &prices[3], &prices[4],
		&times[0], &times[1], &times[2], &times[3], &times[4],
		&m.BreakoutIndex, &confirmed, &m.BreakoutPrice, &m.BreakoutStrength,
		&m.QualityScore, &m.PoleHeight, &components, &trendline, &label, &rec.Note,
		&rec.DetectedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	m.Orientation = models.Orientation(orientation)
	for i := range m.Skeleton {
		m.Skeleton[i] = flags.Keypoint{Role: flags.Role(i), Index: idx[i], Price: prices[i], Time: times[i]}
	}
	m.BreakoutConfirmed = confirmed == 1
	json.Unmarshal([]byte(components), &m.Components)
	json.Unmarshal([]byte(trendline), &m.Trendline)
	rec.Label = Label(label)
	return &rec, nil
}

// GetMatches retrieves matches, most recent detection first.
func (s *SQLiteStore) GetMatches(ctx context.Context, filter MatchFilter) ([]MatchRecord, error) {
	query := selectMatches + " WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Timeframe != "" {
		query += " AND timeframe = ?"
		args = append(args, filter.Timeframe)
	}
	if filter.Orientation != "" {
		query += " AND orientation = ?"
		args = append(args, string(filter.Orientation))
	}
	if filter.Unlabeled {
		query += " AND label = ''"
	} else if filter.Label != LabelNone {
		query += " AND label = ?"
		args = append(args, string(filter.Label))
	}
	if filter.MinQuality > 0 {
		query += " AND quality >= ?"
		args = append(args, filter.MinQuality)
	}
	if !filter.Since.IsZero() {
		query += " AND detected_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY detected_at DESC, symbol ASC, t4_index DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var records []MatchRecord
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// GetMatchByID retrieves a single match. A unique id prefix is accepted.
func (s *SQLiteStore) GetMatchByID(ctx context.Context, id string) (*MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectMatches+" WHERE id LIKE ? LIMIT 2", id+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query match: %w", err)
	}
	defer rows.Close()

	var found []*MatchRecord
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, errors.NewDataError("match", id, "match not found", errors.ErrDataNotFound)
	case 1:
		return found[0], nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "id prefix %q is ambiguous", id)
	}
}

// LabelMatch sets the label and note of a match.
func (s *SQLiteStore) LabelMatch(ctx context.Context, id string, label Label, note string) error {
	if !label.Valid() {
		return errors.Wrapf(errors.ErrInvalidLabel, "%q", label)
	}
	rec, err := s.GetMatchByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE pattern_matches SET label = ?, note = ?, updated_at = ? WHERE id = ?
	`, string(label), note, time.Now().UTC(), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to label match: %w", err)
	}
	return nil
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, dataType).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t.UTC(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}

// parseSQLiteTime parses the text form mattn/go-sqlite3 writes for time values.
func parseSQLiteTime(v string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

var _ DataStore = (*SQLiteStore)(nil)
