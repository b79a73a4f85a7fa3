// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Economic calendar rows; (name, date, clock, currency) is the identity
	CREATE TABLE IF NOT EXISTS calendar_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		event_time INTEGER NOT NULL,
		event_date TEXT NOT NULL,
		event_clock TEXT NOT NULL,
		impact TEXT,
		forecast REAL,
		previous REAL,
		actual REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(name, event_date, event_clock, currency)
	);

	-- Candles table for historical OHLCV data
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		ts INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		UNIQUE(symbol, timeframe, ts)
	);

	-- Signal journal
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		event_name TEXT NOT NULL,
		event_key TEXT,
		currency TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		probability REAL NOT NULL,
		confidence TEXT NOT NULL,
		entry_style TEXT,
		entry_logic TEXT,
		sl_pips REAL,
		tp_pips REAL,
		risk_reward REAL,
		avg_pips REAL,
		trend_forecast TEXT,
		order_type TEXT,
		mode TEXT,
		volume REAL,
		price_hint REAL,
		reasoning TEXT,
		executed INTEGER DEFAULT 0,
		execution_id TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_series ON calendar_events(name, currency, event_time);
	CREATE INDEX IF NOT EXISTS idx_events_time ON calendar_events(event_time);
	CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf ON candles(symbol, timeframe, ts);
	CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveEvents upserts calendar rows. Existing rows are immutable except that
// an absent actual may be filled in once. Invalid rows are skipped and
// reported in the result.
func (s *SQLiteStore) SaveEvents(ctx context.Context, events []models.CalendarEvent) (SaveResult, error) {
	var res SaveResult
	if len(events) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	touched := make(map[EventRef]struct{})

	for _, e := range events {
		if err := ValidateEvent(e); err != nil {
			res.Rejected = append(res.Rejected, fmt.Errorf("%s: %w", e.Key(), err))
			continue
		}

		t := e.Time.UTC()
		date, clock := t.Format("2006-01-02"), t.Format("15:04")
		currency := strings.ToUpper(e.Currency)
		name := strings.TrimSpace(e.Name)

		var id int64
		var actual sql.NullFloat64
		err := tx.QueryRowContext(ctx, `
			SELECT id, actual FROM calendar_events
			WHERE name = ? AND event_date = ? AND event_clock = ? AND currency = ?
		`, name, date, clock, currency).Scan(&id, &actual)

		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO calendar_events (name, currency, event_time, event_date, event_clock, impact, forecast, previous, actual)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, name, currency, t.Unix(), date, clock, string(e.Impact),
				nullFloat(e.Forecast), nullFloat(e.Previous), nullFloat(e.Actual))
			if err != nil {
				return res, fmt.Errorf("failed to insert event: %w", err)
			}
			res.Inserted++
			if e.Actual != nil {
				touched[EventRef{Name: name, Currency: currency}] = struct{}{}
			}
		case err != nil:
			return res, fmt.Errorf("failed to look up event: %w", err)
		case !actual.Valid && e.Actual != nil:
			_, err = tx.ExecContext(ctx, `UPDATE calendar_events SET actual = ? WHERE id = ? AND actual IS NULL`, *e.Actual, id)
			if err != nil {
				return res, fmt.Errorf("failed to record actual: %w", err)
			}
			res.Released++
			touched[EventRef{Name: name, Currency: currency}] = struct{}{}
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit transaction: %w", err)
	}

	for ref := range touched {
		res.Touched = append(res.Touched, ref)
	}
	return res, nil
}

// QueryEvents returns calendar rows matching q.
func (s *SQLiteStore) QueryEvents(ctx context.Context, q EventQuery) ([]models.CalendarEvent, error) {
	query := `SELECT id, name, currency, event_time, impact, forecast, previous, actual FROM calendar_events WHERE 1=1`
	var args []interface{}

	if q.Currency != "" {
		query += " AND currency = ?"
		args = append(args, strings.ToUpper(q.Currency))
	}
	if q.EventName != "" {
		query += " AND name = ?"
		args = append(args, q.EventName)
	}
	if q.After != nil {
		query += " AND event_time >= ?"
		args = append(args, q.After.Unix())
	}
	if q.Before != nil {
		query += " AND event_time < ?"
		args = append(args, q.Before.Unix())
	}
	if q.RequireForecast {
		query += " AND forecast IS NOT NULL"
	}
	if q.RequireActual {
		query += " AND actual IS NOT NULL"
	}
	if q.Ascending {
		query += " ORDER BY event_time ASC, id ASC"
	} else {
		query += " ORDER BY event_time DESC, id DESC"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.CalendarEvent
	for rows.Next() {
		var e models.CalendarEvent
		var ts int64
		var impact sql.NullString
		var forecast, previous, actual sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.Name, &e.Currency, &ts, &impact, &forecast, &previous, &actual); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Time = time.Unix(ts, 0).UTC()
		e.Impact = models.ImpactLevel(impact.String)
		e.Forecast = floatPtr(forecast)
		e.Previous = floatPtr(previous)
		e.Actual = floatPtr(actual)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// SaveCandles stores candles, replacing any with the same timestamp.
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
		INSERT OR REPLACE INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	symbol = strings.ToUpper(symbol)
	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, timeframe, c.Time.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCandles returns the most recent limit candles in ascending time order.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND timeframe = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, strings.ToUpper(symbol), timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	return scanCandles(rows)
}

// GetCandlesRange returns candles with from <= time <= to, ascending.
func (s *SQLiteStore) GetCandlesRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, strings.ToUpper(symbol), timeframe, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]models.Candle, error) {
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Time = time.Unix(ts, 0).UTC()
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, nil
}

// SaveSignal records a generated signal.
func (s *SQLiteStore) SaveSignal(ctx context.Context, sig *models.EventSignal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO signals (id, event_name, event_key, currency, symbol, direction, probability,
			confidence, entry_style, entry_logic, sl_pips, tp_pips, risk_reward, avg_pips, trend_forecast,
			order_type, mode, volume, price_hint, reasoning, executed, execution_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.ID, sig.EventName, sig.EventKey, sig.Currency, sig.Symbol, string(sig.Direction), sig.Probability,
		string(sig.Confidence), string(sig.EntryStyle), sig.EntryLogic, sig.StopLossPips, sig.TakeProfitPips,
		sig.RiskReward, sig.AvgPips, sig.TrendForecast, string(sig.OrderType), string(sig.Mode), sig.Volume, sig.PriceHint,
		sig.Reasoning, sig.Executed, sig.ExecutionID, sig.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}
	return nil
}

// ListSignals retrieves signals matching the filter, newest first.
func (s *SQLiteStore) ListSignals(ctx context.Context, filter SignalFilter) ([]models.EventSignal, error) {
	query := `SELECT id, event_name, event_key, currency, symbol, direction, probability, confidence,
		entry_style, entry_logic, sl_pips, tp_pips, risk_reward, avg_pips, trend_forecast, order_type,
		mode, volume, price_hint, reasoning, executed, execution_id, created_at
		FROM signals WHERE 1=1`
	var args []interface{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.EventName != "" {
		query += " AND event_name = ?"
		args = append(args, filter.EventName)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UnixMilli())
	}
	if filter.Executed != nil {
		query += " AND executed = ?"
		args = append(args, *filter.Executed)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []models.EventSignal
	for rows.Next() {
		var sig models.EventSignal
		var direction, confidence, entryStyle, orderType string
		var eventKey, entryLogic, trend, mode, reasoning, executionID sql.NullString
		var createdAt int64
		if err := rows.Scan(&sig.ID, &sig.EventName, &eventKey, &sig.Currency, &sig.Symbol, &direction,
			&sig.Probability, &confidence, &entryStyle, &entryLogic, &sig.StopLossPips, &sig.TakeProfitPips,
			&sig.RiskReward, &sig.AvgPips, &trend, &orderType, &mode, &sig.Volume, &sig.PriceHint, &reasoning,
			&sig.Executed, &executionID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		sig.Direction = models.Direction(direction)
		sig.Confidence = models.Confidence(confidence)
		sig.EntryStyle = models.EntryStyle(entryStyle)
		sig.OrderType = models.OrderType(orderType)
		sig.EventKey = eventKey.String
		sig.EntryLogic = entryLogic.String
		sig.TrendForecast = trend.String
		sig.Mode = models.TradingMode(mode.String)
		sig.Reasoning = reasoning.String
		sig.ExecutionID = executionID.String
		sig.CreatedAt = time.UnixMilli(createdAt).UTC()
		signals = append(signals, sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return signals, nil
}

// MarkSignalExecuted flags a journaled signal as executed. A signal that is
// already executed keeps its first execution id.
func (s *SQLiteStore) MarkSignalExecuted(ctx context.Context, id, executionID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE signals SET executed = 1, execution_id = ? WHERE id = ? AND executed = 0
	`, executionID, id)
	if err != nil {
		return fmt.Errorf("failed to mark signal executed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewDataError("signal", id, "not found or already executed", apperrors.ErrDataNotFound)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
