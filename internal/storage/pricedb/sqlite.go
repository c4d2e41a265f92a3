package pricedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists items, series and analyses in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writers
}

// NewSQLiteStore opens (or creates) the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			type        TEXT NOT NULL,
			external_id TEXT NOT NULL,
			name        TEXT NOT NULL,
			set_name    TEXT NOT NULL DEFAULT '',
			UNIQUE (type, external_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_name ON items(name)`,

		`CREATE TABLE IF NOT EXISTS price_series (
			item_key           TEXT NOT NULL,
			date               TEXT NOT NULL,
			source             TEXT NOT NULL,
			condition_category TEXT NOT NULL,
			price              REAL NOT NULL,
			confidence         REAL NOT NULL DEFAULT 1.0,
			title              TEXT NOT NULL DEFAULT '',
			sample_count       INTEGER NOT NULL DEFAULT 1,
			collected_at       INTEGER NOT NULL,
			UNIQUE (item_key, date, source, condition_category)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_series_item_date ON price_series(item_key, date)`,

		`CREATE TABLE IF NOT EXISTS analyses (
			id               TEXT PRIMARY KEY,
			item_key         TEXT NOT NULL,
			computed_at      INTEGER NOT NULL,
			metrics_json     TEXT NOT NULL,
			recommendation   TEXT NOT NULL,
			confidence_score REAL NOT NULL,
			date_range_start TEXT,
			date_range_end   TEXT,
			total_points     INTEGER NOT NULL,
			result_json      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_item_time ON analyses(item_key, computed_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", strings.TrimSpace(stmt)[:30], err)
		}
	}
	return nil
}

// FindItems searches item names with LIKE, cards first.
func (s *SQLiteStore) FindItems(ctx context.Context, query string, itemType core.ItemType) ([]core.Item, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	q := `SELECT type, external_id, name, set_name FROM items WHERE name LIKE ? ESCAPE '\'`
	args := []any{pattern}
	if itemType != "" {
		q += ` AND type = ?`
		args = append(args, string(itemType))
	}
	q += ` ORDER BY CASE type WHEN 'card' THEN 0 ELSE 1 END, name, external_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		var item core.Item
		var typ string
		if err := rows.Scan(&typ, &item.ID, &item.Name, &item.SetName); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		item.Type = core.ItemType(typ)
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertItem inserts the item or updates its names.
func (s *SQLiteStore) UpsertItem(ctx context.Context, item core.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO items (type, external_id, name, set_name)
		VALUES (?,?,?,?)
		ON CONFLICT (type, external_id) DO UPDATE SET name = excluded.name, set_name = excluded.set_name`,
		string(item.Type), item.ID, item.Name, item.SetName,
	)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	return nil
}

// UpsertObservations merges observations in one transaction.
func (s *SQLiteStore) UpsertObservations(ctx context.Context, itemKey string, obs []core.Observation, collectedAt time.Time) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_series
		(item_key, date, source, condition_category, price, confidence, title, sample_count, collected_at)
		VALUES (?,?,?,?,?,?,?,1,?)
		ON CONFLICT (item_key, date, source, condition_category) DO UPDATE SET
			price        = (price * sample_count + excluded.price) / (sample_count + 1),
			sample_count = sample_count + 1,
			confidence   = MIN(confidence, excluded.confidence),
			title        = CASE WHEN title = '' THEN excluded.title ELSE title END,
			collected_at = excluded.collected_at`)
	if err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	defer stmt.Close()

	at := collectedAt.UnixNano()
	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, itemKey, o.Date.Format(core.DateLayout), string(o.Source),
			string(o.Condition), o.Price, o.Confidence, o.Title, at); err != nil {
			return 0, core.WrapError(core.ErrStorageFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	return len(obs), nil
}

// Observations reads the item's series ordered by date, source and condition.
func (s *SQLiteStore) Observations(ctx context.Context, itemKey string, filter ObservationFilter) ([]core.Observation, error) {
	q := `SELECT date, source, condition_category, price, confidence, title FROM price_series WHERE item_key = ?`
	args := []any{itemKey}
	if !filter.From.IsZero() {
		q += ` AND date >= ?`
		args = append(args, filter.From.Format(core.DateLayout))
	}
	if !filter.To.IsZero() {
		q += ` AND date <= ?`
		args = append(args, filter.To.Format(core.DateLayout))
	}
	q += ` ORDER BY date, source, condition_category`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	defer rows.Close()

	var result []core.Observation
	for rows.Next() {
		var date, source, condition string
		var o core.Observation
		if err := rows.Scan(&date, &source, &condition, &o.Price, &o.Confidence, &o.Title); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		o.Date, err = time.Parse(core.DateLayout, date)
		if err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		o.Source = core.Source(source)
		o.Condition = core.Condition(condition)
		if filter.matches(o) {
			result = append(result, o)
		}
	}
	return result, rows.Err()
}

// LastCollected returns MAX(collected_at) per source.
func (s *SQLiteStore) LastCollected(ctx context.Context, itemKey string) (map[core.Source]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, MAX(collected_at) FROM price_series WHERE item_key = ? GROUP BY source`, itemKey)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	defer rows.Close()

	last := make(map[core.Source]time.Time)
	for rows.Next() {
		var source string
		var nanos int64
		if err := rows.Scan(&source, &nanos); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		last[core.Source(source)] = time.Unix(0, nanos).UTC()
	}
	return last, rows.Err()
}

// SaveAnalysis stores the result with its queryable summary columns.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, result core.AnalysisResult) error {
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO analyses
		(id, item_key, computed_at, metrics_json, recommendation, confidence_score,
		 date_range_start, date_range_end, total_points, result_json)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		result.ID, result.Item.Key(), result.ComputedAt.UnixNano(), string(metricsJSON),
		string(result.Recommendation.Action), result.ConfidenceScore,
		result.Metrics.Coverage.Start.Format(core.DateLayout), result.Metrics.Coverage.End.Format(core.DateLayout),
		result.Metrics.TotalPoints, string(resultJSON),
	)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	return nil
}

// LatestAnalysis returns the newest result, or nil when none exists.
func (s *SQLiteStore) LatestAnalysis(ctx context.Context, itemKey string) (*core.AnalysisResult, error) {
	list, err := s.ListAnalyses(ctx, itemKey, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// ListAnalyses returns up to limit results, newest first. A non-positive limit returns all.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, itemKey string, limit int) ([]core.AnalysisResult, error) {
	q := `SELECT result_json FROM analyses WHERE item_key = ? ORDER BY computed_at DESC`
	args := []any{itemKey}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	defer rows.Close()

	var results []core.AnalysisResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		var r core.AnalysisResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
