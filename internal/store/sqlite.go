package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/resellkit/pricescope/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS watches (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	marketplace_id TEXT NOT NULL,
	title          TEXT,
	last_price     INTEGER NOT NULL DEFAULT 0,
	last_available INTEGER NOT NULL DEFAULT 0,
	checked_at     DATETIME,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS search_history (
	id             TEXT PRIMARY KEY,
	query          TEXT NOT NULL,
	result_count   INTEGER NOT NULL DEFAULT 0,
	cheapest_price INTEGER NOT NULL DEFAULT 0,
	searched_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_watches_source_item ON watches(source, marketplace_id);
CREATE INDEX IF NOT EXISTS idx_watches_checked_at ON watches(checked_at);
CREATE INDEX IF NOT EXISTS idx_search_history_searched_at ON search_history(searched_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AddWatch(ctx context.Context, item model.WatchItem) (*model.WatchItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	if item.CheckedAt.IsZero() {
		item.CheckedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watches (id, source, marketplace_id, title, last_price, last_available, checked_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Source), item.MarketplaceID, item.Title,
		item.LastPrice, boolToInt(item.LastAvailable), item.CheckedAt, item.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert watch")
	}
	return &item, nil
}

func (s *SQLiteStore) GetWatch(ctx context.Context, id string) (*model.WatchItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, marketplace_id, title, last_price, last_available, checked_at, created_at
		 FROM watches WHERE id = ?`, id)
	return scanWatch(row)
}

func (s *SQLiteStore) ListWatches(ctx context.Context, filter WatchFilter) ([]model.WatchItem, error) {
	query := `SELECT id, source, marketplace_id, title, last_price, last_available, checked_at, created_at
		 FROM watches WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if !filter.StaleBefore.IsZero() {
		query += ` AND checked_at < ?`
		args = append(args, filter.StaleBefore.UTC())
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list watches")
	}
	defer rows.Close()

	var items []model.WatchItem
	for rows.Next() {
		item, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list watches rows")
}

func (s *SQLiteStore) UpdateWatchState(ctx context.Context, id string, price int, available bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE watches SET last_price = ?, last_available = ?, checked_at = ? WHERE id = ?`,
		price, boolToInt(available), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update watch %s", id)
	}
	return checkRowsAffected(res, "watch", id)
}

func (s *SQLiteStore) RemoveWatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watches WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove watch %s", id)
	}
	return checkRowsAffected(res, "watch", id)
}

func (s *SQLiteStore) RecordSearch(ctx context.Context, query string, resultCount, cheapestPrice int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (id, query, result_count, cheapest_price, searched_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), query, resultCount, cheapestPrice, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: record search")
}

func (s *SQLiteStore) RecentSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, result_count, cheapest_price, searched_at
		 FROM search_history ORDER BY searched_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent searches")
	}
	defer rows.Close()

	var records []SearchRecord
	for rows.Next() {
		var rec SearchRecord
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.ResultCount, &rec.CheapestPrice, &rec.SearchedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search record")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: recent searches rows")
}

// ErrNotFound is returned when a watch does not exist.
var ErrNotFound = eris.New("store: not found")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatch(row rowScanner) (*model.WatchItem, error) {
	var (
		item      model.WatchItem
		src       string
		available int
	)
	err := row.Scan(&item.ID, &src, &item.MarketplaceID, &item.Title,
		&item.LastPrice, &available, &item.CheckedAt, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan watch")
	}
	item.Source = model.Source(src)
	item.LastAvailable = available != 0
	return &item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
