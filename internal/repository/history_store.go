package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/domain/repository"
	"WindowEdge/pkg/cache"
)

// CacheHistoryStore keeps each asset's history as one JSON value in a cache
// service (Redis in production, MemoryCache for the memory backend).
type CacheHistoryStore struct {
	cache  cache.Service
	prefix string
}

func NewCacheHistoryStore(c cache.Service, prefix string) *CacheHistoryStore {
	return &CacheHistoryStore{cache: c, prefix: prefix}
}

func (s *CacheHistoryStore) Load(ctx context.Context) (map[string][]models.PricePoint, error) {
	keys, err := s.cache.Keys(ctx, cache.BuildPattern(s.prefix))
	if err != nil {
		return nil, fmt.Errorf("list history keys: %w", err)
	}
	out := make(map[string][]models.PricePoint, len(keys))
	for _, k := range keys {
		var pts []models.PricePoint
		if err := s.cache.Get(ctx, k, &pts); err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		out[strings.TrimPrefix(k, s.prefix+":")] = pts
	}
	return out, nil
}

func (s *CacheHistoryStore) Save(ctx context.Context, asset string, history []models.PricePoint) error {
	if err := s.cache.Set(ctx, cache.GenerateKey(s.prefix, strings.ToUpper(asset)), history, 0); err != nil {
		return fmt.Errorf("write history %s: %w", asset, err)
	}
	return nil
}

// Close is a no-op; the cache is owned by whoever created it.
func (s *CacheHistoryStore) Close() error { return nil }

// SQLiteHistoryStore keeps one row per (asset, sample) in a local SQLite file.
type SQLiteHistoryStore struct {
	db *sql.DB
}

// NewSQLiteHistoryStore opens (creating if needed) the database at path.
func NewSQLiteHistoryStore(ctx context.Context, path string) (*SQLiteHistoryStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS price_history (
		asset TEXT NOT NULL,
		ts INTEGER NOT NULL,
		price REAL NOT NULL,
		PRIMARY KEY (asset, ts)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteHistoryStore{db: db}, nil
}

func (s *SQLiteHistoryStore) Load(ctx context.Context) (map[string][]models.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT asset, ts, price FROM price_history ORDER BY asset, ts`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.PricePoint)
	for rows.Next() {
		var (
			asset string
			ms    int64
			price float64
		)
		if err := rows.Scan(&asset, &ms, &price); err != nil {
			return nil, err
		}
		out[asset] = append(out[asset], models.PricePoint{Timestamp: time.UnixMilli(ms).UTC(), Price: price})
	}
	return out, rows.Err()
}

// Save replaces the asset's rows in one transaction.
func (s *SQLiteHistoryStore) Save(ctx context.Context, asset string, history []models.PricePoint) (err error) {
	asset = strings.ToUpper(asset)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM price_history WHERE asset = ?`, asset); err != nil {
		return fmt.Errorf("clear history %s: %w", asset, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO price_history (asset, ts, price) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, p := range history {
		if _, err = stmt.ExecContext(ctx, asset, p.Timestamp.UnixMilli(), p.Price); err != nil {
			return fmt.Errorf("insert history %s: %w", asset, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteHistoryStore) Close() error { return s.db.Close() }

var (
	_ repository.HistoryStore = (*CacheHistoryStore)(nil)
	_ repository.HistoryStore = (*SQLiteHistoryStore)(nil)
)
