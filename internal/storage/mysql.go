package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"newspeaker/internal/config"
)

// Store persists resolved links to MySQL.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Link is one captured article and its resolution outcome.
type Link struct {
	Link        string    `json:"link"`
	Title       string    `json:"title"`
	ResolvedURL string    `json:"resolved_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Query       string    `json:"query"`
	Summary     string    `json:"summary,omitempty"`
	BatchID     string    `json:"batch_id"`
}

// NewMySQLStore creates the database (if needed), ensures schema, and returns a ready store.
func NewMySQLStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Store, error) {
	rootDSN := fmt.Sprintf("%s:%s@tcp(%s:%d)/?charset=utf8mb4&parseTime=true&loc=Local", cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort)
	rootDB, err := sql.Open("mysql", rootDSN)
	if err != nil {
		return nil, fmt.Errorf("open root mysql connection: %w", err)
	}
	defer rootDB.Close()
	if err := rootDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping root mysql: %w", err)
	}
	createDB := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", cfg.DBName)
	if _, err := rootDB.ExecContext(ctx, createDB); err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local", cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql with db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql with db: %w", err)
	}

	store := newStore(db, logger)
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.logger.Info("mysql store ready", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return store, nil
}

func newStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("storage")}
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const createTable = `
CREATE TABLE IF NOT EXISTS news_links (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	link VARCHAR(768) NOT NULL UNIQUE,
	title TEXT NOT NULL,
	resolved_url TEXT NULL,
	published_at DATETIME NULL,
	query VARCHAR(255),
	summary TEXT,
	batch_id CHAR(36),
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`
	_, err := s.db.ExecContext(ctx, createTable)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Exists reports whether a link has already been stored.
func (s *Store) Exists(ctx context.Context, link string) (bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT 1 FROM news_links WHERE link = ? LIMIT 1", link)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveLink stores or updates a link. An unresolved link is kept with a NULL
// resolved_url so it is not retried on every poll.
func (s *Store) SaveLink(ctx context.Context, l Link) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO news_links (link, title, resolved_url, published_at, query, summary, batch_id)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	title=VALUES(title),
	resolved_url=VALUES(resolved_url),
	published_at=VALUES(published_at),
	query=VALUES(query),
	summary=VALUES(summary),
	batch_id=VALUES(batch_id),
	updated_at=CURRENT_TIMESTAMP
`, l.Link, l.Title, nullString(l.ResolvedURL), nullTime(l.PublishedAt), l.Query, nullString(l.Summary), l.BatchID)
	if err != nil {
		return fmt.Errorf("save link: %w", err)
	}
	return nil
}

// ListResolved returns the most recent links that have a publisher URL.
func (s *Store) ListResolved(ctx context.Context, limit int) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT link, title, resolved_url, published_at, query, summary, batch_id
FROM news_links
WHERE resolved_url IS NOT NULL
ORDER BY published_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list resolved: %w", err)
	}
	defer rows.Close()

	var items []Link
	for rows.Next() {
		var (
			item     Link
			resolved sql.NullString
			pub      sql.NullTime
			query    sql.NullString
			summary  sql.NullString
			batch    sql.NullString
		)
		if err := rows.Scan(&item.Link, &item.Title, &resolved, &pub, &query, &summary, &batch); err != nil {
			return nil, err
		}
		item.ResolvedURL = resolved.String
		item.Query = query.String
		item.Summary = summary.String
		item.BatchID = batch.String
		if pub.Valid {
			item.PublishedAt = pub.Time
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
