package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"gazette_bot/internal/model"
	"gazette_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases whole.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetSubscriber returns the subscriber of chatID with its keywords in order,
// or ErrNotFound.
func (s *SQLite) GetSubscriber(ctx context.Context, chatID int64) (*model.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, opted_in, created_at, updated_at FROM subscribers WHERE chat_id = ?`, chatID,
	)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	kws, err := s.keywords(ctx, chatID)
	if err != nil {
		return nil, err
	}
	sub.Keywords = kws[chatID]
	if sub.Keywords == nil {
		sub.Keywords = []string{}
	}
	return sub, nil
}

// SaveSubscriber writes the whole record, replacing the stored keyword set.
// CreatedAt and UpdatedAt are populated.
func (s *SQLite) SaveSubscriber(ctx context.Context, sub *model.Subscriber) error {
	now := s.now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscribers (chat_id, opted_in, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (chat_id) DO UPDATE SET opted_in = excluded.opted_in, updated_at = excluded.updated_at`,
		sub.ChatID, boolToInt(sub.OptedIn), sub.CreatedAt.UTC().Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriber_keywords WHERE chat_id = ?`, sub.ChatID); err != nil {
		return fmt.Errorf("delete keywords: %w", err)
	}
	for i, kw := range sub.Keywords {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO subscriber_keywords (chat_id, position, keyword) VALUES (?, ?, ?)`,
			sub.ChatID, i, kw,
		)
		if err != nil {
			return fmt.Errorf("insert keyword: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	sub.UpdatedAt, _ = time.Parse(timeLayout, now.Format(timeLayout))
	sub.CreatedAt, _ = time.Parse(timeLayout, sub.CreatedAt.UTC().Format(timeLayout))
	return nil
}

// ListSubscribers returns subscribers ordered by chat ID, optionally only
// those opted in to broadcasts.
func (s *SQLite) ListSubscribers(ctx context.Context, optedInOnly bool) ([]model.Subscriber, error) {
	query := `SELECT chat_id, opted_in, created_at, updated_at FROM subscribers`
	if optedInOnly {
		query += ` WHERE opted_in = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	_ = rows.Close()

	kws, err := s.keywords(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Keywords = kws[subs[i].ChatID]
		if subs[i].Keywords == nil {
			subs[i].Keywords = []string{}
		}
	}
	return subs, nil
}

// keywords loads keyword sets grouped by chat, for one chat or all when
// chatID is zero.
func (s *SQLite) keywords(ctx context.Context, chatID int64) (map[int64][]string, error) {
	query := `SELECT chat_id, keyword FROM subscriber_keywords`
	var args []any
	if chatID != 0 {
		query += ` WHERE chat_id = ?`
		args = append(args, chatID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY chat_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64][]string)
	for rows.Next() {
		var id int64
		var kw string
		if err := rows.Scan(&id, &kw); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		out[id] = append(out[id], kw)
	}
	return out, rows.Err()
}

// MarkBroadcast records that the scheduled broadcast of an edition was sent.
func (s *SQLite) MarkBroadcast(ctx context.Context, edition int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO broadcasts (edition_number, sent_at) VALUES (?, ?)`,
		edition, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("mark broadcast: %w", err)
	}
	return nil
}

// WasBroadcast reports whether the broadcast of an edition was already sent.
func (s *SQLite) WasBroadcast(ctx context.Context, edition int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM broadcasts WHERE edition_number = ?`, edition,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check broadcast: %w", err)
	}
	return count > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scannable) (*model.Subscriber, error) {
	var sub model.Subscriber
	var optedIn int
	var created, updated string
	err := row.Scan(&sub.ChatID, &optedIn, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscriber: %w", err)
	}
	sub.OptedIn = optedIn == 1
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	sub.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &sub, nil
}
