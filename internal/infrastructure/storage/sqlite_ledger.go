// Package storage implements the identity ledger on SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"InfoSpider/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	content_type     TEXT NOT NULL,
	identity         TEXT NOT NULL,
	title            TEXT NOT NULL,
	url              TEXT NOT NULL DEFAULT '',
	source_name      TEXT NOT NULL DEFAULT '',
	published_at     TEXT,
	summary          TEXT NOT NULL DEFAULT '',
	matched_keywords TEXT NOT NULL DEFAULT '{}',
	extra            TEXT NOT NULL DEFAULT '{}',
	delivery_state   TEXT NOT NULL DEFAULT 'stored',
	first_seen_at    TEXT NOT NULL,
	delivered_at     TEXT,
	UNIQUE (content_type, identity)
);
CREATE INDEX IF NOT EXISTS idx_records_state ON records (content_type, delivery_state);
`

// SQLiteLedger persists records and their delivery state in a local SQLite
// database. A single pipeline process owns the file at a time.
type SQLiteLedger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open creates the database file (and parent directory) if needed and applies
// the schema.
func Open(path string, logger *slog.Logger) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteLedger{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Ping verifies the database is reachable.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// Upsert stores a record under its identity. A re-seen identity refreshes
// title, summary and matched keywords but never touches delivery state, so a
// delivered record stays delivered. Reports whether a new row was inserted.
func (l *SQLiteLedger) Upsert(ctx context.Context, rec domain.Record) (bool, error) {
	if rec.Identity == "" {
		return false, fmt.Errorf("record %q has no identity", rec.Title)
	}

	matched, err := json.Marshal(rec.Matched)
	if err != nil {
		return false, fmt.Errorf("encoding matched keywords: %w", err)
	}
	extra, err := json.Marshal(rec.Extra)
	if err != nil {
		return false, fmt.Errorf("encoding extra fields: %w", err)
	}

	var exists int
	query, args, err := sq.Select("COUNT(1)").
		From("records").
		Where(sq.Eq{"content_type": rec.ContentType, "identity": rec.Identity}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building existence query: %w", err)
	}
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking identity %s: %w", rec.Identity, err)
	}

	if exists > 0 {
		query, args, err := sq.Update("records").
			Set("title", rec.Title).
			Set("summary", rec.Summary).
			Set("matched_keywords", string(matched)).
			Where(sq.Eq{"content_type": rec.ContentType, "identity": rec.Identity}).
			ToSql()
		if err != nil {
			return false, fmt.Errorf("building refresh query: %w", err)
		}
		if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
			return false, fmt.Errorf("refreshing identity %s: %w", rec.Identity, err)
		}
		return false, nil
	}

	firstSeen := rec.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = l.now().UTC()
	}

	query, args, err = sq.Insert("records").
		Columns("content_type", "identity", "title", "url", "source_name",
			"published_at", "summary", "matched_keywords", "extra",
			"delivery_state", "first_seen_at").
		Values(rec.ContentType, rec.Identity, rec.Title, rec.URL, rec.SourceName,
			encodeTime(rec.PublishedAt), rec.Summary, string(matched), string(extra),
			domain.StateStored, firstSeen.Format(time.RFC3339)).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building insert query: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("inserting identity %s: %w", rec.Identity, err)
	}
	return true, nil
}

// SelectUndelivered returns up to limit stored records of one content type,
// oldest first so backlog drains in arrival order.
func (l *SQLiteLedger) SelectUndelivered(ctx context.Context, ct domain.ContentType, limit int) ([]domain.Record, error) {
	builder := sq.Select(recordColumns...).
		From("records").
		Where(sq.Eq{"content_type": ct, "delivery_state": domain.StateStored}).
		OrderBy("first_seen_at ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return l.queryRecords(ctx, builder)
}

// MarkDelivered transitions the given identities from stored to delivered.
// Identities already delivered or unknown are left untouched, which makes the
// call safe to repeat.
func (l *SQLiteLedger) MarkDelivered(ctx context.Context, ct domain.ContentType, identities []string, at time.Time) error {
	if len(identities) == 0 {
		return nil
	}

	query, args, err := sq.Update("records").
		Set("delivery_state", domain.StateDelivered).
		Set("delivered_at", at.UTC().Format(time.RFC3339)).
		Where(sq.Eq{
			"content_type":   ct,
			"identity":       identities,
			"delivery_state": domain.StateStored,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delivery update: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("marking %d records delivered: %w", len(identities), err)
	}
	return nil
}

// ListRecent returns the newest records of one content type for the archive,
// regardless of delivery state.
func (l *SQLiteLedger) ListRecent(ctx context.Context, ct domain.ContentType, limit int) ([]domain.Record, error) {
	builder := sq.Select(recordColumns...).
		From("records").
		Where(sq.Eq{"content_type": ct}).
		OrderBy("first_seen_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return l.queryRecords(ctx, builder)
}

var recordColumns = []string{
	"content_type", "identity", "title", "url", "source_name",
	"published_at", "summary", "matched_keywords", "extra",
	"delivery_state", "first_seen_at", "delivered_at",
}

func (l *SQLiteLedger) queryRecords(ctx context.Context, builder sq.SelectBuilder) ([]domain.Record, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (domain.Record, error) {
	var (
		rec         domain.Record
		publishedAt sql.NullString
		deliveredAt sql.NullString
		matched     string
		extra       string
		firstSeen   string
	)

	err := rows.Scan(&rec.ContentType, &rec.Identity, &rec.Title, &rec.URL,
		&rec.SourceName, &publishedAt, &rec.Summary, &matched, &extra,
		&rec.State, &firstSeen, &deliveredAt)
	if err != nil {
		return domain.Record{}, fmt.Errorf("scanning record row: %w", err)
	}

	if matched != "" && matched != "null" {
		if err := json.Unmarshal([]byte(matched), &rec.Matched); err != nil {
			return domain.Record{}, fmt.Errorf("decoding matched keywords for %s: %w", rec.Identity, err)
		}
	}
	if extra != "" && extra != "null" {
		if err := json.Unmarshal([]byte(extra), &rec.Extra); err != nil {
			return domain.Record{}, fmt.Errorf("decoding extra fields for %s: %w", rec.Identity, err)
		}
	}

	rec.PublishedAt = decodeTime(publishedAt)
	rec.DeliveredAt = decodeTime(deliveredAt)
	if t, err := time.Parse(time.RFC3339, firstSeen); err == nil {
		rec.FirstSeenAt = t
	}

	return rec, nil
}

func encodeTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}
