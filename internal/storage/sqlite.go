package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"popup-engine/internal/kv"
)

// SQLite is the embedded backend for single-node deployments.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS popup_campaigns (
			id            TEXT PRIMARY KEY,
			position      INTEGER NOT NULL DEFAULT 0,
			trigger_kind  TEXT NOT NULL,
			trigger_value REAL NOT NULL DEFAULT 0,
			frequency     TEXT NOT NULL DEFAULT 'always',
			title         TEXT NOT NULL DEFAULT '',
			body          TEXT NOT NULL DEFAULT '',
			media_url     TEXT NOT NULL DEFAULT '',
			cta_label     TEXT NOT NULL DEFAULT '',
			cta_url       TEXT NOT NULL DEFAULT '',
			email_capture INTEGER NOT NULL DEFAULT 0,
			is_active     INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS popup_frequency (
			viewer_id  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (viewer_id, key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *SQLite) DB() *sql.DB { return s.db }

// UpsertCampaign stores a campaign definition; used by seeding and tests.
func (s *SQLite) UpsertCampaign(ctx context.Context, position int, r CampaignRow) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO popup_campaigns(id, position, trigger_kind, trigger_value, frequency, title, body, media_url, cta_label, cta_url, email_capture, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	position=excluded.position,
	trigger_kind=excluded.trigger_kind,
	trigger_value=excluded.trigger_value,
	frequency=excluded.frequency,
	title=excluded.title,
	body=excluded.body,
	media_url=excluded.media_url,
	cta_label=excluded.cta_label,
	cta_url=excluded.cta_url,
	email_capture=excluded.email_capture,
	is_active=excluded.is_active`,
		r.ID, position, r.TriggerKind, r.TriggerValue, r.Frequency, r.Title, r.Body,
		r.MediaURL, r.CTALabel, r.CTAURL, r.EmailCapture, r.IsActive)
	if err != nil {
		return fmt.Errorf("upsert campaign %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLite) LoadActiveCampaigns(ctx context.Context) ([]CampaignRow, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, selectActiveCampaigns)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []CampaignRow
	for rows.Next() {
		var r CampaignRow
		if err := rows.Scan(&r.ID, &r.TriggerKind, &r.TriggerValue, &r.Frequency,
			&r.Title, &r.Body, &r.MediaURL, &r.CTALabel, &r.CTAURL, &r.EmailCapture, &r.IsActive); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Frequency(viewerID string) kv.Bucket {
	return &sqliteBucket{db: s.db, viewer: viewerID}
}

type sqliteBucket struct {
	db     *sql.DB
	viewer string
}

func (b *sqliteBucket) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM popup_frequency WHERE viewer_id = ? AND key = ?`, b.viewer, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read frequency %s: %w", key, err)
	}
	return v, true, nil
}

func (b *sqliteBucket) Set(ctx context.Context, key, value string) error {
	_, err := b.db.ExecContext(ctx, `
INSERT INTO popup_frequency(viewer_id, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(viewer_id, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		b.viewer, key, value, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("write frequency %s: %w", key, err)
	}
	return nil
}
