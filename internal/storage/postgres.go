package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"popup-engine/internal/config"
	"popup-engine/internal/kv"
)

const notifyChannel = "popup_campaigns_changed"

var ErrNoPool = errors.New("storage: postgres pool not initialized")

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg config.Config) (*Postgres, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the campaign and frequency tables plus the change
// notification trigger the listener subscribes to.
func (s *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS popup_campaigns (
			id            TEXT PRIMARY KEY,
			position      INTEGER NOT NULL DEFAULT 0,
			trigger_kind  TEXT NOT NULL,
			trigger_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			frequency     TEXT NOT NULL DEFAULT 'always',
			title         TEXT NOT NULL DEFAULT '',
			body          TEXT NOT NULL DEFAULT '',
			media_url     TEXT NOT NULL DEFAULT '',
			cta_label     TEXT NOT NULL DEFAULT '',
			cta_url       TEXT NOT NULL DEFAULT '',
			email_capture BOOLEAN NOT NULL DEFAULT FALSE,
			is_active     BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS popup_frequency (
			viewer_id  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (viewer_id, key)
		)`,
		`CREATE OR REPLACE FUNCTION popup_campaigns_notify() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('` + notifyChannel + `', '');
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS popup_campaigns_changed ON popup_campaigns`,
		`CREATE TRIGGER popup_campaigns_changed
			AFTER INSERT OR UPDATE OR DELETE ON popup_campaigns
			FOR EACH STATEMENT EXECUTE FUNCTION popup_campaigns_notify()`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// LoadActiveCampaigns loads all active campaigns in display order.
func (s *Postgres) LoadActiveCampaigns(ctx context.Context) ([]CampaignRow, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectActiveCampaigns)
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
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Frequency returns the durable bucket for one viewer.
func (s *Postgres) Frequency(viewerID string) kv.Bucket {
	return &pgBucket{pool: s.pool, viewer: viewerID}
}

func (s *Postgres) ListenChannel() string {
	return notifyChannel
}

// Acquire checks out a dedicated connection, e.g. for LISTEN.
func (s *Postgres) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if s.pool == nil {
		return nil, ErrNoPool
	}
	return s.pool.Acquire(ctx)
}

type pgBucket struct {
	pool   *pgxpool.Pool
	viewer string
}

func (b *pgBucket) Get(ctx context.Context, key string) (string, bool, error) {
	if b.pool == nil {
		return "", false, kv.ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var v string
	err := b.pool.QueryRow(ctx,
		`SELECT value FROM popup_frequency WHERE viewer_id = $1 AND key = $2`, b.viewer, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read frequency %s: %w", key, err)
	}
	return v, true, nil
}

func (b *pgBucket) Set(ctx context.Context, key, value string) error {
	if b.pool == nil {
		return kv.ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := b.pool.Exec(ctx, `
		INSERT INTO popup_frequency (viewer_id, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (viewer_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, b.viewer, key, value)
	if err != nil {
		return fmt.Errorf("write frequency %s: %w", key, err)
	}
	return nil
}
