package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection
func Open(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// EnsureSchema creates the durable collections and their indexes
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS keywords (
	id                   BIGSERIAL PRIMARY KEY,
	term                 TEXT NOT NULL UNIQUE,
	search_count         INTEGER NOT NULL DEFAULT 0,
	trending             BOOLEAN NOT NULL DEFAULT FALSE,
	sentiment_positive   INTEGER NOT NULL DEFAULT 0,
	sentiment_negative   INTEGER NOT NULL DEFAULT 0,
	sentiment_neutral    INTEGER NOT NULL DEFAULT 0,
	sentiment_total      INTEGER NOT NULL DEFAULT 0,
	volume               INTEGER NOT NULL DEFAULT 0,
	growth               DOUBLE PRECISION NOT NULL DEFAULT 0,
	related_terms        JSONB NOT NULL DEFAULT '[]',
	top_channels         JSONB NOT NULL DEFAULT '[]',
	channels             JSONB NOT NULL DEFAULT '[]',
	last_fetched         TIMESTAMPTZ,
	next_scheduled_fetch TIMESTAMPTZ,
	fetch_status         TEXT NOT NULL DEFAULT 'pending',
	is_active            BOOLEAN NOT NULL DEFAULT TRUE,
	auto_fetch           BOOLEAN NOT NULL DEFAULT TRUE,
	fetch_interval_hours INTEGER NOT NULL DEFAULT 24,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_keywords_due
	ON keywords (next_scheduled_fetch)
	WHERE is_active AND auto_fetch;

CREATE TABLE IF NOT EXISTS feed_items (
	id             BIGSERIAL PRIMARY KEY,
	kind           TEXT NOT NULL CHECK (kind IN ('post', 'comment')),
	external_id    TEXT NOT NULL,
	parent_id      TEXT NOT NULL DEFAULT '',
	author         TEXT NOT NULL DEFAULT '',
	channel        TEXT NOT NULL DEFAULT '',
	title          TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL DEFAULT '',
	permalink      TEXT NOT NULL DEFAULT '',
	source_score   INTEGER,
	keyword        TEXT NOT NULL,
	analysis       JSONB,
	weighted_score INTEGER NOT NULL DEFAULT 0,
	process_status TEXT NOT NULL DEFAULT 'pending',
	attempts       INTEGER NOT NULL DEFAULT 0,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	published_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (kind, external_id, keyword)
);

CREATE INDEX IF NOT EXISTS idx_feed_items_keyword ON feed_items (keyword);
CREATE INDEX IF NOT EXISTS idx_feed_items_channel ON feed_items (channel);
CREATE INDEX IF NOT EXISTS idx_feed_items_score ON feed_items (weighted_score DESC);
`
