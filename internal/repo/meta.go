package repo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/hazardwatch/edge-next/internal/infra"
	"github.com/hazardwatch/edge-next/internal/model"
)

// SchemaVersion is the current version of the local store layout. Bumping it
// appends a migration step below; steps are additive and never rewrite the
// pending_reports or media_blobs rows that are already queued.
const SchemaVersion = 2

type Meta struct {
	store *infra.Store
}

func NewMeta(store *infra.Store) *Meta {
	return &Meta{store: store}
}

// migrations maps a target schema version to the DDL that brings the
// previous version up to it.
var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS pending_reports (
			report_id    TEXT PRIMARY KEY,
			event_type   TEXT NOT NULL,
			description  TEXT NOT NULL,
			severity     INTEGER NOT NULL,
			lat          REAL NOT NULL,
			lng          REAL NOT NULL,
			created_at   TIMESTAMP NOT NULL,
			has_media    BOOLEAN NOT NULL DEFAULT 0,
			status       TEXT NOT NULL DEFAULT 'pending',
			retryable    BOOLEAN NOT NULL DEFAULT 1,
			retry_count  INTEGER NOT NULL DEFAULT 0,
			last_error   TEXT,
			last_attempt TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_reports_status ON pending_reports(status)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_reports_created ON pending_reports(created_at)`,
		`CREATE TABLE IF NOT EXISTS media_blobs (
			report_id  TEXT PRIMARY KEY,
			payload    BLOB NOT NULL,
			mime_type  TEXT NOT NULL,
			filename   TEXT NOT NULL,
			byte_size  INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	},
	2: {
		`CREATE TABLE IF NOT EXISTS cache_entries (
			cache_class    TEXT NOT NULL,
			cache_key      TEXT NOT NULL,
			status_code    INTEGER NOT NULL,
			headers        BLOB NOT NULL,
			body           BLOB NOT NULL,
			schema_version INTEGER NOT NULL,
			stored_at      TIMESTAMP NOT NULL,
			PRIMARY KEY (cache_class, cache_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_version ON cache_entries(schema_version)`,
	},
}

// Migrate brings the store up to SchemaVersion. Queued reports survive
// upgrades untouched; cache entries written by prior versions are evicted so
// stale response generations do not accumulate across deploys.
func (m *Meta) Migrate(ctx context.Context) error {
	if !m.store.Available() {
		log.Warn().Msg("repo: meta: store unavailable, skipping migration")
		return nil
	}
	db := m.store.DB

	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_meta (id INTEGER PRIMARY KEY CHECK (id = 1), version INTEGER NOT NULL)`); err != nil {
		return errors.Wrap(err, "create schema_meta")
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}
	if current == SchemaVersion {
		return nil
	}

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for v := current + 1; v <= SchemaVersion; v++ {
			for _, ddl := range migrations[v] {
				if _, err := tx.ExecContext(ctx, ddl); err != nil {
					return errors.Wrapf(err, "migrate to schema version %d", v)
				}
			}
			log.Info().Int("version", v).Msg("repo: meta: applied schema migration")
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_meta (id, version) VALUES (1, ?) ON CONFLICT (id) DO UPDATE SET version = excluded.version`,
			SchemaVersion); err != nil {
			return errors.Wrap(err, "record schema version")
		}

		// evict cache generations from prior schema versions
		if current > 0 {
			res, err := tx.NewDelete().
				Model((*model.CacheEntry)(nil)).
				Where("schema_version != ?", SchemaVersion).
				Exec(ctx)
			if err != nil {
				return errors.Wrap(err, "evict stale cache entries")
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				log.Info().Int64("evicted", n).Msg("repo: meta: evicted cache entries of prior schema versions")
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (m *Meta) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.store.DB.QueryRowContext(ctx, `SELECT version FROM schema_meta WHERE id = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read schema version")
	}
	return version, nil
}

// RunMigrations is the fx entrypoint executing Migrate at startup.
func RunMigrations(meta *Meta) error {
	return meta.Migrate(context.Background())
}
