package infra

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
)

// ErrStoreUnavailable is surfaced by repositories when the embedded database
// could not be opened. The queue degrades to inline-submission-only: nothing
// is silently dropped, the user is told submission requires connectivity.
var ErrStoreUnavailable = errors.New("infra: sqlite store unavailable")

// Store wraps the embedded SQLite database. The agent keeps running when the
// database cannot be opened; Available() then reports false.
type Store struct {
	DB *bun.DB

	err error
}

func SQLite(conf *appconfig.Config) *Store {
	return Open(conf.SqlitePath)
}

// Open opens the SQLite database at path and wraps it in a bun.DB. A failure
// is recorded on the returned Store instead of aborting startup.
func Open(path string) *Store {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	sqldb, err := sql.Open("sqlite3", path+sep+"_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("infra: sqlite: failed to open database, running in degraded queue-less mode")
		return &Store{err: errors.Wrap(err, "open sqlite")}
	}

	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent passes.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Error().Err(err).Str("path", path).Msg("infra: sqlite: failed to ping database, running in degraded queue-less mode")
		return &Store{err: errors.Wrap(err, "ping sqlite")}
	}

	return &Store{DB: db}
}

func (s *Store) Available() bool {
	return s.err == nil && s.DB != nil
}

// Unavailability returns ErrStoreUnavailable annotated with the open error,
// or nil when the store is usable.
func (s *Store) Unavailability() error {
	if s.Available() {
		return nil
	}
	if s.err != nil {
		return errors.Wrap(ErrStoreUnavailable, s.err.Error())
	}
	return ErrStoreUnavailable
}
