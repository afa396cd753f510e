// Package database opens the configured backend and bundles the
// handles every layer needs: the session pool, the resolved table
// names, the key interner, and the logger.
package database

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/glentner/StreamKit/streamkit/config"
	"github.com/glentner/StreamKit/streamkit/keys"
	"github.com/glentner/StreamKit/streamkit/schema"
	"github.com/glentner/StreamKit/streamkit/session"
	pgsession "github.com/glentner/StreamKit/streamkit/session/pg"
	sqlitesession "github.com/glentner/StreamKit/streamkit/session/sqlite"
)

type DB struct {
	Pool  session.Pool
	Names schema.Names
	Keys  *keys.Interner
	Log   *zap.Logger

	backend    config.Backend
	schemaName string
}

// Connect validates the database configuration, opens the backend, and
// wires query-event debug logging. The logger may be nil.
func Connect(ctx context.Context, cfg config.Database, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var pool session.Pool
	schemaName := cfg.Schema
	switch {
	case cfg.Backend == config.SQLite:
		// sqlite has no schema namespaces; tables are unqualified.
		schemaName = ""
		db, err := sql.Open("sqlite", cfg.Database)
		if err != nil {
			return nil, config.Errorf("sqlite: %v", err)
		}
		pool = sqlitesession.NewSessionPool(db)
	default:
		url, err := cfg.URL()
		if err != nil {
			return nil, err
		}
		pgcfg, err := pgxpool.ParseConfig(url)
		if err != nil {
			return nil, config.Errorf("bad URL %q: %v", url, err)
		}
		pgpool, err := pgxpool.NewWithConfig(ctx, pgcfg)
		if err != nil {
			return nil, config.Errorf("cannot open pool: %v", err)
		}
		pool = pgsession.NewSessionPool(pgpool)
	}

	names := schema.For(schemaName)
	db := &DB{
		Pool:       pool,
		Names:      names,
		Keys:       keys.New(names),
		Log:        log,
		backend:    cfg.Backend,
		schemaName: schemaName,
	}

	pool.OnQuery().Attach(func(event session.QueryEvent) {
		if event.Err != nil {
			log.Debug("query failed",
				zap.String("sql", event.Query),
				zap.Duration("elapsed", event.Elapsed),
				zap.Error(event.Err))
			return
		}
		log.Debug("query",
			zap.String("sql", event.Query),
			zap.Duration("elapsed", event.Elapsed))
	})

	return db, nil
}

// Init creates all tables and indexes; it does nothing when they
// already exist.
func (db *DB) Init(ctx context.Context) error {
	err := db.Pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			for _, statement := range schema.DDL(db.backend, db.schemaName) {
				if _, err := tx.Connection().Exec(statement); err != nil {
					return err
				}
			}
			return nil
		})
	})
	return session.Storage("init", err)
}

func (db *DB) Backend() config.Backend { return db.backend }

func (db *DB) Close() {
	db.Pool.Close()
}
