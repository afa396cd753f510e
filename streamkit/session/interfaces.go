// Package session defines the database session contracts shared by the
// postgres and sqlite backends. Sessions are scoped per worker through
// Pool.Session and are never shared between goroutines.
package session

import (
	"context"
	"time"

	"github.com/glentner/StreamKit/streamkit/signals"
)

type Callback func(Session) error

// Session is a connection-scoped handle. Atomic runs the callback
// inside a transaction: commit on nil, rollback on error.
type Session interface {
	Context() context.Context
	Connection() Connection
	Atomic(Callback) error
}

// Pool hands out sessions bound to a single underlying connection pool.
type Pool interface {
	Session(context.Context, Callback) error
	// OnQuery fires after every executed statement.
	OnQuery() *signals.Signal[QueryEvent]
	Close()
}

type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

type Rows interface {
	Close() error
	Err() error
	Next() bool
	Scan(dest ...any) error
}

type Row interface {
	Err() error
	Scan(dest ...any) error
}

type Connection interface {
	Exec(query string, args ...any) (Result, error)
	Query(query string, args ...any) (Rows, error)
	QueryRow(query string, args ...any) Row
}

// QueryEvent describes one executed statement.
type QueryEvent struct {
	Query   string
	Args    []any
	Elapsed time.Duration
	Err     error
}
