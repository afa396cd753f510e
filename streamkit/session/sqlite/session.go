// Package sqlite implements streamkit sessions over database/sql with
// the modernc.org/sqlite driver. It backs the sqlite backend for
// in-process deployments.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/glentner/StreamKit/streamkit/session"
	"github.com/glentner/StreamKit/streamkit/session/result"
	"github.com/glentner/StreamKit/streamkit/signals"

	_ "modernc.org/sqlite"
)

// Session represents a database session without a transaction.
type Session struct {
	ctx     context.Context
	db      *sql.DB
	onQuery *signals.Signal[session.QueryEvent]
}

func NewSession(ctx context.Context, db *sql.DB, onQuery *signals.Signal[session.QueryEvent]) *Session {
	return &Session{ctx: ctx, db: db, onQuery: onQuery}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Connection() session.Connection {
	return &connection{ctx: s.ctx, exec: s.db, onQuery: s.onQuery}
}

func (s *Session) Atomic(callback session.Callback) error {
	tx, err := s.db.BeginTx(s.ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to start transaction")
	}

	atomicSession := &AtomicSession{ctx: s.ctx, tx: tx, onQuery: s.onQuery}
	if err := callback(atomicSession); err != nil {
		if txErr := tx.Rollback(); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}

	if txErr := tx.Commit(); txErr != nil {
		return errors.Wrap(txErr, "failed to commit transaction")
	}
	return nil
}

// AtomicSession represents a session inside a transaction. SQLite has
// no savepoint support through database/sql Begin, so nested Atomic
// calls run in the enclosing transaction.
type AtomicSession struct {
	ctx     context.Context
	tx      *sql.Tx
	onQuery *signals.Signal[session.QueryEvent]
}

func (s *AtomicSession) Context() context.Context {
	return s.ctx
}

func (s *AtomicSession) Connection() session.Connection {
	return &connection{ctx: s.ctx, exec: s.tx, onQuery: s.onQuery}
}

func (s *AtomicSession) Atomic(callback session.Callback) error {
	return callback(s)
}

// executor is satisfied by *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type connection struct {
	ctx     context.Context
	exec    executor
	onQuery *signals.Signal[session.QueryEvent]
}

// timeLayout is fixed-width so that the stored text compares
// lexicographically in chronological order.
const timeLayout = "2006-01-02 15:04:05.000000000-07:00"

// normalizeArgs binds time values as fixed-width UTC text. The driver's
// own variable-width encoding would break ordered comparisons in SQL.
func normalizeArgs(args []any) []any {
	for i, arg := range args {
		if t, ok := arg.(time.Time); ok {
			args[i] = t.UTC().Format(timeLayout)
		}
	}
	return args
}

func (c *connection) notify(query string, args []any, start time.Time, err error) {
	c.onQuery.Notify(session.QueryEvent{
		Query:   query,
		Args:    args,
		Elapsed: time.Since(start),
		Err:     err,
	})
}

func (c *connection) Exec(query string, args ...any) (session.Result, error) {
	start := time.Now()
	args = normalizeArgs(args)
	res, err := c.exec.ExecContext(c.ctx, query, args...)
	c.notify(query, args, start, err)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	affected, _ := res.RowsAffected()
	return result.New(id, affected), nil
}

func (c *connection) Query(query string, args ...any) (session.Rows, error) {
	start := time.Now()
	args = normalizeArgs(args)
	rows, err := c.exec.QueryContext(c.ctx, query, args...)
	c.notify(query, args, start, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *connection) QueryRow(query string, args ...any) session.Row {
	start := time.Now()
	args = normalizeArgs(args)
	row := c.exec.QueryRowContext(c.ctx, query, args...)
	c.notify(query, args, start, nil)
	return &rowAdapter{row: row}
}

// rowAdapter maps sql.ErrNoRows to the shared sentinel.
type rowAdapter struct {
	row *sql.Row
	err error
}

func (r *rowAdapter) Err() error {
	return r.err
}

func (r *rowAdapter) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if err == sql.ErrNoRows {
		err = session.ErrNoRows
	}
	if r.err == nil {
		r.err = err
	}
	return err
}
