// Package pg implements streamkit sessions over a pgx/v5 connection
// pool. It backs the postgres and timescale database backends.
package pg

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/glentner/StreamKit/streamkit/session"
	"github.com/glentner/StreamKit/streamkit/session/result"
	"github.com/glentner/StreamKit/streamkit/signals"
)

// Session represents a database session without a transaction.
type Session struct {
	ctx     context.Context
	conn    executor
	onQuery *signals.Signal[session.QueryEvent]
}

func NewSession(ctx context.Context, conn executor, onQuery *signals.Signal[session.QueryEvent]) *Session {
	return &Session{ctx: ctx, conn: conn, onQuery: onQuery}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Connection() session.Connection {
	return &connection{ctx: s.ctx, exec: s.conn, onQuery: s.onQuery}
}

func (s *Session) Atomic(callback session.Callback) error {
	tx, err := s.conn.Begin(s.ctx)
	if err != nil {
		return errors.Wrap(err, "unable to start transaction")
	}

	atomicSession := &AtomicSession{ctx: s.ctx, tx: tx, onQuery: s.onQuery}
	if err := callback(atomicSession); err != nil {
		if txErr := tx.Rollback(s.ctx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}

	if txErr := tx.Commit(s.ctx); txErr != nil {
		return errors.Wrap(txErr, "failed to commit transaction")
	}
	return nil
}

// AtomicSession represents a session inside a transaction. Nested
// Atomic calls become savepoints.
type AtomicSession struct {
	ctx     context.Context
	tx      pgx.Tx
	onQuery *signals.Signal[session.QueryEvent]
}

func (s *AtomicSession) Context() context.Context {
	return s.ctx
}

func (s *AtomicSession) Connection() session.Connection {
	return &connection{ctx: s.ctx, exec: s.tx, onQuery: s.onQuery}
}

func (s *AtomicSession) Atomic(callback session.Callback) error {
	nestedTx, err := s.tx.Begin(s.ctx)
	if err != nil {
		return errors.Wrap(err, "unable to start savepoint")
	}

	atomicSession := &AtomicSession{ctx: s.ctx, tx: nestedTx, onQuery: s.onQuery}
	if err := callback(atomicSession); err != nil {
		if txErr := nestedTx.Rollback(s.ctx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}

	if txErr := nestedTx.Commit(s.ctx); txErr != nil {
		return errors.Wrap(txErr, "failed to commit savepoint")
	}
	return nil
}

// executor is satisfied by *pgxpool.Conn and pgx.Tx.
type executor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

type connection struct {
	ctx     context.Context
	exec    executor
	onQuery *signals.Signal[session.QueryEvent]
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

	var r session.Result
	var err error
	if isReturningInsert(query) {
		r, err = c.insert(query, args...)
	} else {
		var tag pgconn.CommandTag
		tag, err = c.exec.Exec(c.ctx, query, args...)
		if err == nil {
			r = result.New(0, tag.RowsAffected())
		}
	}

	c.notify(query, args, start, err)
	return r, err
}

// insert handles INSERT ... RETURNING id by reading back the assigned key.
func (c *connection) insert(query string, args ...any) (session.Result, error) {
	var id int64
	if err := c.exec.QueryRow(c.ctx, query, args...).Scan(&id); err != nil {
		return nil, err
	}
	return result.New(id, 0), nil
}

func (c *connection) Query(query string, args ...any) (session.Rows, error) {
	start := time.Now()
	rows, err := c.exec.Query(c.ctx, query, args...)
	c.notify(query, args, start, err)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows: rows}, nil
}

func (c *connection) QueryRow(query string, args ...any) session.Row {
	start := time.Now()
	row := c.exec.QueryRow(c.ctx, query, args...)
	c.notify(query, args, start, nil)
	return &rowAdapter{row: row}
}

func isReturningInsert(query string) bool {
	return strings.Contains(strings.ToUpper(query), "RETURNING")
}
