// Package testutils provides a scripted session stub for unit tests
// and helpers for opening live test databases.
package testutils

import (
	"context"
	"errors"
	"time"

	"github.com/glentner/StreamKit/streamkit/session"
	"github.com/glentner/StreamKit/streamkit/session/result"
	"github.com/glentner/StreamKit/streamkit/signals"
)

// NewPoolStub builds a session pool whose queries are answered from
// the scripted result sets, in order. Once the script is exhausted,
// further queries see no rows.
func NewPoolStub(results ...*RowsStub) *PoolStub {
	return &PoolStub{results: results}
}

type PoolStub struct {
	Queries []string
	Params  [][]any
	ExecErr error

	results []*RowsStub
	onQuery *signals.Signal[session.QueryEvent]
}

func (p *PoolStub) OnQuery() *signals.Signal[session.QueryEvent] {
	if p.onQuery == nil {
		p.onQuery = signals.New[session.QueryEvent]()
	}
	return p.onQuery
}

func (p *PoolStub) Session(ctx context.Context, callback session.Callback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return callback(&SessionStub{ctx: ctx, pool: p})
}

func (p *PoolStub) Close() {}

func (p *PoolStub) record(query string, args []any) {
	p.Queries = append(p.Queries, query)
	p.Params = append(p.Params, args)
}

func (p *PoolStub) next() *RowsStub {
	if len(p.results) == 0 {
		return NewRowsStub()
	}
	rows := p.results[0]
	p.results = p.results[1:]
	return rows
}

type SessionStub struct {
	ctx  context.Context
	pool *PoolStub
}

func (s *SessionStub) Context() context.Context {
	return s.ctx
}

func (s *SessionStub) Atomic(callback session.Callback) error {
	return callback(s)
}

func (s *SessionStub) Connection() session.Connection {
	return &connectionStub{session: s}
}

type connectionStub struct {
	session *SessionStub
}

func (c *connectionStub) Exec(query string, args ...any) (session.Result, error) {
	c.session.pool.record(query, args)
	if err := c.session.pool.ExecErr; err != nil {
		return nil, err
	}
	return result.New(0, 1), nil
}

func (c *connectionStub) Query(query string, args ...any) (session.Rows, error) {
	c.session.pool.record(query, args)
	return c.session.pool.next(), nil
}

func (c *connectionStub) QueryRow(query string, args ...any) session.Row {
	c.session.pool.record(query, args)
	return &RowStub{rows: c.session.pool.next()}
}

func NewRowsStub(rows ...[]any) *RowsStub {
	return &RowsStub{rows: rows, idx: -1}
}

type RowsStub struct {
	rows   [][]any
	idx    int
	Closed bool
}

func (r *RowsStub) Close() error {
	r.Closed = true
	return nil
}

func (r *RowsStub) Err() error {
	return nil
}

func (r *RowsStub) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *RowsStub) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return errors.New("no current row")
	}

	row := r.rows[r.idx]
	for i, val := range row {
		if i >= len(dest) {
			break
		}
		switch d := dest[i].(type) {
		case *int:
			*d = int(toInt64(val))
		case *int64:
			*d = toInt64(val)
		case *string:
			*d = val.(string)
		case *bool:
			*d = val.(bool)
		case *time.Time:
			*d = val.(time.Time)
		case *float64:
			*d = val.(float64)
		default:
			return errors.New("unsupported scan type")
		}
	}
	return nil
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	default:
		panic("cannot convert to int64")
	}
}

// RowStub adapts a RowsStub to single-row reads, reporting the shared
// no-rows sentinel when the script has nothing left.
type RowStub struct {
	rows *RowsStub
}

func (r *RowStub) Err() error {
	return nil
}

func (r *RowStub) Scan(dest ...any) error {
	if !r.rows.Next() {
		return session.ErrNoRows
	}
	return r.rows.Scan(dest...)
}
