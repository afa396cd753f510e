package sqlite

import (
	"context"
	"database/sql"

	"github.com/glentner/StreamKit/streamkit/session"
	"github.com/glentner/StreamKit/streamkit/signals"
)

type SessionPool struct {
	db      *sql.DB
	onQuery *signals.Signal[session.QueryEvent]
}

// NewSessionPool wraps an opened sqlite database. The writer lock in
// sqlite is database-wide, so the pool is capped at a single
// connection; workers serialize through it.
func NewSessionPool(db *sql.DB) *SessionPool {
	db.SetMaxOpenConns(1)
	return &SessionPool{
		db:      db,
		onQuery: signals.New[session.QueryEvent](),
	}
}

func (p *SessionPool) OnQuery() *signals.Signal[session.QueryEvent] {
	return p.onQuery
}

func (p *SessionPool) Session(ctx context.Context, callback session.Callback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return callback(NewSession(ctx, p.db, p.onQuery))
}

func (p *SessionPool) Close() {
	p.db.Close()
}
