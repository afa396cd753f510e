package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glentner/StreamKit/streamkit/session"
	"github.com/glentner/StreamKit/streamkit/signals"
)

type SessionPool struct {
	pool    *pgxpool.Pool
	onQuery *signals.Signal[session.QueryEvent]
}

func NewSessionPool(pool *pgxpool.Pool) *SessionPool {
	return &SessionPool{
		pool:    pool,
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

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return callback(NewSession(ctx, conn, p.onQuery))
}

func (p *SessionPool) Close() {
	p.pool.Close()
}
