package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glentner/StreamKit/streamkit/session"
)

func newPool(t *testing.T) *SessionPool {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	pool := NewSessionPool(db)
	t.Cleanup(pool.Close)

	err = pool.Session(context.Background(), func(s session.Session) error {
		_, err := s.Connection().Exec(`
			CREATE TABLE events (id INTEGER PRIMARY KEY, at TIMESTAMP NOT NULL, note TEXT NOT NULL)
		`)
		return err
	})
	require.NoError(t, err)
	return pool
}

func TestTimeRoundTripPreservesOrder(t *testing.T) {
	pool := newPool(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 500_000_000, time.UTC)
	times := []time.Time{
		base.Add(time.Nanosecond), // fraction longer than the base
		base,
		base.Add(-time.Second),
	}

	err := pool.Session(context.Background(), func(s session.Session) error {
		for i, at := range times {
			if _, err := s.Connection().Exec(
				`INSERT INTO events (at, note) VALUES ($1, $2)`, at, string(rune('a'+i))); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var got []time.Time
	err = pool.Session(context.Background(), func(s session.Session) error {
		rows, err := s.Connection().Query(`SELECT at FROM events ORDER BY at ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var at time.Time
			if err := rows.Scan(&at); err != nil {
				return err
			}
			got = append(got, at)
		}
		return rows.Err()
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(times[2]))
	assert.True(t, got[1].Equal(times[1]))
	assert.True(t, got[2].Equal(times[0]))
}

func TestAtomicRollsBackOnError(t *testing.T) {
	pool := newPool(t)
	boom := errors.New("boom")

	err := pool.Session(context.Background(), func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			if _, err := tx.Connection().Exec(
				`INSERT INTO events (at, note) VALUES ($1, $2)`, time.Now().UTC(), "x"); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	err = pool.Session(context.Background(), func(s session.Session) error {
		var count int
		if err := s.Connection().QueryRow(`SELECT count(*) FROM events`).Scan(&count); err != nil {
			return err
		}
		assert.Zero(t, count)
		return nil
	})
	require.NoError(t, err)
}

func TestQueryRowNoRows(t *testing.T) {
	pool := newPool(t)
	err := pool.Session(context.Background(), func(s session.Session) error {
		var note string
		return s.Connection().QueryRow(`SELECT note FROM events WHERE id = $1`, 99).Scan(&note)
	})
	require.ErrorIs(t, err, session.ErrNoRows)
}
