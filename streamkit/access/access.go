// Package access reads and writes the per-(subscriber, topic) cursor
// used to resume delivery. The stored time is a high-water mark: every
// message at or before it has been handed to the subscriber.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/glentner/StreamKit/streamkit/database"
	"github.com/glentner/StreamKit/streamkit/keys"
	"github.com/glentner/StreamKit/streamkit/session"
)

// InitPolicy selects the starting cursor for a subscriber that has
// never seen a topic.
type InitPolicy int

const (
	// InitEarliest starts at the earliest existing message, replaying
	// the topic's history.
	InitEarliest InitPolicy = iota
	// InitNow starts at the current time, skipping history.
	InitNow
)

// Access is one cursor row.
type Access struct {
	SubscriberID int64
	TopicID      int64
	Time         time.Time
}

// Latest returns the cursor for (subscriber, topic), creating it on
// first reference. A new cursor is initialized per policy: one
// microsecond before the earliest message on the topic, or now when the
// topic is empty or the policy is InitNow.
func Latest(ctx context.Context, db *database.DB, subscriber, topic string, policy InitPolicy) (Access, error) {
	var cursor Access
	err := db.Pool.Session(ctx, func(s session.Session) error {
		sub, err := db.Keys.Get(s, keys.Subscriber, subscriber)
		if err != nil {
			return err
		}
		top, err := db.Keys.Get(s, keys.Topic, topic)
		if err != nil {
			return err
		}
		cursor.SubscriberID = sub.ID
		cursor.TopicID = top.ID

		err = s.Connection().QueryRow(fmt.Sprintf(`
			SELECT time FROM %s WHERE subscriber_id = $1 AND topic_id = $2
		`, db.Names.Access), sub.ID, top.ID).Scan(&cursor.Time)
		if err == nil {
			return nil
		}
		if err != session.ErrNoRows {
			return err
		}

		start := time.Now().UTC()
		if policy == InitEarliest {
			var earliest time.Time
			err = s.Connection().QueryRow(fmt.Sprintf(`
				SELECT time FROM %s WHERE topic_id = $1 ORDER BY time ASC LIMIT 1
			`, db.Names.Message), top.ID).Scan(&earliest)
			switch err {
			case nil:
				// back off one tick so the strict > fetch replays the
				// earliest message itself
				start = earliest.Add(-time.Microsecond)
			case session.ErrNoRows:
			default:
				return err
			}
		}

		_, err = s.Connection().Exec(fmt.Sprintf(`
			INSERT INTO %s (subscriber_id, topic_id, time)
			VALUES ($1, $2, $3)
			ON CONFLICT (subscriber_id, topic_id) DO NOTHING
		`, db.Names.Access), sub.ID, top.ID, start)
		if err != nil {
			return err
		}

		// re-read: a concurrent creator may have won the insert
		return s.Connection().QueryRow(fmt.Sprintf(`
			SELECT time FROM %s WHERE subscriber_id = $1 AND topic_id = $2
		`, db.Names.Access), sub.ID, top.ID).Scan(&cursor.Time)
	})
	if err != nil {
		return Access{}, session.Storage("latest", err)
	}
	return cursor, nil
}

// Update advances the cursor to t. Non-advances are no-ops: the guard
// on the upsert keeps the stored time monotonically non-decreasing.
func Update(ctx context.Context, db *database.DB, subscriber, topic string, t time.Time) error {
	err := db.Pool.Session(ctx, func(s session.Session) error {
		sub, err := db.Keys.Get(s, keys.Subscriber, subscriber)
		if err != nil {
			return err
		}
		top, err := db.Keys.Get(s, keys.Topic, topic)
		if err != nil {
			return err
		}
		_, err = s.Connection().Exec(fmt.Sprintf(`
			INSERT INTO %s (subscriber_id, topic_id, time)
			VALUES ($1, $2, $3)
			ON CONFLICT (subscriber_id, topic_id) DO UPDATE SET time = excluded.time
			WHERE excluded.time > %s.time
		`, db.Names.Access, unqualified(db.Names.Access)), sub.ID, top.ID, t.UTC())
		return err
	})
	return session.Storage("update", err)
}

// unqualified strips the schema prefix: the conflict target in an
// upsert is addressed by bare table name.
func unqualified(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}
