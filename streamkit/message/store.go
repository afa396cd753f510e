package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glentner/StreamKit/streamkit/database"
	"github.com/glentner/StreamKit/streamkit/keys"
	"github.com/glentner/StreamKit/streamkit/session"
)

// Publish adds all messages to the database in a single transaction.
// An empty batch is a no-op. A failed batch is not retried here.
func Publish(ctx context.Context, db *database.DB, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (time, topic_id, level_id, host_id, text)
		VALUES ($1, $2, $3, $4, $5)
	`, db.Names.Message)

	err := db.Pool.Session(ctx, func(s session.Session) error {
		// intern outside the transaction: key rows commit eagerly and
		// survive a rolled-back batch, keeping the cache truthful
		type row struct {
			time    time.Time
			topicID int64
			levelID int64
			hostID  int64
			text    string
		}
		rows := make([]row, 0, len(messages))
		for i := range messages {
			m := &messages[i]
			if err := m.Validate(); err != nil {
				return err
			}
			topic, err := db.Keys.Get(s, keys.Topic, m.Topic)
			if err != nil {
				return err
			}
			level, err := db.Keys.Get(s, keys.Level, m.Level)
			if err != nil {
				return err
			}
			host, err := db.Keys.Get(s, keys.Host, m.Host)
			if err != nil {
				return err
			}
			rows = append(rows, row{
				time:    m.Time.UTC(),
				topicID: topic.ID,
				levelID: level.ID,
				hostID:  host.ID,
				text:    m.Text,
			})
		}

		return s.Atomic(func(tx session.Session) error {
			for _, r := range rows {
				_, err := tx.Connection().Exec(insert,
					r.time, r.topicID, r.levelID, r.hostID, r.text)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	return wrap("publish", err)
}

// Fetch returns up to limit messages on topic strictly newer than
// after, in ascending time order, with topic/level/host names resolved.
func Fetch(ctx context.Context, db *database.DB, topic string, after time.Time, limit int) ([]Message, error) {
	query := fmt.Sprintf(`
		SELECT m.id, m.time, t.name, l.name, h.name, m.text
		FROM %s m
		JOIN %s t ON t.id = m.topic_id
		JOIN %s l ON l.id = m.level_id
		JOIN %s h ON h.id = m.host_id
		WHERE m.topic_id = $1 AND m.time > $2
		ORDER BY m.time ASC
		LIMIT $3
	`, db.Names.Message, db.Names.Topic, db.Names.Level, db.Names.Host)

	var messages []Message
	err := db.Pool.Session(ctx, func(s session.Session) error {
		record, err := db.Keys.Get(s, keys.Topic, topic)
		if err != nil {
			return err
		}

		rows, err := s.Connection().Query(query, record.ID, after.UTC(), limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m Message
			if err := rows.Scan(&m.ID, &m.Time, &m.Topic, &m.Level, &m.Host, &m.Text); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrap("fetch", err)
	}
	return messages, nil
}

// wrap turns driver failures into StorageError but lets validation
// errors pass through untouched.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return session.Storage(op, err)
}
