package schema

import (
	"fmt"

	"github.com/glentner/StreamKit/streamkit/config"
)

// DDL emits the ordered statements that create the schema for the given
// backend. All statements are idempotent.
func DDL(backend config.Backend, schema string) []string {
	if backend == config.SQLite {
		return sqliteDDL()
	}
	return postgresDDL(schema, backend.IsTimescale())
}

func sqliteDDL() []string {
	names := For("")
	statements := []string{}
	for _, table := range []string{names.Level, names.Topic, names.Host, names.Subscriber} {
		statements = append(statements, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL UNIQUE
			)
		`, table))
	}

	statements = append(statements, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			time TIMESTAMP NOT NULL,
			topic_id INTEGER NOT NULL REFERENCES %s (id),
			level_id INTEGER NOT NULL REFERENCES %s (id),
			host_id INTEGER NOT NULL REFERENCES %s (id),
			text TEXT NOT NULL
		)
	`, names.Message, names.Topic, names.Level, names.Host))

	statements = append(statements,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS message_time_topic_index ON %s (time, topic_id)`, names.Message),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS message_level_index ON %s (level_id)`, names.Message),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS message_host_index ON %s (host_id)`, names.Message),
	)

	statements = append(statements, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			subscriber_id INTEGER NOT NULL REFERENCES %s (id),
			topic_id INTEGER NOT NULL REFERENCES %s (id),
			time TIMESTAMP NOT NULL,
			PRIMARY KEY (subscriber_id, topic_id)
		)
	`, names.Access, names.Subscriber, names.Topic))

	return statements
}

func postgresDDL(schema string, timescale bool) []string {
	names := For(schema)
	sequence := "message_id_seq"
	if schema != "" {
		sequence = schema + ".message_id_seq"
	}

	statements := []string{}
	if schema != "" {
		statements = append(statements, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema))
	}

	for _, table := range []string{names.Level, names.Topic, names.Host, names.Subscriber} {
		statements = append(statements, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id SERIAL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE
			)
		`, table))
	}

	statements = append(statements, fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s`, sequence))

	if timescale {
		// The (time, topic_id) primary key enables hypertable
		// partitioning on time; id stays uniquely indexed. The topic
		// foreign key is omitted on the partitioned table.
		statements = append(statements, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGINT NOT NULL DEFAULT nextval('%s') CHECK (id > 0),
				time TIMESTAMPTZ NOT NULL,
				topic_id INTEGER NOT NULL,
				level_id INTEGER NOT NULL REFERENCES %s (id),
				host_id INTEGER NOT NULL REFERENCES %s (id),
				text TEXT NOT NULL,
				PRIMARY KEY (time, topic_id)
			)
		`, names.Message, sequence, names.Level, names.Host))
		statements = append(statements,
			fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS message_id_index ON %s (id)`, names.Message))
	} else {
		statements = append(statements, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGINT PRIMARY KEY DEFAULT nextval('%s'),
				time TIMESTAMPTZ NOT NULL,
				topic_id INTEGER NOT NULL REFERENCES %s (id),
				level_id INTEGER NOT NULL REFERENCES %s (id),
				host_id INTEGER NOT NULL REFERENCES %s (id),
				text TEXT NOT NULL
			)
		`, names.Message, sequence, names.Topic, names.Level, names.Host))
		statements = append(statements,
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS message_time_topic_index ON %s (time, topic_id)`, names.Message))
	}

	statements = append(statements,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS message_level_index ON %s (level_id)`, names.Message),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS message_host_index ON %s (host_id)`, names.Message),
	)

	statements = append(statements, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			subscriber_id INTEGER NOT NULL REFERENCES %s (id),
			topic_id INTEGER NOT NULL REFERENCES %s (id),
			time TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (subscriber_id, topic_id)
		)
	`, names.Access, names.Subscriber, names.Topic))

	return statements
}
