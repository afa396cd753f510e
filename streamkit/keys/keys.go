// Package keys resolves names to their integer identifiers in the four
// (id, name) tables, creating rows on first reference and memoizing
// results for the life of the process. Rows are never deleted, so the
// cache never invalidates.
package keys

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/glentner/StreamKit/streamkit/schema"
	"github.com/glentner/StreamKit/streamkit/session"
)

type Table string

const (
	Level      Table = "level"
	Topic      Table = "topic"
	Host       Table = "host"
	Subscriber Table = "subscriber"
)

// Record is a resolved (id, name) row.
type Record struct {
	ID   int64
	Name string
}

type cacheKey struct {
	table Table
	name  string
}

// Interner memoizes (table, name) → Record. Safe for concurrent use;
// the cache is write-rare.
type Interner struct {
	names schema.Names
	mu    sync.RWMutex
	cache map[cacheKey]Record
}

func New(names schema.Names) *Interner {
	return &Interner{
		names: names,
		cache: make(map[cacheKey]Record),
	}
}

// Get returns the row for name in table, inserting it first if absent.
// Concurrent first-time callers race on the insert; the conflict is
// absorbed by ON CONFLICT DO NOTHING and the retried lookup.
func (i *Interner) Get(s session.Session, table Table, name string) (Record, error) {
	key := cacheKey{table: table, name: name}

	i.mu.RLock()
	record, ok := i.cache[key]
	i.mu.RUnlock()
	if ok {
		return record, nil
	}

	tableName, err := i.tableName(table)
	if err != nil {
		return Record{}, err
	}

	record, err = i.lookup(s, tableName, name)
	if err == session.ErrNoRows {
		if err = i.insert(s, tableName, name); err == nil {
			record, err = i.lookup(s, tableName, name)
		}
	}
	if err != nil {
		return Record{}, session.Storage("intern "+string(table), err)
	}

	i.mu.Lock()
	i.cache[key] = record
	i.mu.Unlock()
	return record, nil
}

func (i *Interner) lookup(s session.Session, tableName, name string) (Record, error) {
	row := s.Connection().QueryRow(
		`SELECT id, name FROM `+tableName+` WHERE name = $1`, name)
	var record Record
	if err := row.Scan(&record.ID, &record.Name); err != nil {
		return Record{}, err
	}
	return record, nil
}

func (i *Interner) insert(s session.Session, tableName, name string) error {
	_, err := s.Connection().Exec(
		`INSERT INTO `+tableName+` (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func (i *Interner) tableName(table Table) (string, error) {
	switch table {
	case Level:
		return i.names.Level, nil
	case Topic:
		return i.names.Topic, nil
	case Host:
		return i.names.Host, nil
	case Subscriber:
		return i.names.Subscriber, nil
	}
	return "", errors.Errorf("keys: unknown table %q", table)
}
