package keys_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glentner/StreamKit/streamkit/keys"
	"github.com/glentner/StreamKit/streamkit/schema"
	"github.com/glentner/StreamKit/streamkit/session"
	"github.com/glentner/StreamKit/streamkit/utils/testutils"
)

func get(t *testing.T, pool session.Pool, interner *keys.Interner, table keys.Table, name string) keys.Record {
	t.Helper()
	var record keys.Record
	err := pool.Session(context.Background(), func(s session.Session) error {
		var err error
		record, err = interner.Get(s, table, name)
		return err
	})
	require.NoError(t, err)
	return record
}

func TestGetExisting(t *testing.T) {
	pool := testutils.NewPoolStub(
		testutils.NewRowsStub([]any{1, "info"}),
	)
	interner := keys.New(schema.For(""))

	record := get(t, pool, interner, keys.Level, "info")
	assert.Equal(t, keys.Record{ID: 1, Name: "info"}, record)
	require.Len(t, pool.Queries, 1)
	assert.Contains(t, pool.Queries[0], "SELECT id, name FROM level")
	assert.Equal(t, []any{"info"}, pool.Params[0])
}

func TestGetCreatesMissing(t *testing.T) {
	pool := testutils.NewPoolStub(
		testutils.NewRowsStub(),                 // lookup: no rows
		testutils.NewRowsStub([]any{7, "demo"}), // retried lookup after insert
	)
	interner := keys.New(schema.For(""))

	record := get(t, pool, interner, keys.Topic, "demo")
	assert.Equal(t, keys.Record{ID: 7, Name: "demo"}, record)
	require.Len(t, pool.Queries, 3)
	assert.Contains(t, pool.Queries[1], "INSERT INTO topic")
	assert.Contains(t, pool.Queries[1], "ON CONFLICT (name) DO NOTHING")
}

func TestGetMemoizes(t *testing.T) {
	pool := testutils.NewPoolStub(
		testutils.NewRowsStub([]any{3, "host-1"}),
	)
	interner := keys.New(schema.For(""))

	first := get(t, pool, interner, keys.Host, "host-1")
	second := get(t, pool, interner, keys.Host, "host-1")
	assert.Equal(t, first.ID, second.ID)
	// the second call never touches the database
	assert.Len(t, pool.Queries, 1)
}

func TestGetDistinctTables(t *testing.T) {
	pool := testutils.NewPoolStub(
		testutils.NewRowsStub([]any{1, "x"}),
		testutils.NewRowsStub([]any{2, "x"}),
	)
	interner := keys.New(schema.For(""))

	level := get(t, pool, interner, keys.Level, "x")
	topic := get(t, pool, interner, keys.Topic, "x")
	assert.Equal(t, int64(1), level.ID)
	assert.Equal(t, int64(2), topic.ID)
	assert.Len(t, pool.Queries, 2)
}

func TestGetQualifiedNames(t *testing.T) {
	pool := testutils.NewPoolStub(
		testutils.NewRowsStub([]any{1, "sub"}),
	)
	interner := keys.New(schema.For("sk"))

	get(t, pool, interner, keys.Subscriber, "sub")
	assert.Contains(t, pool.Queries[0], "FROM sk.subscriber")
}

func TestGetUnknownTable(t *testing.T) {
	pool := testutils.NewPoolStub()
	interner := keys.New(schema.For(""))

	err := pool.Session(context.Background(), func(s session.Session) error {
		_, err := interner.Get(s, keys.Table("widget"), "x")
		return err
	})
	require.Error(t, err)
}
