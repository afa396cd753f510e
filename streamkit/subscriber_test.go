package streamkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glentner/StreamKit/streamkit/access"
	"github.com/glentner/StreamKit/streamkit/message"
)

func collect(sub *Subscriber, wait time.Duration) []message.Message {
	var got []message.Message
	for {
		m := sub.GetMessage(wait)
		if m == nil {
			return got
		}
		got = append(got, *m)
	}
}

func TestSubscribeSingleTopic(t *testing.T) {
	db := newTestDB(t)
	err := WithPublisher(db, func(pub *Publisher) error {
		if err := pub.Write("hello"); err != nil {
			return err
		}
		return pub.Write("world")
	}, WithTopic("demo"), WithLevel("INFO"), WithTimeout(100*time.Millisecond))
	require.NoError(t, err)

	sub := NewSubscriber(db, "sub1", []string{"demo"},
		WithPoll(100*time.Millisecond), WithTimeout(time.Second))
	require.NoError(t, sub.Start())
	defer sub.Stop()

	messages := collect(sub, time.Second)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, "world", messages[1].Text)
	for _, m := range messages {
		assert.Equal(t, "demo", m.Topic)
		assert.Equal(t, "INFO", m.Level)
		assert.Equal(t, message.Hostname(), m.Host)
	}
}

func TestSubscriberResumesFromCursor(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, WithPublisher(db, func(pub *Publisher) error {
		return pub.Write("once")
	}, WithTopic("demo"), WithLevel("info"), WithTimeout(100*time.Millisecond)))

	first := NewSubscriber(db, "resumer", []string{"demo"}, WithPoll(100*time.Millisecond))
	require.NoError(t, first.Start())
	require.NotNil(t, first.GetMessage(2*time.Second))
	require.NoError(t, first.Stop())

	// same name again: no replay
	second := NewSubscriber(db, "resumer", []string{"demo"}, WithPoll(100*time.Millisecond))
	require.NoError(t, second.Start())
	defer second.Stop()
	assert.Nil(t, second.GetMessage(500*time.Millisecond))
}

func TestSubtopicDiscovery(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, WithPublisher(db, func(pub *Publisher) error {
		return pub.Write("pre-existing", OnTopic("a.b"))
	}, WithLevel("info"), WithTimeout(100*time.Millisecond)))

	sub := NewSubscriber(db, "sub2", []string{"a"},
		WithPoll(100*time.Millisecond), WithSpawnDelay(100*time.Millisecond))
	require.NoError(t, sub.Start())
	defer sub.Stop()

	require.NoError(t, WithPublisher(db, func(pub *Publisher) error {
		if err := pub.Write("on the root", OnTopic("a")); err != nil {
			return err
		}
		return pub.Write("created later", OnTopic("a.c"))
	}, WithLevel("info"), WithTimeout(100*time.Millisecond)))

	seen := map[string]string{}
	deadline := time.Now().Add(10 * time.Second)
	for len(seen) < 3 && time.Now().Before(deadline) {
		if m := sub.GetMessage(time.Second); m != nil {
			seen[m.Topic] = m.Text
		}
	}
	assert.Equal(t, map[string]string{
		"a":   "on the root",
		"a.b": "pre-existing",
		"a.c": "created later",
	}, seen)
}

func TestEqualTimestampsBothDelivered(t *testing.T) {
	db := newTestDB(t)
	shared := time.Now().UTC().Truncate(time.Microsecond)
	batch := []message.Message{
		{Time: shared, Topic: "tied", Level: "info", Host: "node", Text: "first"},
		{Time: shared, Topic: "tied", Level: "info", Host: "node", Text: "second"},
	}
	require.NoError(t, message.Publish(context.Background(), db, batch))

	sub := NewSubscriber(db, "tied-sub", []string{"tied"}, WithPoll(100*time.Millisecond))
	require.NoError(t, sub.Start())
	defer sub.Stop()

	messages := collect(sub, time.Second)
	require.Len(t, messages, 2)
	texts := map[string]bool{messages[0].Text: true, messages[1].Text: true}
	assert.True(t, texts["first"] && texts["second"])

	// at most one further poll comes back empty and the cursor holds
	// the shared time
	assert.Nil(t, sub.GetMessage(300*time.Millisecond))
	cursor, err := access.Latest(context.Background(), db, "tied-sub", "tied", access.InitEarliest)
	require.NoError(t, err)
	assert.True(t, cursor.Time.Equal(shared))
}

func TestGetMessageTimeout(t *testing.T) {
	db := newTestDB(t)
	sub := NewSubscriber(db, "idle", []string{"quiet"}, WithPoll(50*time.Millisecond))
	require.NoError(t, sub.Start())
	defer sub.Stop()

	start := time.Now()
	assert.Nil(t, sub.GetMessage(200*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestMessagesChannelClosesOnStop(t *testing.T) {
	db := newTestDB(t)
	sub := NewSubscriber(db, "ranger", []string{"quiet"}, WithPoll(50*time.Millisecond))
	require.NoError(t, sub.Start())

	done := make(chan int)
	go func() {
		count := 0
		for range sub.Messages() {
			count++
		}
		done <- count
	}()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, sub.Stop())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("iteration did not end after Stop")
	}
}

func TestSubscriberLifecycle(t *testing.T) {
	db := newTestDB(t)
	sub := NewSubscriber(db, "", []string{"demo"})
	assert.Error(t, sub.Start())

	sub = NewSubscriber(db, "named", nil)
	assert.Error(t, sub.Start())

	sub = NewSubscriber(db, "named", []string{"demo"}, WithPoll(50*time.Millisecond))
	require.NoError(t, sub.Start())
	assert.Error(t, sub.Start())
	require.NoError(t, sub.Stop())
	require.NoError(t, sub.Stop())
}

func TestWithSubscriberScoped(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, WithPublisher(db, func(pub *Publisher) error {
		return pub.Write("scoped")
	}, WithTopic("demo"), WithLevel("info"), WithTimeout(100*time.Millisecond)))

	var got *message.Message
	err := WithSubscriber(db, "scoped-sub", []string{"demo"}, func(sub *Subscriber) error {
		got = sub.GetMessage(2 * time.Second)
		return nil
	}, WithPoll(100*time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "scoped", got.Text)
}
