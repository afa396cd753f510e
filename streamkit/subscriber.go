package streamkit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/glentner/StreamKit/streamkit/access"
	"github.com/glentner/StreamKit/streamkit/database"
	"github.com/glentner/StreamKit/streamkit/message"
	"github.com/glentner/StreamKit/streamkit/session"
)

// Subscriber delivers messages published on one or more topic roots,
// including every subtopic under them, resuming per topic from its
// last acknowledged position.
//
//	sub := streamkit.NewSubscriber(db, "my_sub", []string{"example"})
//	sub.Start()
//	defer sub.Stop()
//	for m := sub.GetMessage(time.Second); m != nil; m = sub.GetMessage(time.Second) {
//		fmt.Println(m.Topic, m.Text)
//	}
//
// Internally a name worker discovers topics matching the roots, a
// manager spawns one poll worker per discovered topic, and the poll
// workers feed the shared bounded message queue.
type Subscriber struct {
	db         *database.DB
	name       string
	topics     []string
	batchsize  int
	poll       time.Duration
	timeout    time.Duration // <0 waits indefinitely
	separator  string
	spawnDelay time.Duration
	policy     access.InitPolicy
	log        *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan message.Message
	topicq  chan string
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func NewSubscriber(db *database.DB, name string, topics []string, opts ...Option) *Subscriber {
	o := defaultOptions()
	o.timeout = -1 // wait indefinitely unless configured
	for _, opt := range opts {
		opt(&o)
	}
	return &Subscriber{
		db:         db,
		name:       name,
		topics:     topics,
		batchsize:  o.batchsize,
		poll:       o.poll,
		timeout:    o.timeout,
		separator:  o.separator,
		spawnDelay: o.spawnDelay,
		policy:     o.policy,
		log:        o.log.Named("subscriber").With(zap.String("name", name)),
	}
}

// Start spawns the name worker and the manager.
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("streamkit: subscriber already started")
	}
	if s.name == "" {
		return errors.New("streamkit: subscriber name is required")
	}
	if len(s.topics) == 0 {
		return errors.New("streamkit: at least one topic is required")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.queue = make(chan message.Message, len(s.topics)*s.batchsize)
	s.topicq = make(chan string, topicQueueSize)
	s.wg.Add(2)
	go s.nameWorker()
	go s.manager()
	return nil
}

// Stop terminates every worker, joins them, and closes the message
// stream. Messages already delivered to the queue remain readable.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	close(s.queue)
	s.log.Debug("stopped")
	return nil
}

// GetMessage returns the next message, or nil when the queue stays
// empty past the wait: a positive timeout overrides the configured
// one, zero uses it, and a negative value (the default configuration)
// waits indefinitely.
func (s *Subscriber) GetMessage(timeout time.Duration) *message.Message {
	if timeout == 0 {
		timeout = s.timeout
	}
	if timeout < 0 {
		m, ok := <-s.queue
		if !ok {
			return nil
		}
		return &m
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m, ok := <-s.queue:
		if !ok {
			return nil
		}
		return &m
	case <-timer.C:
		s.log.Debug("timeout reached")
		return nil
	}
}

// Messages exposes the stream for range iteration. The channel closes
// when Stop runs.
func (s *Subscriber) Messages() <-chan message.Message {
	return s.queue
}

// nameWorker enumerates the configured roots and every topic under
// them, repeating each poll period so topics created later are
// discovered. Closing the topic queue is the stop sentinel: it stays
// ordered behind everything already enqueued.
func (s *Subscriber) nameWorker() {
	defer s.wg.Done()
	defer close(s.topicq)
	log := s.log.Named("names")
	log.Debug("discovering")
	for {
		for _, root := range s.topics {
			if !s.enqueueTopic(root) {
				return
			}
			names, err := s.subtopics(root)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				log.Error("discovery failed", zap.String("root", root), zap.Error(err))
				continue
			}
			for _, name := range names {
				if !s.enqueueTopic(name) {
					return
				}
			}
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.poll):
		}
	}
}

func (s *Subscriber) enqueueTopic(name string) bool {
	select {
	case s.topicq <- name:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// subtopics lists existing topics matching root + separator + anything.
func (s *Subscriber) subtopics(root string) ([]string, error) {
	pattern := likeEscape(root+s.separator) + "%"
	query := fmt.Sprintf(`
		SELECT name FROM %s WHERE name LIKE $1 ESCAPE '\'
	`, s.db.Names.Topic)

	var names []string
	err := s.db.Pool.Session(s.ctx, func(sess session.Session) error {
		rows, err := sess.Connection().Query(query, pattern)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, session.Storage("subtopics", err)
	}
	return names, nil
}

func likeEscape(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

// manager consumes the topic queue and keeps one poll worker per
// distinct topic. The pause after each spawn spaces out first-time
// topic interning.
func (s *Subscriber) manager() {
	defer s.wg.Done()
	log := s.log.Named("manager")
	workers := make(map[string]bool)
	for {
		select {
		case <-s.ctx.Done():
			return
		case name, ok := <-s.topicq:
			if !ok {
				return
			}
			if workers[name] {
				continue
			}
			workers[name] = true
			log.Debug("starting topic worker", zap.String("topic", name))
			s.wg.Add(1)
			go s.topicWorker(name)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.spawnDelay):
			}
		}
	}
}

// topicWorker polls one topic, forwards new messages to the shared
// queue in time order, and advances the persisted cursor after each
// delivered batch.
func (s *Subscriber) topicWorker(topic string) {
	defer s.wg.Done()
	log := s.log.Named("topic").With(zap.String("topic", topic))

	cursor, ok := s.loadCursor(topic, log)
	if !ok {
		return
	}
	log.Debug("starting", zap.Time("latest", cursor))

	for {
		if s.ctx.Err() != nil {
			return
		}
		start := time.Now()
		cursor = s.cycle(topic, cursor, log)

		remaining := s.poll - time.Since(start)
		if remaining < 0 {
			remaining = 0
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(remaining):
		}
	}
}

// loadCursor retries until the starting cursor is known or the
// subscriber stops.
func (s *Subscriber) loadCursor(topic string, log *zap.Logger) (time.Time, bool) {
	for {
		cursor, err := access.Latest(s.ctx, s.db, s.name, topic, s.policy)
		if err == nil {
			return cursor.Time, true
		}
		if s.ctx.Err() == nil {
			log.Error("cannot load cursor", zap.Error(err))
		}
		select {
		case <-s.ctx.Done():
			return time.Time{}, false
		case <-time.After(s.poll):
		}
	}
}

// cycle runs one fetch/enqueue/commit round and returns the cursor to
// poll from next. A failed fetch or commit leaves the cursor where it
// was; the next cycle retries.
func (s *Subscriber) cycle(topic string, cursor time.Time, log *zap.Logger) time.Time {
	messages, err := message.Fetch(s.ctx, s.db, topic, cursor, s.batchsize)
	if err != nil {
		if s.ctx.Err() == nil {
			log.Error("fetch failed", zap.Error(err))
		}
		return cursor
	}
	log.Debug("received messages", zap.Int("count", len(messages)))

	last := cursor
	for _, m := range messages {
		select {
		case s.queue <- m:
			last = m.Time
		case <-s.ctx.Done():
			return s.commitCursor(topic, cursor, last, log)
		}
	}
	return s.commitCursor(topic, cursor, last, log)
}

func (s *Subscriber) commitCursor(topic string, cursor, last time.Time, log *zap.Logger) time.Time {
	if !last.After(cursor) {
		return cursor
	}
	// a background context so that cancellation never interrupts an
	// in-flight cursor commit
	if err := access.Update(context.Background(), s.db, s.name, topic, last); err != nil {
		log.Error("cannot advance cursor", zap.Error(err))
		return cursor
	}
	log.Debug("updated cursor", zap.Time("latest", last))
	return last
}

// WithSubscriber runs fn with a started Subscriber and guarantees Stop
// on every path, including a panic inside fn.
func WithSubscriber(db *database.DB, name string, topics []string, fn func(*Subscriber) error, opts ...Option) error {
	s := NewSubscriber(db, name, topics, opts...)
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Stop()
	return fn(s)
}
