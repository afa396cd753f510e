package streamkit

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/glentner/StreamKit/streamkit/database"
	"github.com/glentner/StreamKit/streamkit/message"
)

var (
	ErrNotRunning = errors.New("streamkit: not running")
	ErrStopped    = errors.New("streamkit: stopped")
)

// Publisher accepts messages through a bounded in-process queue; a
// single background worker drains the queue in batches and commits
// them to the database.
//
//	pub := streamkit.NewPublisher(db, streamkit.WithTopic("example"), streamkit.WithLevel("info"))
//	pub.Start()
//	defer pub.Stop()
//	pub.Write("hello, world!")
type Publisher struct {
	db        *database.DB
	topic     string
	level     string
	batchsize int
	timeout   time.Duration
	log       *zap.Logger

	mu      sync.Mutex
	queue   chan message.Message
	done    chan struct{}
	started bool
	stopped bool
}

func NewPublisher(db *database.DB, opts ...Option) *Publisher {
	o := defaultOptions()
	o.timeout = DefaultTimeout
	for _, opt := range opts {
		opt(&o)
	}
	return &Publisher{
		db:        db,
		topic:     o.topic,
		level:     o.level,
		batchsize: o.batchsize,
		timeout:   o.timeout,
		log:       o.log.Named("publisher"),
	}
}

// Start spawns the background worker.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("streamkit: publisher already started")
	}
	p.started = true
	p.queue = make(chan message.Message, 2*p.batchsize)
	p.done = make(chan struct{})
	go p.worker()
	return nil
}

// Write enqueues one message. The per-call options OnTopic and AtLevel
// override the bound defaults. A missing topic or level is not
// detected here: it surfaces as a validation error at publish time.
// Write blocks while the queue is full.
func (p *Publisher) Write(text string, opts ...WriteOption) error {
	m := message.Message{
		Time:  time.Now().UTC(),
		Topic: p.topic,
		Level: p.level,
		Host:  message.Hostname(),
		Text:  text,
	}
	for _, opt := range opts {
		opt(&m)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrNotRunning
	}
	if p.stopped {
		return ErrStopped
	}
	p.queue <- m
	return nil
}

// Stop waits for the queue to drain, signals the worker to exit, and
// joins it. Every message accepted before Stop is either committed or
// logged as dropped by the time Stop returns.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.queue)
	<-p.done
	p.log.Debug("stopped")
	return nil
}

// worker collects up to batchsize messages, each wait bounded by the
// timeout, and flushes what it has when the timeout fires. It exits
// once the queue is closed and drained.
func (p *Publisher) worker() {
	defer close(p.done)
	batch := make([]message.Message, 0, p.batchsize)
	for {
		batch = batch[:0]
		open := true
	collect:
		for len(batch) < p.batchsize {
			timer := time.NewTimer(p.timeout)
			select {
			case m, ok := <-p.queue:
				timer.Stop()
				if !ok {
					open = false
					break collect
				}
				batch = append(batch, m)
				p.log.Debug("buffering message", zap.String("topic", m.Topic))
			case <-timer.C:
				break collect
			}
		}
		p.flush(batch)
		if !open {
			return
		}
	}
}

func (p *Publisher) flush(batch []message.Message) {
	if len(batch) == 0 {
		return
	}
	if err := message.Publish(context.Background(), p.db, batch); err != nil {
		// the batch is dropped; the worker lives on
		p.log.Error("dropping batch",
			zap.Int("count", len(batch)),
			zap.Error(err))
		return
	}
	p.log.Debug("added messages", zap.Int("count", len(batch)))
}

// WriteOption overrides a bound default for a single Write call.
type WriteOption func(*message.Message)

// OnTopic addresses a single write to the given topic.
func OnTopic(topic string) WriteOption {
	return func(m *message.Message) { m.Topic = topic }
}

// AtLevel stamps a single write with the given level.
func AtLevel(level string) WriteOption {
	return func(m *message.Message) { m.Level = level }
}

// WithPublisher runs fn with a started Publisher and guarantees Stop on
// every path.
func WithPublisher(db *database.DB, fn func(*Publisher) error, opts ...Option) error {
	p := NewPublisher(db, opts...)
	if err := p.Start(); err != nil {
		return err
	}
	defer p.Stop()
	return fn(p)
}
