package streamkit

import (
	"time"

	"go.uber.org/zap"

	"github.com/glentner/StreamKit/streamkit/access"
)

const (
	DefaultBatchsize  = 10
	DefaultTimeout    = 5 * time.Second
	DefaultPoll       = time.Second
	DefaultSpawnDelay = 500 * time.Millisecond

	// topicQueueSize bounds the discovery queue; blocking the name
	// worker on a slow manager is acceptable.
	topicQueueSize = 10
)

type options struct {
	topic      string
	level      string
	batchsize  int
	timeout    time.Duration
	poll       time.Duration
	spawnDelay time.Duration
	separator  string
	policy     access.InitPolicy
	log        *zap.Logger
}

type Option func(*options)

func defaultOptions() options {
	return options{
		batchsize:  DefaultBatchsize,
		poll:       DefaultPoll,
		spawnDelay: DefaultSpawnDelay,
		separator:  Separator(),
		policy:     access.InitEarliest,
		log:        zap.NewNop(),
	}
}

// WithTopic binds a default topic for Publisher writes.
func WithTopic(topic string) Option {
	return func(o *options) { o.topic = topic }
}

// WithLevel binds a default level for Publisher writes.
func WithLevel(level string) Option {
	return func(o *options) { o.level = level }
}

// WithBatchsize caps the number of messages per database round-trip.
func WithBatchsize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchsize = n
		}
	}
}

// WithTimeout sets the Publisher's per-item collect timeout, or the
// Subscriber's default GetMessage wait. A negative value means wait
// indefinitely (Subscriber only).
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithPoll sets the target period between database polls per topic.
func WithPoll(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.poll = d
		}
	}
}

// WithSpawnDelay sets the manager's pause after starting a topic
// worker.
func WithSpawnDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.spawnDelay = d
		}
	}
}

// WithSeparator overrides the process-wide topic separator for one
// Subscriber.
func WithSeparator(sep string) Option {
	return func(o *options) {
		if len(sep) == 1 {
			o.separator = sep
		}
	}
}

// WithInitPolicy selects the starting cursor for topics this
// subscriber has never seen.
func WithInitPolicy(policy access.InitPolicy) Option {
	return func(o *options) { o.policy = policy }
}

// WithLogger attaches a logger to the engine and its workers.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}
