// Package sender runs outbound Bot API calls on a keyed worker pool.
package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned once Close has been called.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the worker owning a key has no room left.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options tunes a Dispatcher. Zero values select defaults.
type Options struct {
	// QueueSize bounds pending jobs per worker.
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job, retries included.
	MaxDuration time.Duration
	// OnResult, when set, is called from the worker after every job.
	OnResult func(Result)
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// Result describes how a job ended.
type Result struct {
	Action   string
	Endpoint string
	Key      string
	Attempts int
	Elapsed  time.Duration
	Err      error
	// Kind classifies Err; empty on success.
	Kind string
}

type job struct {
	ctx      context.Context
	key      string
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound calls asynchronously. Jobs sharing a key
// (a scene session id or a chat id) run on one worker in enqueue order.
type Dispatcher struct {
	opts   Options
	queues []chan job

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	sent atomic.Uint64
	errs atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, queues: make([]chan job, opts.Workers)}
	d.wg.Add(len(d.queues))
	for i := range d.queues {
		q := make(chan job, opts.QueueSize)
		d.queues[i] = q
		go func() {
			defer d.wg.Done()
			for j := range q {
				d.finish(d.execute(j))
			}
		}()
	}
	return d
}

// Enqueue schedules run on the worker owning key. run may be called more
// than once when the error is transient.
func (d *Dispatcher) Enqueue(ctx context.Context, key, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue(key) <- job{ctx: ctx, key: key, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) queue(key string) chan job {
	if key == "" || len(d.queues) == 1 {
		return d.queues[0]
	}
	return d.queues[xxhash.Sum64String(key)%uint64(len(d.queues))]
}

func (d *Dispatcher) finish(res Result) {
	if res.Err != nil {
		d.errs.Add(1)
	} else {
		d.sent.Add(1)
	}
	if d.opts.OnResult != nil {
		d.opts.OnResult(res)
	}
}

// SentCount returns the number of jobs that eventually succeeded.
func (d *Dispatcher) SentCount() uint64 { return d.sent.Load() }

// ErrorCount returns the number of jobs that gave up.
func (d *Dispatcher) ErrorCount() uint64 { return d.errs.Load() }

// Close stops accepting jobs and waits for queued ones. Safe to call twice.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
		d.mu.Unlock()
		d.wg.Wait()
	})
}
