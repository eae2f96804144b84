package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// ResultOK is passed to Options.Observe for jobs that eventually succeeded.
const ResultOK = "ok"

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// Observe receives the action and ResultOK or the failure class of every job.
	Observe func(action, result string)
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

func (j job) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

// Dispatcher runs outbound Telegram calls on a worker pool, retrying
// transient failures and honouring flood-wait hints.
type Dispatcher struct {
	opts   Options
	jobs   chan job
	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.handle(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. run may be called more than once
// when a transient error is retried.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
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
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet picked by a worker.
func (d *Dispatcher) Pending() int {
	return len(d.jobs)
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops workers and waits for them to finish processing queued jobs.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) handle(j job) {
	start := time.Now()
	attempts, err := d.attempt(j)
	took := logger.Took(start)

	attrs := append(j.attrs(),
		slog.Int("attempts", attempts),
		slog.Duration("duration", took),
	)
	result := ResultOK
	if err != nil {
		d.errs.Add(1)
		result = classifyError(err)
		logger.Error(j.ctx, "tg.sender", "send.fail", append(attrs,
			slog.String("status", "fail"),
			slog.String("err", sanitizeErrorMessage(err)),
			slog.String("err_code", result),
		)...)
	} else if attempts > 1 {
		logger.Info(j.ctx, "tg.sender", "send.retry.success", append(attrs, slog.String("status", "ok"))...)
	} else {
		logger.Debug(j.ctx, "tg.sender", "send.success", attrs...)
	}
	if d.opts.Observe != nil {
		d.opts.Observe(j.action, result)
	}
}

// attempt runs j until it succeeds, fails permanently, exhausts retries or
// runs out of time. It returns the number of calls made.
func (d *Dispatcher) attempt(j job) (int, error) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	limit := d.opts.MaxRetries + 1
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}
		err := j.run()
		if err == nil {
			return n, nil
		}
		if n == limit || !netutil.ShouldRetry(err) {
			return n, err
		}
		delay := d.backoff(err, n)
		logger.Debug(j.ctx, "tg.sender", "send.retry.backoff", append(j.attrs(),
			slog.Int("attempt", n),
			slog.Duration("backoff", delay),
			slog.String("err_code", classifyError(err)),
		)...)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff grows linearly, except for flood waits where Telegram names the delay.
func (d *Dispatcher) backoff(err error, attempt int) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return d.opts.RetryBackoff * time.Duration(attempt)
}
