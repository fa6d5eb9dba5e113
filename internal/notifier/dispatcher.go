package notifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dynamic_bot/internal/model"
)

// Dispatcher errors.
var (
	ErrQueueFull = errors.New("dispatch queue full")
	ErrStopped   = errors.New("dispatcher stopped")
)

// Deliverer sends one message.
type Deliverer interface {
	Deliver(ctx context.Context, msg model.Message, pageURL string, attachments []model.Attachment) error
}

// Job is one queued notification. Previous is the subject's last seen item
// before this one was committed.
type Job struct {
	Message  model.Message
	Previous string
}

// Outcome is the result of one job.
type Outcome struct {
	Job Job
	Err error
	At  time.Time
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Workers   int
	QueueSize int
	// Rate is the number of deliveries started per second. Zero disables pacing.
	Rate float64
}

// Dispatcher runs deliveries on a fixed pool of workers fed by a bounded queue,
// so the poll loop never waits on the chat channel.
type Dispatcher struct {
	deliverer Deliverer
	limiter   *rate.Limiter
	workers   int
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	started  bool
	stopped  bool
	queue    chan Job
	outcomes chan Outcome
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Call Start before submitting jobs.
func NewDispatcher(d Deliverer, opts DispatcherOptions, log *slog.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Dispatcher{
		deliverer: d,
		limiter:   rate.NewLimiter(limit, 1),
		workers:   opts.Workers,
		log:       log,
		now:       time.Now,
		queue:     make(chan Job, opts.QueueSize),
		outcomes:  make(chan Outcome, opts.QueueSize),
	}
}

// Start launches the workers. Deliveries run under ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for range d.workers {
		d.wg.Add(1)
		go d.work(ctx)
	}
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Outcomes returns the channel of finished jobs. It is closed once Stop has drained the queue.
func (d *Dispatcher) Outcomes() <-chan Outcome {
	return d.outcomes
}

// Stop rejects new jobs and waits for queued ones to finish or for ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		close(d.outcomes)
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(d.outcomes)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		err := d.limiter.Wait(ctx)
		if err == nil {
			msg := job.Message
			err = d.deliverer.Deliver(ctx, msg, msg.PageURL, msg.Attachments)
		}
		d.outcomes <- Outcome{Job: job, Err: err, At: d.now()}
	}
}
