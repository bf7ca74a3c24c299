package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/ports"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout bounds one Dispatch call.
	DefaultTimeout = 5 * time.Second

	// DefaultConcurrency bounds parallel sends within one Dispatch call.
	DefaultConcurrency = 8
)

// Report summarizes one Dispatch call.
type Report struct {
	Sent       int
	Duplicates int
	Failures   []*domain.DispatchError
}

// Dispatcher routes jobs to per-channel senders.
type Dispatcher struct {
	senders     map[domain.Channel]ports.Sender
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	timeout     time.Duration
	concurrency int
	sync        bool

	inflight sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSender routes channel to s.
func WithSender(channel domain.Channel, s ports.Sender) Option {
	return func(d *Dispatcher) {
		d.senders[channel] = s
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithLifecycleHooks registers the OnDispatchFailure callback.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Dispatcher) {
		d.hooks = d.hooks.Merge(hooks)
	}
}

// WithTimeout bounds each Dispatch call.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithConcurrency bounds parallel sends.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.concurrency = n
	}
}

// WithSync makes Go block until delivery finishes.
func WithSync() Option {
	return func(d *Dispatcher) {
		d.sync = true
	}
}

// New creates a dispatcher. Channels without a sender fail at dispatch time.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		senders:     make(map[domain.Channel]ports.Sender),
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}
	return d
}

// Dedupe drops jobs whose DedupeKey was already seen, keeping order.
func Dedupe(jobs []domain.NotificationJob) []domain.NotificationJob {
	seen := make(map[domain.JobKey]bool, len(jobs))
	out := make([]domain.NotificationJob, 0, len(jobs))
	for _, job := range jobs {
		key := job.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, job)
	}
	return out
}

// Dispatch delivers jobs and waits for the outcome. It never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []domain.NotificationJob) Report {
	unique := Dedupe(jobs)
	report := Report{Duplicates: len(jobs) - len(unique)}
	if len(unique) == 0 {
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.concurrency)
	for _, job := range unique {
		g.Go(func() error {
			err := d.send(ctx, job)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				report.Sent++
				return nil
			}
			de := &domain.DispatchError{Job: job, Cause: err}
			report.Failures = append(report.Failures, de)
			d.logger.Warn("notification dispatch failed",
				"recipient", job.RecipientID, "channel", job.Channel,
				"source", job.SourceEntity, "source_id", job.SourceID, "err", err)
			if d.hooks.OnDispatchFailure != nil {
				d.hooks.OnDispatchFailure(ctx, de)
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (d *Dispatcher) send(ctx context.Context, job domain.NotificationJob) (err error) {
	sender, ok := d.senders[job.Channel]
	if !ok {
		return fmt.Errorf("no sender for channel '%s'", job.Channel)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return sender.Send(ctx, job)
}

// Go dispatches in the background, detached from ctx's cancellation so the
// caller's response is never held up. Use Wait to drain.
func (d *Dispatcher) Go(ctx context.Context, jobs []domain.NotificationJob) {
	if len(jobs) == 0 {
		return
	}
	if d.sync {
		d.Dispatch(ctx, jobs)
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.Dispatch(context.WithoutCancel(ctx), jobs)
	}()
}

// Wait blocks until every dispatch started by Go has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
