package notify_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/turnstile/pkg/adapters/memory"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/notify"
	"github.com/aretw0/turnstile/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu   sync.Mutex
	jobs []domain.NotificationJob
}

func (c *captureSender) Send(_ context.Context, job domain.NotificationJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func job(recipient string, channel domain.Channel, sourceID string) domain.NotificationJob {
	return domain.NotificationJob{
		RecipientID: recipient, Channel: channel,
		SourceEntity: "payroll_run", SourceID: sourceID, Title: "Payroll paid",
	}
}

func TestDedupe(t *testing.T) {
	jobs := []domain.NotificationJob{
		job("emp-1", domain.ChannelInApp, "run-1"),
		job("emp-2", domain.ChannelInApp, "run-1"),
		job("emp-1", domain.ChannelEmail, "run-1"),
		job("emp-1", domain.ChannelInApp, "run-2"),
	}
	out := notify.Dedupe(jobs)
	require.Len(t, out, 3)
	assert.Equal(t, domain.ChannelInApp, out[0].Channel, "first job wins")
	assert.Equal(t, "emp-2", out[1].RecipientID)
	assert.Equal(t, "run-2", out[2].SourceID)

	t.Run("Separators inside IDs do not collide", func(t *testing.T) {
		a := domain.NotificationJob{RecipientID: "a|b", SourceEntity: "c", SourceID: "d"}
		b := domain.NotificationJob{RecipientID: "a", SourceEntity: "b|c", SourceID: "d"}
		assert.NotEqual(t, a.DedupeKey(), b.DedupeKey())
		assert.Len(t, notify.Dedupe([]domain.NotificationJob{a, b}), 2)
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	inApp := &captureSender{}
	var failures []*domain.DispatchError
	d := notify.New(
		notify.WithSender(domain.ChannelInApp, inApp),
		notify.WithSender(domain.ChannelEmail, ports.SenderFunc(func(context.Context, domain.NotificationJob) error {
			return errors.New("smtp refused")
		})),
		notify.WithLifecycleHooks(domain.LifecycleHooks{
			OnDispatchFailure: func(_ context.Context, e *domain.DispatchError) { failures = append(failures, e) },
		}),
		notify.WithConcurrency(1),
	)

	report := d.Dispatch(context.Background(), []domain.NotificationJob{
		job("emp-1", domain.ChannelInApp, "run-1"),
		job("emp-1", domain.ChannelInApp, "run-1"),
		job("emp-2", domain.ChannelEmail, "run-1"),
		job("emp-3", domain.ChannelSMS, "run-1"),
	})

	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Duplicates)
	require.Len(t, report.Failures, 2)
	assert.Len(t, failures, 2)
	assert.Equal(t, 1, inApp.count())

	causes := []string{report.Failures[0].Cause.Error(), report.Failures[1].Cause.Error()}
	assert.Contains(t, causes, "smtp refused")
	assert.Contains(t, causes, "no sender for channel 'sms'")
}

func TestDispatcher_Timeout(t *testing.T) {
	d := notify.New(
		notify.WithTimeout(20*time.Millisecond),
		notify.WithSender(domain.ChannelPush, ports.SenderFunc(func(ctx context.Context, _ domain.NotificationJob) error {
			<-ctx.Done()
			return ctx.Err()
		})),
	)

	start := time.Now()
	report := d.Dispatch(context.Background(), []domain.NotificationJob{job("att-1", domain.ChannelPush, "reg-1")})
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], context.DeadlineExceeded)
}

func TestDispatcher_SenderPanic(t *testing.T) {
	d := notify.New(notify.WithSender(domain.ChannelInApp, ports.SenderFunc(func(context.Context, domain.NotificationJob) error {
		panic("provider bug")
	})))

	report := d.Dispatch(context.Background(), []domain.NotificationJob{job("emp-1", domain.ChannelInApp, "run-1")})
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Error(), "sender panic: provider bug")
}

func TestDispatcher_GoIsDetached(t *testing.T) {
	var sent atomic.Int32
	release := make(chan struct{})
	d := notify.New(notify.WithSender(domain.ChannelInApp, ports.SenderFunc(func(ctx context.Context, _ domain.NotificationJob) error {
		<-release
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sent.Add(1)
		return nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	d.Go(ctx, []domain.NotificationJob{job("emp-1", domain.ChannelInApp, "run-1")})
	cancel() // the request finished; delivery must carry on
	close(release)
	d.Wait()

	assert.Equal(t, int32(1), sent.Load())
}

func TestDispatcher_WithSync(t *testing.T) {
	inApp := &captureSender{}
	d := notify.New(notify.WithSync(), notify.WithSender(domain.ChannelInApp, inApp))

	d.Go(context.Background(), []domain.NotificationJob{job("emp-1", domain.ChannelInApp, "run-1")})
	assert.Equal(t, 1, inApp.count(), "sync dispatch completes before Go returns")
	d.Go(context.Background(), nil)
}

func TestInboxSender(t *testing.T) {
	ctx := context.Background()
	inbox := memory.NewInbox()
	d := notify.New(notify.WithSender(domain.ChannelInApp, notify.NewInboxSender(inbox)))

	j := job("emp-1", domain.ChannelInApp, "run-1")
	d.Dispatch(ctx, []domain.NotificationJob{j})
	d.Dispatch(ctx, []domain.NotificationJob{j})

	items, err := inbox.List(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, items, 1, "inbox rows are deduplicated across dispatches")
	assert.Equal(t, "payroll_run:run-1:emp-1", items[0].DedupeKey)
	assert.Equal(t, domain.PriorityNormal, items[0].Priority)
	assert.Equal(t, "payroll_run", items[0].Source)
	assert.NotEmpty(t, items[0].ID)
}

func TestInboxDedupeKey(t *testing.T) {
	a := domain.NotificationJob{SourceEntity: "ticket", SourceID: "t:1", RecipientID: "u"}
	b := domain.NotificationJob{SourceEntity: "ticket", SourceID: "t", RecipientID: "1:u"}
	assert.NotEqual(t, notify.InboxDedupeKey(a), notify.InboxDedupeKey(b))
	assert.Equal(t, "ticket:t%3A1:u", notify.InboxDedupeKey(a))
	assert.Equal(t, "ticket:t%253A1:u", notify.InboxDedupeKey(domain.NotificationJob{SourceEntity: "ticket", SourceID: "t%3A1", RecipientID: "u"}))
}
