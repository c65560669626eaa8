package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notifykit/pkg/channel"
	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/queue"
)

// worker claims and processes notifications until ctx is cancelled. When the
// lanes are empty it sleeps on the wake channel with the poll ticker as a
// fallback, so work enqueued by another process is still picked up.
func (p *Pipeline) worker(ctx context.Context, num int) {
	workerID := uuid.New()
	log := p.logger.With(
		slog.Int("worker", num),
		slog.String("worker_id", workerID.String()))

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := p.storage.Claim(ctx, workerID, p.lockTimeout)
		switch {
		case errors.Is(err, queue.ErrNoneAvailable):
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			case <-ticker.C:
			}
			continue

		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to claim notification", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		p.process(ctx, log, n)
	}
}

// process runs one delivery attempt for a claimed notification and settles
// its outcome. Outcome writes use a background context so a shutdown cannot
// leave a finished attempt unacked.
func (p *Pipeline) process(ctx context.Context, log *slog.Logger, n *notification.Notification) {
	log = log.With(
		slog.String("notification_id", n.ID.String()),
		slog.String("channel", string(n.Channel)),
		slog.String("priority", n.Priority.String()),
		slog.Int("attempt", n.AttemptCount))

	// Sweeps return ids to the lanes without rewriting records, so the
	// retrying -> queued step (or processing -> queued after a reclaim) is
	// observed here, at claim time; record it so the trail has every
	// transition.
	switch n.PreviousStatus {
	case notification.StatusRetrying, notification.StatusProcessing:
		p.recordAudit(n, n.PreviousStatus, notification.StatusQueued, "")
	}
	p.recordAudit(n, notification.StatusQueued, notification.StatusProcessing, "")

	// Shutdown landed between claim and send: put the claim back with its
	// attempt outcome unconsumed instead of burning an attempt on a send we
	// will not make.
	if ctx.Err() != nil {
		if err := p.storage.Release(context.Background(), n.ID); err != nil {
			log.Error("failed to release claim on shutdown", slog.String("error", err.Error()))
			return
		}
		p.recordAudit(n, notification.StatusProcessing, notification.StatusQueued, "")
		return
	}

	if n.IsExpired(time.Now()) {
		p.stats.expired.Add(1)
		p.deadLetter(log, n, "expired before delivery")
		return
	}

	prov, ok := p.providers[n.Channel]
	if !ok {
		// Enqueue guards against this, but records can outlive a config
		// change that removed the provider.
		p.deadLetter(log, n, fmt.Sprintf("no provider registered for channel %q", n.Channel))
		return
	}

	cb := p.breakers[n.Channel]
	if !cb.Allow() {
		p.stats.shortCircuited.Add(1)
		log.Debug("circuit open, attempt short-circuited")
		p.retryOrDead(log, n, "circuit open for channel "+string(n.Channel))
		return
	}

	start := time.Now()
	res, err := p.send(prov, n)
	latency := time.Since(start)

	if err != nil {
		res = channel.RetryableFailure(err.Error())
	}

	if res.Success() {
		cb.RecordSuccess()
		p.stats.recordAttempt(true, latency)

		status := notification.StatusDelivered
		counter := &p.stats.delivered
		if res.Outcome == channel.OutcomeSent {
			status = notification.StatusSent
			counter = &p.stats.sent
		}
		if err := p.storage.Complete(context.Background(), n.ID, status); err != nil {
			log.Error("failed to complete notification", slog.String("error", err.Error()))
			return
		}
		counter.Add(1)
		p.recordAudit(n, notification.StatusProcessing, status, "")
		log.Info("delivery succeeded",
			slog.String("status", string(status)),
			slog.Duration("latency", latency))
		return
	}

	p.stats.recordAttempt(false, latency)

	if res.Outcome == channel.OutcomePermanent {
		// The provider answered, so the channel itself is healthy; a
		// permanent rejection must not count against the breaker, and in the
		// half-open state it releases the probe slot.
		cb.RecordSuccess()
		p.deadLetter(log, n, res.Reason)
		return
	}

	cb.RecordFailure()
	p.retryOrDead(log, n, res.Reason)
}

// send wraps the provider call with the per-attempt timeout and panic
// recovery. The timeout context is detached from the worker's so a graceful
// shutdown lets the attempt finish. A panicking provider is treated as a
// retryable failure.
func (p *Pipeline) send(prov channel.Provider, n *notification.Notification) (res channel.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("channel provider panicked",
				slog.String("channel", string(n.Channel)),
				slog.Any("panic", r))
			res = channel.RetryableFailure(fmt.Sprintf("provider panic: %v", r))
			err = nil
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
	defer cancel()

	return prov.Send(ctx, n.Recipient, n.Payload)
}

// retryOrDead settles a retryable failure: schedule the next attempt with
// backoff, or dead-letter once the attempt budget is spent.
func (p *Pipeline) retryOrDead(log *slog.Logger, n *notification.Notification, reason string) {
	if n.AttemptsExhausted() {
		p.deadLetter(log, n, fmt.Sprintf("retries exhausted after %d attempts: %s", n.AttemptCount, reason))
		return
	}

	delay := p.backoff.Delay(n.AttemptCount)
	nextAttempt := time.Now().Add(delay)
	if err := p.storage.ScheduleRetry(context.Background(), n.ID, nextAttempt, reason); err != nil {
		log.Error("failed to schedule retry", slog.String("error", err.Error()))
		return
	}

	p.stats.retried.Add(1)
	p.recordAudit(n, notification.StatusProcessing, notification.StatusFailed, reason)
	p.recordAudit(n, notification.StatusFailed, notification.StatusRetrying, "")
	log.Warn("delivery failed, retry scheduled",
		slog.String("reason", reason),
		slog.Duration("delay", delay))
}

// deadLetter moves the notification to the dead-letter sink.
func (p *Pipeline) deadLetter(log *slog.Logger, n *notification.Notification, reason string) {
	if err := p.storage.MoveToDeadLetter(context.Background(), n.ID, reason); err != nil {
		log.Error("failed to dead-letter notification", slog.String("error", err.Error()))
		return
	}

	p.stats.deadLettered.Add(1)
	p.recordAudit(n, notification.StatusProcessing, notification.StatusFailed, reason)
	p.recordAudit(n, notification.StatusFailed, notification.StatusDead, reason)
	log.Error("notification dead-lettered", slog.String("reason", reason))
}
