package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notifykit/pkg/audit"
	"github.com/notifykit/notifykit/pkg/breaker"
	"github.com/notifykit/notifykit/pkg/channel"
	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/queue"
)

// Pipeline ties the queue storage, the channel providers, and the per-channel
// circuit breakers into a worker pool. One instance per process; multiple
// processes may share the same storage.
type Pipeline struct {
	storage   queue.Storage
	providers map[notification.Channel]channel.Provider
	breakers  map[notification.Channel]*breaker.CircuitBreaker
	auditor   AuditRecorder
	backoff   Backoff
	logger    *slog.Logger
	stats     *collector

	workerCount   int
	sendTimeout   time.Duration
	lockTimeout   time.Duration
	pollInterval  time.Duration
	sweepInterval time.Duration
	shutdownGrace time.Duration

	breakerThreshold int
	breakerRecovery  time.Duration

	// wake nudges one idle worker after an enqueue or a sweep; the worker
	// keeps claiming until the lanes are empty, so one nudge is enough.
	wake chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a pipeline over the given storage and providers. Each provider
// gets its own circuit breaker keyed by channel.
func New(storage queue.Storage, providers []channel.Provider, opts ...Option) (*Pipeline, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	p := &Pipeline{
		storage:       storage,
		providers:     make(map[notification.Channel]channel.Provider, len(providers)),
		logger:        slog.Default(),
		stats:         newCollector(),
		workerCount:   DefaultWorkerCount,
		sendTimeout:   DefaultSendTimeout,
		lockTimeout:   DefaultLockTimeout,
		pollInterval:  DefaultPollInterval,
		sweepInterval: DefaultSweepInterval,
		shutdownGrace: DefaultShutdownGrace,
		wake:          make(chan struct{}, 1),
	}

	for _, prov := range providers {
		ch := prov.Channel()
		if !ch.Valid() {
			return nil, fmt.Errorf("%w: %q", notification.ErrInvalidChannel, ch)
		}
		if _, exists := p.providers[ch]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, ch)
		}
		p.providers[ch] = prov
	}

	for _, opt := range opts {
		opt(p)
	}

	p.breakers = make(map[notification.Channel]*breaker.CircuitBreaker, len(p.providers))
	for ch := range p.providers {
		p.breakers[ch] = breaker.New(p.breakerThreshold, p.breakerRecovery)
	}

	return p, nil
}

// Enqueue validates the notification and hands it to storage. On success the
// notification is durably queued; a storage error means it was not accepted
// and the caller must decide what to do with it.
func (p *Pipeline) Enqueue(ctx context.Context, n *notification.Notification) error {
	if n == nil {
		return ErrNilNotification
	}
	if err := n.Validate(); err != nil {
		return err
	}
	if _, ok := p.providers[n.Channel]; !ok {
		return fmt.Errorf("%w: %s", channel.ErrNoProviderForChannel, n.Channel)
	}

	if err := p.storage.Enqueue(ctx, n); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	p.stats.enqueued.Add(1)
	p.recordAudit(n, notification.StatusPending, notification.StatusQueued, "")
	p.wakeWorkers()
	return nil
}

// Start launches the worker pool and the retry/reclaim scheduler. The given
// context is the run context: cancelling it is equivalent to calling Stop,
// minus the graceful wait.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	sched, err := queue.NewScheduler(p.storage,
		queue.WithSweepInterval(p.sweepInterval),
		queue.WithSchedulerLogger(p.logger),
		queue.WithWakeFunc(func(int) { p.wakeWorkers() }),
	)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(runCtx)
	}()

	for i := range p.workerCount {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(runCtx, i)
		}()
	}

	done := p.done
	go func() {
		wg.Wait()
		close(done)
	}()

	p.logger.Info("pipeline started",
		slog.Int("workers", p.workerCount),
		slog.Int("channels", len(p.providers)))
	return nil
}

// Stop cancels the workers and waits for in-flight attempts to finish. With
// no deadline on ctx, the configured shutdown grace applies. On timeout the
// remaining claims are left for the stale-lock sweep; nothing is lost.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	cancel, done := p.cancel, p.done
	p.started = false
	p.mu.Unlock()

	cancel()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancelWait context.CancelFunc
		ctx, cancelWait = context.WithTimeout(ctx, p.shutdownGrace)
		defer cancelWait()
	}

	select {
	case <-done:
		p.logger.Info("pipeline stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("pipeline shutdown grace exceeded, abandoning in-flight claims")
		return ErrShutdownTimeout
	}
}

// Status returns the current record for a notification.
func (p *Pipeline) Status(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	return p.storage.Get(ctx, id)
}

// DeadLetters lists dead-lettered notifications matching the filter.
func (p *Pipeline) DeadLetters(ctx context.Context, filter queue.DeadLetterFilter) ([]queue.DeadLetter, error) {
	return p.storage.ListDeadLetters(ctx, filter)
}

// Requeue returns a dead-lettered notification to its priority lane with a
// fresh attempt budget. Operator recovery path.
func (p *Pipeline) Requeue(ctx context.Context, id uuid.UUID) error {
	n, err := p.storage.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := p.storage.RequeueDeadLetter(ctx, id); err != nil {
		return err
	}

	p.recordAudit(n, notification.StatusDead, notification.StatusQueued, "")
	p.logger.Info("dead letter requeued",
		slog.String("notification_id", id.String()),
		slog.String("channel", string(n.Channel)))
	p.wakeWorkers()
	return nil
}

// Metrics assembles a health snapshot from the counters, the queue storage,
// and the circuit breakers.
func (p *Pipeline) Metrics(ctx context.Context) (Metrics, error) {
	depths, err := p.storage.LaneDepths(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("lane depths: %w", err)
	}
	deadCount, err := p.storage.DeadLetterCount(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("dead letter count: %w", err)
	}

	m := p.stats.snapshot()
	m.DeadLetterCount = deadCount
	m.LaneDepths = make(map[string]int, len(depths))
	for prio, depth := range depths {
		m.LaneDepths[prio.String()] = depth
	}
	m.Breakers = make(map[string]breaker.Stats, len(p.breakers))
	for ch, cb := range p.breakers {
		m.Breakers[string(ch)] = cb.Stats()
	}
	if dropper, ok := p.auditor.(interface{ Dropped() int64 }); ok {
		m.AuditDropped = dropper.Dropped()
	}
	return m, nil
}

// wakeWorkers nudges an idle worker without blocking.
func (p *Pipeline) wakeWorkers() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// recordAudit appends a status transition to the audit trail, if configured.
// Audit failures are logged and swallowed; the trail never gates delivery.
func (p *Pipeline) recordAudit(n *notification.Notification, from, to notification.Status, detail string) {
	if p.auditor == nil {
		return
	}

	err := p.auditor.Record(audit.Record{
		NotificationID: n.ID,
		FromStatus:     from,
		ToStatus:       to,
		AttemptCount:   n.AttemptCount,
		Channel:        n.Channel,
		CorrelationID:  n.CorrelationID,
		ErrorDetail:    detail,
	})
	if err != nil {
		p.logger.Warn("failed to record audit entry",
			slog.String("notification_id", n.ID.String()),
			slog.String("error", err.Error()))
	}
}
