package pipeline

import (
	"log/slog"
	"time"

	"github.com/notifykit/notifykit/pkg/audit"
)

// Defaults applied by New when the corresponding option is not given.
const (
	DefaultWorkerCount   = 4
	DefaultSendTimeout   = 10 * time.Second
	DefaultLockTimeout   = time.Minute
	DefaultPollInterval  = time.Second
	DefaultSweepInterval = time.Second
	DefaultShutdownGrace = 30 * time.Second
)

// AuditRecorder receives status-transition records. Implementations must not
// block; see audit.AsyncWriter.
type AuditRecorder interface {
	Record(rec audit.Record) error
}

// Option is a functional option for configuring the pipeline.
type Option func(*Pipeline)

// WithWorkerCount sets the number of concurrent delivery workers.
func WithWorkerCount(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithSendTimeout bounds each provider Send call.
func WithSendTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.sendTimeout = d
		}
	}
}

// WithLockTimeout sets how long a claim lock lasts before the stale-lock
// sweep may reclaim the notification. Must comfortably exceed the send
// timeout, or healthy attempts will be redelivered.
func WithLockTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.lockTimeout = d
		}
	}
}

// WithPollInterval sets the fallback claim poll interval for idle workers.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithSweepInterval sets how often the retry/reclaim sweeps run.
func WithSweepInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.sweepInterval = d
		}
	}
}

// WithShutdownGrace sets the default wait for in-flight attempts during Stop,
// used when the Stop context carries no deadline of its own.
func WithShutdownGrace(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.shutdownGrace = d
		}
	}
}

// WithBackoff sets the retry backoff policy.
func WithBackoff(b Backoff) Option {
	return func(p *Pipeline) {
		p.backoff = b
	}
}

// WithBreakerSettings overrides the per-channel circuit breaker thresholds.
// Non-positive values fall back to the breaker package defaults.
func WithBreakerSettings(failureThreshold int, recoveryTimeout time.Duration) Option {
	return func(p *Pipeline) {
		p.breakerThreshold = failureThreshold
		p.breakerRecovery = recoveryTimeout
	}
}

// WithAuditRecorder attaches an audit trail. The pipeline does not own the
// recorder's lifecycle; close it after Stop.
func WithAuditRecorder(ar AuditRecorder) Option {
	return func(p *Pipeline) {
		p.auditor = ar
	}
}

// WithLogger sets the logger for the pipeline and its scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}
