package pipeline

import "time"

// Config holds the pipeline settings loaded from the environment; see
// pkg/config for the loader.
type Config struct {
	WorkerCount   int           `env:"PIPELINE_WORKER_COUNT" envDefault:"4"`
	SendTimeout   time.Duration `env:"PIPELINE_SEND_TIMEOUT" envDefault:"10s"`
	LockTimeout   time.Duration `env:"PIPELINE_LOCK_TIMEOUT" envDefault:"1m"`
	PollInterval  time.Duration `env:"PIPELINE_POLL_INTERVAL" envDefault:"1s"`
	SweepInterval time.Duration `env:"PIPELINE_SWEEP_INTERVAL" envDefault:"1s"`
	ShutdownGrace time.Duration `env:"PIPELINE_SHUTDOWN_GRACE" envDefault:"30s"`

	BackoffBase time.Duration `env:"PIPELINE_BACKOFF_BASE" envDefault:"2s"`
	BackoffMax  time.Duration `env:"PIPELINE_BACKOFF_MAX" envDefault:"10m"`

	BreakerFailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"10"`
	BreakerRecoveryTimeout  time.Duration `env:"BREAKER_RECOVERY_TIMEOUT" envDefault:"60s"`
}

// Options translates the config into pipeline options.
func (c Config) Options() []Option {
	return []Option{
		WithWorkerCount(c.WorkerCount),
		WithSendTimeout(c.SendTimeout),
		WithLockTimeout(c.LockTimeout),
		WithPollInterval(c.PollInterval),
		WithSweepInterval(c.SweepInterval),
		WithShutdownGrace(c.ShutdownGrace),
		WithBackoff(Backoff{Base: c.BackoffBase, Max: c.BackoffMax}),
		WithBreakerSettings(c.BreakerFailureThreshold, c.BreakerRecoveryTimeout),
	}
}
