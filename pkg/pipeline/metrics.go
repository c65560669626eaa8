package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/notifykit/notifykit/pkg/breaker"
)

// rollingWindowSize is how many recent attempts feed the success-rate and
// latency figures. Totals are unbounded; the window only smooths the rates.
const rollingWindowSize = 256

// Metrics is a point-in-time snapshot of pipeline health.
type Metrics struct {
	// Counters since process start.
	Enqueued       int64 `json:"enqueued"`
	Attempts       int64 `json:"attempts"`
	Delivered      int64 `json:"delivered"`
	Sent           int64 `json:"sent"`
	Retried        int64 `json:"retried"`
	DeadLettered   int64 `json:"dead_lettered"`
	Expired        int64 `json:"expired"`
	ShortCircuited int64 `json:"short_circuited"`
	AuditDropped   int64 `json:"audit_dropped"`

	// Rolling figures over the last rollingWindowSize attempts.
	SuccessRate float64       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`

	// Queue state at snapshot time.
	LaneDepths      map[string]int `json:"lane_depths"`
	DeadLetterCount int            `json:"dead_letter_count"`

	// Breakers keyed by channel name.
	Breakers map[string]breaker.Stats `json:"breakers"`
}

type attemptSample struct {
	success bool
	latency time.Duration
}

// collector aggregates counters and the rolling attempt window. Counters are
// atomic so the hot path never takes the window mutex unless an attempt
// finished.
type collector struct {
	enqueued       atomic.Int64
	attempts       atomic.Int64
	delivered      atomic.Int64
	sent           atomic.Int64
	retried        atomic.Int64
	deadLettered   atomic.Int64
	expired        atomic.Int64
	shortCircuited atomic.Int64

	mu     sync.Mutex
	window [rollingWindowSize]attemptSample
	next   int
	filled int
}

func newCollector() *collector {
	return &collector{}
}

// recordAttempt stores one finished provider call in the rolling window.
func (c *collector) recordAttempt(success bool, latency time.Duration) {
	c.attempts.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.window[c.next] = attemptSample{success: success, latency: latency}
	c.next = (c.next + 1) % rollingWindowSize
	if c.filled < rollingWindowSize {
		c.filled++
	}
}

// snapshot copies the counters and derives the rolling figures. Queue depths
// and breaker stats are filled in by the pipeline, which owns those sources.
func (c *collector) snapshot() Metrics {
	m := Metrics{
		Enqueued:       c.enqueued.Load(),
		Attempts:       c.attempts.Load(),
		Delivered:      c.delivered.Load(),
		Sent:           c.sent.Load(),
		Retried:        c.retried.Load(),
		DeadLettered:   c.deadLettered.Load(),
		Expired:        c.expired.Load(),
		ShortCircuited: c.shortCircuited.Load(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filled == 0 {
		return m
	}

	var successes int
	var total time.Duration
	for i := range c.filled {
		s := c.window[i]
		if s.success {
			successes++
		}
		total += s.latency
	}
	m.SuccessRate = float64(successes) / float64(c.filled)
	m.AvgLatency = total / time.Duration(c.filled)
	return m
}
