package channel

import (
	"context"

	"github.com/notifykit/notifykit/pkg/notification"
)

// Outcome classifies the result of a delivery attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSent      Outcome = "sent"
	OutcomeRetryable Outcome = "retryable"
	OutcomePermanent Outcome = "permanent"
)

// Result is the tagged outcome of a single Send call. Reason carries the
// failure detail for audit records and dead-letter inspection; it is empty on
// success.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Success reports whether the attempt should be acked rather than retried.
func (r Result) Success() bool {
	return r.Outcome == OutcomeDelivered || r.Outcome == OutcomeSent
}

// Delivered builds a confirmed-delivery result.
func Delivered() Result { return Result{Outcome: OutcomeDelivered} }

// Sent builds an accepted-but-unconfirmed result.
func Sent() Result { return Result{Outcome: OutcomeSent} }

// RetryableFailure builds a transient-failure result.
func RetryableFailure(reason string) Result {
	return Result{Outcome: OutcomeRetryable, Reason: reason}
}

// PermanentFailure builds a result for failures no retry can fix.
func PermanentFailure(reason string) Result {
	return Result{Outcome: OutcomePermanent, Reason: reason}
}

// Provider sends notifications over one delivery medium. Implementations are
// injected into the pipeline per channel; the pipeline wraps every call with
// the channel's circuit breaker and a per-attempt timeout.
type Provider interface {
	// Channel returns the medium this provider serves, used to route
	// notifications and to key the circuit breaker.
	Channel() notification.Channel

	// Send attempts delivery to the recipient. Transport-level errors are
	// returned as err and treated as retryable; application-level outcomes
	// are expressed through the Result.
	Send(ctx context.Context, recipient string, payload notification.Payload) (Result, error)
}
