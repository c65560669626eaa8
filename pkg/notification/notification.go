package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel identifies the delivery medium for a notification.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelPush     Channel = "push"
)

// Valid reports whether the channel is one of the known delivery media.
func (c Channel) Valid() bool {
	switch c {
	case ChannelTelegram, ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Priority selects the queue lane. Higher values are claimed first; ordering
// across lanes is absolute, so urgent work never waits behind normal work.
type Priority int8

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

// Lanes returns all priorities in claim order, highest first.
func Lanes() []Priority {
	return []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}
}

// Valid reports whether the priority maps to an existing lane.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// String returns the lane name used in storage keys and metrics labels.
func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Status represents the lifecycle state of a notification.
type Status string

const (
	// StatusPending is the in-memory state between construction and durable
	// enqueue. It is never persisted.
	StatusPending Status = "pending"

	// StatusQueued means the notification sits in a priority lane, ready to
	// be claimed by a worker.
	StatusQueued Status = "queued"

	// StatusProcessing means a worker holds the claim and an attempt is in
	// flight.
	StatusProcessing Status = "processing"

	// StatusSent means the channel accepted the message but cannot confirm
	// end delivery (e.g. email handed to an MTA). Treated as success.
	StatusSent Status = "sent"

	// StatusDelivered means the channel confirmed delivery. Terminal.
	StatusDelivered Status = "delivered"

	// StatusFailed is the in-memory state between a failed attempt and the
	// retry/dead-letter decision. It is never persisted.
	StatusFailed Status = "failed"

	// StatusRetrying means the notification waits in the delayed set for its
	// next attempt.
	StatusRetrying Status = "retrying"

	// StatusDead means retries are exhausted or the failure was permanent.
	// Terminal except for an operator requeue.
	StatusDead Status = "dead"
)

// transitions encodes the status state machine. A missing entry means no
// transition out of that status is allowed.
var transitions = map[Status][]Status{
	StatusPending: {StatusQueued},
	// processing appears twice as a target: queued->processing is the worker
	// claim, processing->queued is the stale-lock reclaim after a crash.
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusSent, StatusDelivered, StatusFailed, StatusQueued},
	StatusSent:       {StatusDelivered, StatusFailed},
	StatusFailed:     {StatusRetrying, StatusDead},
	StatusRetrying:   {StatusQueued},
	// dead->queued is the operator recovery path (Requeue).
	StatusDead: {StatusQueued},
}

// CanTransitionTo reports whether moving from s to next is a legal step in
// the state machine.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the notification lifecycle.
// StatusSent counts as terminal because the pipeline cannot observe anything
// beyond the channel's acceptance.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusDead || s == StatusSent
}

// Payload carries the already-rendered message. Data is opaque to the
// pipeline and passed through to the channel provider untouched.
type Payload struct {
	Title string          `json:"title,omitempty"`
	Body  string          `json:"body"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Notification is the unit of work moving through the pipeline.
type Notification struct {
	ID            uuid.UUID `json:"id"`
	Channel       Channel   `json:"channel"`
	Priority      Priority  `json:"priority"`
	Recipient     string    `json:"recipient"`
	Payload       Payload   `json:"payload"`
	AttemptCount  int       `json:"attempt_count"`
	MaxAttempts   int       `json:"max_attempts"`
	Status        Status    `json:"status"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`

	// Claim bookkeeping, owned by the queue storage. A notification is
	// "owned" by whichever worker the storage recorded here; application
	// code never sets these fields.
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`

	// PreviousStatus is the status the record held immediately before the
	// current claim. Sweeps move ids back into lanes without rewriting
	// records, so the retrying/processing -> queued step surfaces here for
	// the claimer to observe. Set only on the copy returned by Claim, never
	// persisted.
	PreviousStatus Status `json:"-"`

	// LastError holds the most recent attempt's failure detail.
	LastError string `json:"last_error,omitempty"`
}

// New builds a pending notification with defaults applied. The caller still
// has to validate and enqueue it.
func New(ch Channel, priority Priority, recipient string, payload Payload) *Notification {
	return &Notification{
		ID:          uuid.New(),
		Channel:     ch,
		Priority:    priority,
		Recipient:   recipient,
		Payload:     payload,
		MaxAttempts: DefaultMaxAttempts,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// DefaultMaxAttempts bounds delivery attempts when the caller does not set a
// ceiling of its own.
const DefaultMaxAttempts = 3

// Validate checks the invariants a notification must satisfy before it is
// accepted into the pipeline.
func (n *Notification) Validate() error {
	if n.ID == uuid.Nil {
		return ErrMissingID
	}
	if !n.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, n.Channel)
	}
	if !n.Priority.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, n.Priority)
	}
	if n.Recipient == "" {
		return ErrMissingRecipient
	}
	if n.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	return nil
}

// IsExpired reports whether the notification passed its expiry deadline.
// Expired notifications are dropped to the dead-letter sink, never retried.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// AttemptsExhausted reports whether another delivery attempt would exceed
// the ceiling.
func (n *Notification) AttemptsExhausted() bool {
	return n.AttemptCount >= n.MaxAttempts
}

// TransitionTo moves the notification to the next status, enforcing the
// state machine. It is the only sanctioned way to change Status.
func (n *Notification) TransitionTo(next Status) error {
	if !n.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.Status, next)
	}
	n.Status = next
	return nil
}
