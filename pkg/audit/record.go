package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notifykit/pkg/notification"
)

// Record is one status transition of one notification. The log of records is
// the authoritative delivery history once a notification leaves the queues.
type Record struct {
	NotificationID uuid.UUID            `json:"notification_id"`
	FromStatus     notification.Status  `json:"from_status"`
	ToStatus       notification.Status  `json:"to_status"`
	AttemptCount   int                  `json:"attempt_count"`
	Channel        notification.Channel `json:"channel"`
	CorrelationID  string               `json:"correlation_id,omitempty"`
	ErrorDetail    string               `json:"error_detail,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Validate checks the fields a record cannot do without.
func (r *Record) Validate() error {
	if r.NotificationID == uuid.Nil {
		return fmt.Errorf("%w: notification id is required", ErrRecordValidation)
	}
	if r.ToStatus == "" {
		return fmt.Errorf("%w: target status is required", ErrRecordValidation)
	}
	return nil
}

// Store persists audit records. Implementations should optimize StoreBatch
// for bulk inserts; the AsyncWriter always writes in batches.
type Store interface {
	StoreBatch(ctx context.Context, records []Record) error
}

// Reader queries the audit log. Kept separate from Store because the hot
// path only ever writes.
type Reader interface {
	// ByNotification returns all records for one notification, oldest first.
	ByNotification(ctx context.Context, id uuid.UUID) ([]Record, error)
}
