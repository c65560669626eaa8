// Package pipeline orchestrates notification delivery: a fixed worker pool
// claims queued notifications in strict priority order, sends them through
// per-channel providers guarded by circuit breakers, and settles each attempt
// as delivered, scheduled for a backoff retry, or dead-lettered.
//
// Delivery is at-least-once. Attempts are counted at claim time and claims
// carry an expiring lock, so a crashed worker's notification is reclaimed and
// redelivered rather than lost. Every status transition can be recorded to an
// audit trail via pkg/audit.
//
// Typical wiring:
//
//	store := queue.NewMemoryStorage()
//	p, err := pipeline.New(store, []channel.Provider{tg, email},
//		pipeline.WithWorkerCount(8),
//		pipeline.WithAuditRecorder(auditWriter),
//	)
//	if err != nil { ... }
//	if err := p.Start(ctx); err != nil { ... }
//	defer p.Stop(context.Background())
//
//	err = p.Enqueue(ctx, notification.New(
//		notification.ChannelTelegram,
//		notification.PriorityHigh,
//		chatID,
//		notification.Payload{Body: "deploy finished"},
//	))
package pipeline
