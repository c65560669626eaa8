// Package channel defines the delivery capability the pipeline depends on and
// ships two reference implementations: Telegram (Bot API over HTTP) and email
// (Postmark transactional API).
//
// A Provider is a pure I/O boundary. It receives a recipient and a rendered
// payload and reports the outcome as a tagged Result rather than a bare error,
// so the pipeline never has to infer retryability from error types:
//
//   - OutcomeDelivered — the channel confirmed delivery
//   - OutcomeSent      — the channel accepted the message but cannot confirm
//     end delivery (treated as success)
//   - OutcomeRetryable — transient failure, worth another attempt
//   - OutcomePermanent — the message can never be delivered as-is
//
// Providers must honour ctx cancellation; the pipeline bounds every Send with
// a per-attempt timeout. Providers are expected to tolerate an occasional
// duplicate Send for the same notification, which the at-least-once queue can
// produce after a crash.
package channel
