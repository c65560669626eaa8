// Package breaker implements a per-channel circuit breaker guarding calls to
// a delivery provider.
//
// The breaker has three states:
//
//   - closed: calls pass through; failure_threshold consecutive failures
//     open the circuit
//   - open: calls are short-circuited without touching the provider until
//     recovery_timeout has elapsed since the circuit opened
//   - half-open: exactly one probe call is allowed through at a time; a
//     success closes the circuit, a failure reopens it
//
// One breaker instance exists per channel and is shared by all workers, so
// every method is safe for concurrent use. The pipeline calls Allow before
// each provider call; a short-circuited call is treated as a retryable
// failure and never reaches the provider.
package breaker
