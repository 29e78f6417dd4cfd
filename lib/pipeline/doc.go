// Package pipeline holds the middlewares every docstore request of the event client passes.
//
// The chain used by the client is
//
//	docstore.Chain(transport, pipeline.Throttling(settings), pipeline.Concurrency())
//
// so the concurrency handler runs inside the retry loop and the throttling handler sees the
// conflict marker on 412 responses and gives up on them immediately.
//
// Key Components:
//
//   - ThrottlingHandler: exponential backoff with randomized jitter and a hard retry ceiling,
//     after which a *TransientError is returned.
//
//   - ConcurrencyHandler: marks 412 responses with docstore.SubStatusConcurrencyConflict.
//
// Both handlers record VictoriaMetrics counters (retries, exhausted retries, conflicts).
package pipeline
