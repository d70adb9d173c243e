// Package queue implements the priority message queue at the heart of priomq.
//
// A PriorityMessageQueue is a thread-safe work-item store with:
//   - strict priority ordering (Critical before High before Normal before Low)
//     with FIFO tie-break within a priority class
//   - O(1) status lookup by entry id
//   - per-entry expiration with a background sweeper
//   - bounded retry bookkeeping driven by a reliability.RetryPolicy
//   - lifecycle notifications (Enqueued, Dequeued, Expired, RetryExceeded)
//     for external logging and telemetry collaborators
//
// Dequeue is a non-blocking poll: it returns (nil, nil) when no ready entry
// exists, and a cancelled context also yields (nil, nil) with queue state
// untouched. Consumers that want to block compose their own wait loop (see
// the root package's Client.Run).
//
// Priority precedence is strict and total: sustained high-priority load will
// starve lower priorities. That is the design, not a defect.
package queue
