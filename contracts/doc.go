// Package contracts provides the core data model for the priomq queue.
//
// This package defines the types that flow through the system:
//   - Message: base interface for queue payloads
//   - QueueEntry: a tracked work item with priority, lifecycle status, and retry state
//   - Priority: ordinal priority classes (Low, Normal, High, Critical)
//   - Status: the entry lifecycle state machine
//   - ErrorKind: the fixed transient/permanent failure classification used by
//     the retry and circuit breaker layers
//
// All types are designed to be serializable so entries can be handed to
// external collaborators (dead-letter transports, telemetry) without
// translation.
package contracts
