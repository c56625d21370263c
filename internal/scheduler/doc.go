// Package scheduler fires delayed notifications.
//
// Every accepted job gets exactly one one-shot timer armed on the injected
// clock; no goroutine is parked while a job waits. When the timer fires the
// job commits Pending -> Firing under the registry lock, the notifier is
// invoked with a bounded context, and the job ends Delivered or Failed.
// Cancel wins only while the job is still Pending.
//
// Lifecycle changes are published on the event bus (job.*) and terminal
// outcomes are appended to the optional outcome journal.
package scheduler
