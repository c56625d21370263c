// Package notifier delivers rendered reminders to recipients.
//
// # Transports
//
// A Notifier is the single capability the scheduler depends on. Concrete
// transports live in subpackages (smtp, telegram); Router picks one by the
// recipient's scheme and Limited throttles the combined stream so a burst of
// simultaneously due jobs does not hammer the upstream service.
//
// # Errors
//
// Every failure returned by a transport is marked with ErrDelivery. Missing or
// placeholder credentials are reported as ErrNotConfigured (also marked
// ErrDelivery) before any network call is made.
package notifier
