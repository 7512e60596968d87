// Package notifier is the notification channel used by the task subsystem:
// send(owner, text) -> error.
//
// # Transport
//
// Delivery is delegated to a transport.Sender (the Telegram adapter). The
// service adds a shared rate limit so a burst of scheduled runs cannot trip
// Telegram's flood control, and logs failures. It never retries; callers
// decide what a failed notification means for them.
//
// # Tracking
//
// Track wraps a Notifier and remembers whether anything was delivered, which
// is how the executor knows a scheduled run already told the owner.
package notifier
