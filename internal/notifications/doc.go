// Package notifications delivers monitor events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. Enumerated event
// types cover untrusted detections, worker restarts, and watchdog expiry so
// callers emit consistent messages without duplicating HTTP glue. Repeated
// untrusted detections of the same network are collapsed within the
// configured dedup window.
//
// All callers depend only on the Service interface.
package notifications
