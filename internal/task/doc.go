// Package task runs supervised worker goroutines and exposes their liveness.
//
// Spawn starts one incarnation of a worker and returns an opaque Handle. The
// worker proves progress by calling Beat.Beat once per loop iteration; the
// heartbeat timestamp, not the goroutine's scheduling state, is what
// Liveness inspects, so a worker parked on a bounded wait is never mistaken
// for a stuck one. Destroy invalidates a Handle immediately. The goroutine
// behind it observes cancellation at its next suspension point and whatever
// it still held is lost.
package task
