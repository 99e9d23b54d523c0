// Package alertq carries untrusted-network alerts from the scanner to the
// alert reporter through a bounded FIFO.
package alertq

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"wifiguard/internal/ssid"
)

// DefaultCapacity matches the reference alert channel depth.
const DefaultCapacity = 5

var (
	// ErrFull reports that a send gave up because the queue stayed full.
	ErrFull = errors.New("alert queue full")
	// ErrEmpty reports that a receive timed out with nothing pending.
	ErrEmpty = errors.New("alert queue empty")
)

// Alert is one untrusted identifier travelling from producer to consumer.
// It is passed by value so neither side can alias the other's copy.
type Alert struct {
	ID         string
	SSID       ssid.ID
	ObservedAt time.Time
}

// NewAlert stamps id with a fresh alert ID and the current time.
func NewAlert(id ssid.ID) Alert {
	return Alert{
		ID:         uuid.NewString(),
		SSID:       id,
		ObservedAt: time.Now().UTC(),
	}
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Capacity int
	Pending  int
	Enqueued uint64
	Dequeued uint64
	Dropped  uint64
}

// Queue is a bounded FIFO whose send and receive never block past a bound.
type Queue struct {
	items chan Alert

	enqueued atomic.Uint64
	dequeued atomic.Uint64
	dropped  atomic.Uint64
}

// New allocates a queue holding at most capacity alerts.
func New(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("alert queue capacity must be positive, got %d", capacity)
	}
	return &Queue{items: make(chan Alert, capacity)}, nil
}

// Send enqueues alert, waiting at most timeout for free capacity. On
// ErrFull the alert is discarded and counted as dropped.
func (q *Queue) Send(ctx context.Context, alert Alert, timeout time.Duration) error {
	select {
	case q.items <- alert:
		q.enqueued.Add(1)
		return nil
	default:
	}
	if timeout <= 0 {
		q.dropped.Add(1)
		return ErrFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.items <- alert:
		q.enqueued.Add(1)
		return nil
	case <-timer.C:
		q.dropped.Add(1)
		return ErrFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the oldest alert, waiting at most timeout for one to
// arrive. A timeout returns ErrEmpty, which is an idle signal rather than a
// failure.
func (q *Queue) Receive(ctx context.Context, timeout time.Duration) (Alert, error) {
	select {
	case alert := <-q.items:
		q.dequeued.Add(1)
		return alert, nil
	default:
	}
	if timeout <= 0 {
		return Alert{}, ErrEmpty
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case alert := <-q.items:
		q.dequeued.Add(1)
		return alert, nil
	case <-timer.C:
		return Alert{}, ErrEmpty
	case <-ctx.Done():
		return Alert{}, ctx.Err()
	}
}

// Len returns the number of pending alerts.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}

// Stats snapshots the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Capacity: cap(q.items),
		Pending:  len(q.items),
		Enqueued: q.enqueued.Load(),
		Dequeued: q.dequeued.Load(),
		Dropped:  q.dropped.Load(),
	}
}
