package alertq_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wifiguard/internal/alertq"
	"wifiguard/internal/ssid"
)

func mustQueue(t *testing.T, capacity int) *alertq.Queue {
	t.Helper()
	q, err := alertq.New(capacity)
	if err != nil {
		t.Fatalf("alertq.New: %v", err)
	}
	return q
}

func TestSendFailsWhenFull(t *testing.T) {
	q := mustQueue(t, 2)
	ctx := context.Background()

	for _, name := range []string{"X", "Y"} {
		if err := q.Send(ctx, alertq.NewAlert(ssid.New(name)), 10*time.Millisecond); err != nil {
			t.Fatalf("Send(%s): %v", name, err)
		}
	}
	start := time.Now()
	err := q.Send(ctx, alertq.NewAlert(ssid.New("Z")), 20*time.Millisecond)
	if !errors.Is(err, alertq.ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("send on a full queue blocked past its bound")
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 pending, got %d", q.Len())
	}

	var got []ssid.ID
	for i := 0; i < 2; i++ {
		alert, err := q.Receive(ctx, 10*time.Millisecond)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		got = append(got, alert.SSID)
	}
	if got[0] != "X" || got[1] != "Y" {
		t.Fatalf("unexpected order: %v", got)
	}
	if _, err := q.Receive(ctx, 10*time.Millisecond); !errors.Is(err, alertq.ErrEmpty) {
		t.Fatalf("expected Z not to be retained, got %v", err)
	}

	stats := q.Stats()
	if stats.Enqueued != 2 || stats.Dequeued != 2 || stats.Dropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendSucceedsAfterConcurrentReceive(t *testing.T) {
	q := mustQueue(t, 1)
	ctx := context.Background()
	if err := q.Send(ctx, alertq.NewAlert(ssid.New("first")), 0); err != nil {
		t.Fatalf("Send: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = q.Receive(ctx, time.Second)
	}()

	if err := q.Send(ctx, alertq.NewAlert(ssid.New("second")), 2*time.Second); err != nil {
		t.Fatalf("expected send to succeed once capacity frees, got %v", err)
	}
	alert, err := q.Receive(ctx, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if alert.SSID != "second" {
		t.Fatalf("unexpected alert: %s", alert.SSID)
	}
}

func TestReceiveTimeoutIsEmpty(t *testing.T) {
	q := mustQueue(t, 1)
	start := time.Now()
	_, err := q.Receive(context.Background(), 15*time.Millisecond)
	if !errors.Is(err, alertq.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("receive returned before its bound")
	}
}

func TestReceiveHonorsCancellation(t *testing.T) {
	q := mustQueue(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Receive(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNeverExceedsCapacity(t *testing.T) {
	q := mustQueue(t, 3)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = q.Send(ctx, alertq.NewAlert(ssid.New("N")), time.Millisecond)
				if q.Len() > q.Cap() {
					t.Errorf("queue length %d exceeds capacity %d", q.Len(), q.Cap())
				}
			}
		}()
	}
	wg.Wait()

	stats := q.Stats()
	if stats.Pending > stats.Capacity {
		t.Fatalf("pending %d exceeds capacity %d", stats.Pending, stats.Capacity)
	}
	if stats.Enqueued+stats.Dropped != 160 {
		t.Fatalf("every send must be either enqueued or dropped: %+v", stats)
	}
}

func TestEachAlertReceivedOnce(t *testing.T) {
	q := mustQueue(t, 4)
	ctx := context.Background()
	const total = 50
	seen := make(map[string]int)
	var mu sync.Mutex
	done := make(chan struct{})

	go func() {
		defer close(done)
		for received := 0; received < total; {
			alert, err := q.Receive(ctx, time.Second)
			if err != nil {
				continue
			}
			mu.Lock()
			seen[alert.ID]++
			mu.Unlock()
			received++
		}
	}()

	for i := 0; i < total; i++ {
		if err := q.Send(ctx, alertq.NewAlert(ssid.New("dup-check")), time.Second); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	<-done

	if len(seen) != total {
		t.Fatalf("expected %d distinct alerts, got %d", total, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("alert %s received %d times", id, count)
		}
	}
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	if _, err := alertq.New(0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}
