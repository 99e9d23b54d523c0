package allowlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wifiguard/internal/ssid"
)

// DefaultLockTimeout bounds how long Classify waits for the list lock.
const DefaultLockTimeout = 100 * time.Millisecond

// ErrLockTimeout reports that the list could not be read within the bound.
var ErrLockTimeout = errors.New("allow-list lock timeout")

// Verdict is the outcome of classifying one identifier.
type Verdict int

const (
	// VerdictUnavailable means the list could not be consulted.
	VerdictUnavailable Verdict = iota
	// VerdictTrusted means the identifier is on the list.
	VerdictTrusted
	// VerdictUntrusted means the list was read and the identifier is absent.
	VerdictUntrusted
)

func (v Verdict) String() string {
	switch v {
	case VerdictTrusted:
		return "trusted"
	case VerdictUntrusted:
		return "untrusted"
	default:
		return "unavailable"
	}
}

// List is an immutable set of trusted identifiers guarded by a timed lock.
type List struct {
	entries     []ssid.ID
	lock        chan struct{}
	lockTimeout time.Duration
}

// Option configures a List.
type Option func(*List)

// WithLockTimeout overrides the bounded wait used by Classify.
func WithLockTimeout(d time.Duration) Option {
	return func(l *List) {
		if d > 0 {
			l.lockTimeout = d
		}
	}
}

// New copies entries into a fresh list. Blank entries are skipped and
// duplicates collapse onto their first occurrence.
func New(entries []string, opts ...Option) (*List, error) {
	list := &List{
		lock:        make(chan struct{}, 1),
		lockTimeout: DefaultLockTimeout,
	}
	seen := make(map[ssid.ID]struct{}, len(entries))
	for _, raw := range entries {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		id := ssid.New(raw)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		list.entries = append(list.entries, id)
	}
	if len(list.entries) == 0 {
		return nil, errors.New("allow-list requires at least one network")
	}
	for _, opt := range opts {
		opt(list)
	}
	return list, nil
}

// Len returns the number of trusted identifiers.
func (l *List) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the trusted identifiers in insertion order.
func (l *List) Entries() []ssid.ID {
	out := make([]ssid.ID, len(l.entries))
	copy(out, l.entries)
	return out
}

// Classify looks id up under the list lock. It never waits longer than the
// configured lock timeout and never retries.
func (l *List) Classify(ctx context.Context, id ssid.ID) (Verdict, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return VerdictUnavailable, err
	}
	defer release()

	for _, entry := range l.entries {
		if entry == id {
			return VerdictTrusted, nil
		}
	}
	return VerdictUntrusted, nil
}

// IsTrusted reports whether id is on the list. A lock timeout resolves to
// false; callers that need to tell the two apart use Classify.
func (l *List) IsTrusted(ctx context.Context, id ssid.ID) bool {
	verdict, _ := l.Classify(ctx, id)
	return verdict == VerdictTrusted
}

// Hold takes the list lock until the returned func is called. It is a
// diagnostic hook for reproducing lock contention; the monitor never calls
// it.
func (l *List) Hold(ctx context.Context) (func(), error) {
	select {
	case l.lock <- struct{}{}:
		return l.releaseFunc(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *List) acquire(ctx context.Context) (func(), error) {
	select {
	case l.lock <- struct{}{}:
		return l.releaseFunc(), nil
	default:
	}

	timer := time.NewTimer(l.lockTimeout)
	defer timer.Stop()
	select {
	case l.lock <- struct{}{}:
		return l.releaseFunc(), nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrLockTimeout, l.lockTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *List) releaseFunc() func() {
	var released bool
	return func() {
		if released {
			return
		}
		released = true
		<-l.lock
	}
}
