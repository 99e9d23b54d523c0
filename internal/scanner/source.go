package scanner

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"wifiguard/internal/ssid"
)

// Source yields observed network identifiers.
type Source interface {
	Next() ssid.ID
}

// SimulatorOptions shapes the simulated environment.
type SimulatorOptions struct {
	// TrustedRatio is the probability of observing a trusted network.
	TrustedRatio float64
	// UntrustedPrefix and UntrustedRange produce names Prefix0..Prefix(Range-1).
	UntrustedPrefix string
	UntrustedRange  int
	// Seed of 0 seeds from the clock.
	Seed uint64
}

// Simulator picks trusted names from a fixed set or synthesizes untrusted
// ones. It is safe for concurrent use, which matters briefly while a
// destroyed scan worker drains alongside its replacement.
type Simulator struct {
	trusted []ssid.ID
	opts    SimulatorOptions

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator builds a simulator over the given trusted names.
func NewSimulator(trusted []ssid.ID, opts SimulatorOptions) (*Simulator, error) {
	if opts.TrustedRatio < 0 || opts.TrustedRatio > 1 {
		return nil, fmt.Errorf("trusted ratio %v out of range", opts.TrustedRatio)
	}
	if opts.TrustedRatio > 0 && len(trusted) == 0 {
		return nil, fmt.Errorf("trusted ratio %v needs at least one trusted name", opts.TrustedRatio)
	}
	if opts.UntrustedRange <= 0 {
		return nil, fmt.Errorf("untrusted range must be positive, got %d", opts.UntrustedRange)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Simulator{
		trusted: append([]ssid.ID(nil), trusted...),
		opts:    opts,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Next returns the next simulated observation.
func (s *Simulator) Next() ssid.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.trusted) > 0 && s.rng.Float64() < s.opts.TrustedRatio {
		return s.trusted[s.rng.IntN(len(s.trusted))]
	}
	return ssid.New(fmt.Sprintf("%s%d", s.opts.UntrustedPrefix, s.rng.IntN(s.opts.UntrustedRange)))
}

// Sequence replays a fixed list of identifiers, repeating the last one once
// exhausted. It backs the check command and deterministic tests.
type Sequence struct {
	mu    sync.Mutex
	items []ssid.ID
	next  int
}

// NewSequence returns a Source over names.
func NewSequence(names ...string) *Sequence {
	items := make([]ssid.ID, 0, len(names))
	for _, name := range names {
		items = append(items, ssid.New(name))
	}
	return &Sequence{items: items}
}

// Next returns the next identifier in the sequence.
func (s *Sequence) Next() ssid.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return ""
	}
	if s.next >= len(s.items) {
		return s.items[len(s.items)-1]
	}
	id := s.items[s.next]
	s.next++
	return id
}
