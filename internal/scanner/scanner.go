package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"wifiguard/internal/alertq"
	"wifiguard/internal/allowlist"
	"wifiguard/internal/journal"
	"wifiguard/internal/logging"
	"wifiguard/internal/ssid"
	"wifiguard/internal/task"
)

// EventRecorder persists scanner events. journal.Store satisfies it.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event journal.Event) error
}

// Options tunes the scan loop.
type Options struct {
	Period      time.Duration
	SendTimeout time.Duration
	Events      EventRecorder
	// RecordTimeout bounds each event write. The loop stops waiting when it
	// passes, whether or not the recorder honours its context. Zero leaves
	// writes unbounded.
	RecordTimeout time.Duration
}

// Stats snapshots the scanner counters. They accumulate across worker
// incarnations.
type Stats struct {
	Scanned     uint64
	Trusted     uint64
	Untrusted   uint64
	Unavailable uint64
	Dropped     uint64
}

// Outcome describes one scan step.
type Outcome struct {
	SSID    ssid.ID
	Verdict allowlist.Verdict
	Alert   *alertq.Alert
	Dropped bool
}

// Scanner is the producer. Run is its worker entry point.
type Scanner struct {
	list   *allowlist.List
	queue  *alertq.Queue
	source Source
	logger *slog.Logger
	opts   Options

	scanned     atomic.Uint64
	trusted     atomic.Uint64
	untrusted   atomic.Uint64
	unavailable atomic.Uint64
	dropped     atomic.Uint64
}

// New wires a scanner.
// The logger should already carry the worker component; see logging.ForWorker.
func New(list *allowlist.List, queue *alertq.Queue, source Source, logger *slog.Logger, opts Options) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		list:   list,
		queue:  queue,
		source: source,
		logger: logger,
		opts:   opts,
	}
}

// Run loops until ctx is cancelled: beat, observe, classify, forward, sleep.
func (s *Scanner) Run(ctx context.Context, beat *task.Beat) error {
	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("scan worker started", logging.Duration("period", s.opts.Period))
	for {
		beat.Beat()
		if _, err := s.step(ctx, logger); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !sleep(ctx, s.opts.Period) {
			return nil
		}
	}
}

// Step performs one observation outside the worker loop.
func (s *Scanner) Step(ctx context.Context) (Outcome, error) {
	return s.step(ctx, s.logger)
}

func (s *Scanner) step(ctx context.Context, logger *slog.Logger) (Outcome, error) {
	id := s.source.Next()
	s.scanned.Add(1)

	verdict, err := s.list.Classify(ctx, id)
	out := Outcome{SSID: id, Verdict: verdict}
	logger.Debug("network observed",
		logging.String(logging.FieldSSID, id.String()),
		logging.String(logging.FieldVerdict, verdict.String()),
	)

	switch verdict {
	case allowlist.VerdictTrusted:
		s.trusted.Add(1)
		return out, nil
	case allowlist.VerdictUnavailable:
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		s.unavailable.Add(1)
		logging.WarnWithContext(logger, "classification unavailable", string(journal.EventClassificationUnavailable),
			logging.String(logging.FieldSSID, id.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "allow-list lock was contended past its bound"),
			logging.String(logging.FieldImpact, "network skipped this cycle; no alert raised"),
		)
		s.record(ctx, logger, journal.Event{
			Kind:   journal.EventClassificationUnavailable,
			Worker: workerName(ctx),
			SSID:   id.String(),
			Detail: errString(err),
		})
		return out, nil
	}

	s.untrusted.Add(1)
	alert := alertq.NewAlert(id)
	if err := s.queue.Send(ctx, alert, s.opts.SendTimeout); err != nil {
		if !errors.Is(err, alertq.ErrFull) {
			return out, err
		}
		s.dropped.Add(1)
		out.Dropped = true
		logging.WarnWithContext(logger, "alert dropped", string(journal.EventAlertDropped),
			logging.String(logging.FieldSSID, id.String()),
			logging.String(logging.FieldAlertID, alert.ID),
			logging.Duration("send_timeout", s.opts.SendTimeout),
			logging.Int("queue_capacity", s.queue.Cap()),
			logging.String(logging.FieldErrorHint, "alert consumer is not keeping up"),
			logging.String(logging.FieldImpact, "alert lost"),
		)
		s.record(ctx, logger, journal.Event{
			Kind:   journal.EventAlertDropped,
			Worker: workerName(ctx),
			SSID:   id.String(),
			Detail: "queue full",
		})
		return out, nil
	}
	out.Alert = &alert
	logger.Debug("alert queued",
		logging.String(logging.FieldSSID, id.String()),
		logging.String(logging.FieldAlertID, alert.ID),
	)
	return out, nil
}

func (s *Scanner) record(ctx context.Context, logger *slog.Logger, event journal.Event) {
	if s.opts.Events == nil {
		return
	}
	if s.opts.RecordTimeout <= 0 {
		if err := s.opts.Events.RecordEvent(ctx, event); err != nil && ctx.Err() == nil {
			logger.Warn("journal event write failed",
				logging.String(logging.FieldEventType, string(event.Kind)),
				logging.Error(err),
			)
		}
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.opts.RecordTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.opts.Events.RecordEvent(writeCtx, event) }()

	var err error
	select {
	case err = <-done:
	case <-writeCtx.Done():
		err = writeCtx.Err()
	}
	if err != nil && ctx.Err() == nil {
		logger.Warn("journal event write failed",
			logging.String(logging.FieldEventType, string(event.Kind)),
			logging.Duration("bound", s.opts.RecordTimeout),
			logging.Error(err),
		)
	}
}

// Stats returns the accumulated counters.
func (s *Scanner) Stats() Stats {
	return Stats{
		Scanned:     s.scanned.Load(),
		Trusted:     s.trusted.Load(),
		Untrusted:   s.untrusted.Load(),
		Unavailable: s.unavailable.Load(),
		Dropped:     s.dropped.Load(),
	}
}

func workerName(ctx context.Context) string {
	if name, ok := logging.WorkerFromContext(ctx); ok {
		return name
	}
	return "scan"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// sleep waits for d or until ctx ends, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
