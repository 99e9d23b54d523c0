package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"wifiguard/internal/alertq"
	"wifiguard/internal/logging"
	"wifiguard/internal/task"
)

// Stats snapshots the consumer counters.
type Stats struct {
	Delivered      uint64
	ReporterErrors uint64
	IdleTimeouts   uint64
}

// Consumer drains the alert queue. Run is its worker entry point.
type Consumer struct {
	queue          *alertq.Queue
	reporters      []Reporter
	receiveTimeout time.Duration
	deliverTimeout time.Duration
	logger         *slog.Logger

	delivered      atomic.Uint64
	reporterErrors atomic.Uint64
	idle           atomic.Uint64
}

// NewConsumer wires a consumer. One hand-off to all reporters is bounded by
// deliverTimeout; reporters still running at the deadline are abandoned and
// counted as failed. Zero leaves delivery unbounded.
func NewConsumer(queue *alertq.Queue, receiveTimeout, deliverTimeout time.Duration, logger *slog.Logger, reporters ...Reporter) *Consumer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Consumer{
		queue:          queue,
		reporters:      reporters,
		receiveTimeout: receiveTimeout,
		deliverTimeout: deliverTimeout,
		logger:         logger,
	}
}

// Run loops until ctx is cancelled: beat, receive with a bound, report.
func (c *Consumer) Run(ctx context.Context, beat *task.Beat) error {
	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("alert worker started", logging.Duration("receive_timeout", c.receiveTimeout))
	for {
		beat.Beat()
		alert, err := c.queue.Receive(ctx, c.receiveTimeout)
		switch {
		case err == nil:
			c.Deliver(ctx, alert)
		case errors.Is(err, alertq.ErrEmpty):
			c.idle.Add(1)
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}

// Deliver hands alert to every reporter. Reporter errors are logged and
// never stop delivery to the remaining reporters.
func (c *Consumer) Deliver(ctx context.Context, alert alertq.Alert) {
	logger := logging.WithContext(ctx, c.logger)
	deliverCtx := ctx
	if c.deliverTimeout > 0 {
		var cancel context.CancelFunc
		deliverCtx, cancel = context.WithTimeout(ctx, c.deliverTimeout)
		defer cancel()
	}
	for _, reporter := range c.reporters {
		if err := report(deliverCtx, reporter, alert); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.reporterErrors.Add(1)
			logging.WarnWithContext(logger, "alert reporter failed", "alert_report_failed",
				logging.String("reporter", reporter.Name()),
				logging.String(logging.FieldAlertID, alert.ID),
				logging.String(logging.FieldSSID, alert.SSID.String()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "alert not delivered to this sink"),
			)
		}
	}
	c.delivered.Add(1)
}

func report(ctx context.Context, reporter Reporter, alert alertq.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, bounded := ctx.Deadline(); !bounded {
		return reporter.Report(ctx, alert)
	}
	done := make(chan error, 1)
	go func() { done <- reporter.Report(ctx, alert) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the accumulated counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Delivered:      c.delivered.Load(),
		ReporterErrors: c.reporterErrors.Load(),
		IdleTimeouts:   c.idle.Load(),
	}
}
