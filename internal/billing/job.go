package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/storage"

	"github.com/robfig/cron/v3"
)

// Notifier delivers the due-soon digest.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Job is one run of the bills worker: roll recurring bills over, then report
// the ones coming due.
type Job struct {
	processor *Processor
	records   storage.RecordStore
	users     storage.UserStore
	notifier  Notifier
	within    time.Duration
	now       func() time.Time
	logger    *log.Logger
}

// NewJob wires a job. notifier may be nil, in which case the digest is only
// logged.
func NewJob(processor *Processor, records storage.RecordStore, users storage.UserStore, notifier Notifier, within time.Duration, logger *log.Logger) *Job {
	if logger == nil {
		logger = log.Discard()
	}
	return &Job{
		processor: processor,
		records:   records,
		users:     users,
		notifier:  notifier,
		within:    within,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentBilling),
	}
}

// WithClock replaces the time source. Used by tests.
func (j *Job) WithClock(now func() time.Time) *Job {
	j.now = now
	return j
}

// Run performs the rollover and sends the digest. Both steps run even if the
// first one fails; their errors are joined.
func (j *Job) Run(ctx context.Context) error {
	now := j.now()
	var errs []error

	if _, err := j.processor.Rollover(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("rollover: %w", err))
	}

	d, err := BuildDigest(ctx, j.records, j.users, now, j.within)
	if err != nil {
		errs = append(errs, fmt.Errorf("digest: %w", err))
		return errors.Join(errs...)
	}

	if j.notifier == nil {
		j.logger.InfoContext(ctx, "Due bills digest", "entries", len(d.Entries), "text", d.Text())
		return errors.Join(errs...)
	}
	if d.Empty() {
		j.logger.InfoContext(ctx, "No bills coming due, skipping notification")
		return errors.Join(errs...)
	}
	if err := j.notifier.Notify(ctx, d.Text()); err != nil {
		errs = append(errs, fmt.Errorf("notify: %w", err))
	}
	return errors.Join(errs...)
}

// Schedule registers job on a new cron scheduler with the standard five-field
// spec. Overlapping runs are skipped. The caller starts and stops the
// scheduler.
func Schedule(ctx context.Context, spec string, job *Job, logger *log.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = log.Discard()
	}
	cl := cronLogger{logger.WithComponent(log.ComponentBilling)}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(spec, func() {
		if err := job.Run(ctx); err != nil {
			cl.l.ErrorContext(ctx, "Bills job failed", log.FieldError, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger adapts the component logger to cron.Logger.
type cronLogger struct{ l *log.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{log.FieldError, err}, keysAndValues...)...)
}
