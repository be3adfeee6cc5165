package billing

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
	"fintrack/internal/records"
	"fintrack/internal/storage"
)

// Processor moves recurring bills whose due date has passed to their next
// monthly occurrence.
type Processor struct {
	store     storage.RecordStore
	publisher records.Publisher
	logger    *log.Logger
}

// NewProcessor creates a processor. publisher may be nil.
func NewProcessor(store storage.RecordStore, publisher records.Publisher, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Discard()
	}
	return &Processor{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentBilling),
	}
}

// RolloverResult summarizes one rollover run.
type RolloverResult struct {
	Checked int
	Rolled  int
	// Overdue counts one-off bills past their due date; they are left alone.
	Overdue int
	Failed  int
}

// Rollover processes every bill due before the day of now. A failing bill is
// logged and counted; the run continues with the next one.
func (p *Processor) Rollover(ctx context.Context, now time.Time) (RolloverResult, error) {
	if p.store == nil {
		return RolloverResult{}, fmt.Errorf("processor not properly initialized")
	}

	cutoff := startOfDay(now).Add(-time.Nanosecond)
	bills, err := p.store.ListBillsDueBefore(ctx, cutoff)
	if err != nil {
		return RolloverResult{}, fmt.Errorf("failed to get past due bills: %w", err)
	}

	p.logger.InfoContext(ctx, "Processing past due bills",
		log.FieldCount, len(bills),
		"processing_date", now.Format("2006-01-02"))

	res := RolloverResult{Checked: len(bills)}
	for _, b := range bills {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !b.IsRecurring {
			res.Overdue++
			continue
		}

		prev := b.DueDate
		b.DueDate = NextDue(b.DueDate, now)
		b.Touch(now.UTC().Truncate(time.Millisecond))
		if err := p.store.ReplaceRecord(ctx, b); err != nil {
			res.Failed++
			p.logger.ErrorContext(ctx, "Failed to roll bill over",
				log.FieldError, err,
				log.FieldRecordID, b.ID,
				log.FieldUserID, b.UserID)
			continue
		}
		res.Rolled++

		p.logger.InfoContext(ctx, "Rolled bill over",
			log.FieldRecordID, b.ID,
			log.FieldUserID, b.UserID,
			"from", prev.Format("2006-01-02"),
			"to", b.DueDate.Format("2006-01-02"))

		if p.publisher != nil {
			if err := p.publisher.PublishRecordEvent(ctx, amqp.NewRecordEvent(b, amqp.ActionUpdated)); err != nil {
				p.logger.WarnContext(ctx, "Failed to publish bill update",
					log.FieldError, err, log.FieldRecordID, b.ID)
			}
		}
	}

	p.logger.InfoContext(ctx, "Bill rollover complete",
		"checked", res.Checked,
		"rolled", res.Rolled,
		"overdue", res.Overdue,
		"failed", res.Failed)
	return res, nil
}
