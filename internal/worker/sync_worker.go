// Package worker mirrors stored records into the spreadsheet in response to
// record events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"

	"golang.org/x/sync/errgroup"
)

// SyncWorker handles synchronization of records from the store to the mirror
type SyncWorker struct {
	records   storage.RecordStore
	users     storage.UserStore
	mirror    sheets.RecordMirror
	batchSize int
	logger    *log.Logger
}

func NewSyncWorker(records storage.RecordStore, users storage.UserStore, mirror sheets.RecordMirror, batchSize int, logger *log.Logger) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		records:   records,
		users:     users,
		mirror:    mirror,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRecordEvent mirrors the current state of the record an event names.
// The event only carries the identity, so the record is re-read: a record
// that no longer exists is removed from the mirror whatever the action says.
func (w *SyncWorker) HandleRecordEvent(ctx context.Context, ev *amqp.RecordEvent) error {
	w.logger.InfoContext(ctx, "Processing record event",
		log.FieldKind, ev.Kind,
		log.FieldRecordID, ev.ID,
		"action", ev.Action)

	if ev.Action == amqp.ActionDeleted {
		return w.remove(ctx, ev.Kind, ev.ID)
	}

	rec, err := w.records.GetRecord(ctx, ev.Kind, ev.ID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.InfoContext(ctx, "Record gone before sync, removing from mirror",
			log.FieldKind, ev.Kind, log.FieldRecordID, ev.ID)
		return w.remove(ctx, ev.Kind, ev.ID)
	}
	if err != nil {
		return fmt.Errorf("get record from storage: %w", err)
	}

	if err := w.mirror.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("mirror %s %s: %w", ev.Kind, ev.ID, err)
	}
	w.logger.InfoContext(ctx, "Successfully synced record",
		log.FieldKind, ev.Kind,
		log.FieldRecordID, ev.ID,
		log.FieldUserID, rec.Header().UserID)
	return nil
}

func (w *SyncWorker) remove(ctx context.Context, kind core.Kind, id string) error {
	if err := w.mirror.Delete(ctx, kind, id); err != nil {
		return fmt.Errorf("delete %s %s from mirror: %w", kind, id, err)
	}
	w.logger.InfoContext(ctx, "Successfully removed record from mirror",
		log.FieldKind, kind, log.FieldRecordID, id)
	return nil
}

// BackfillResult counts the outcome of a full resync.
type BackfillResult struct {
	Synced int64
	Failed int64
}

// Backfill mirrors every record of every user. It recovers from events lost
// while the worker was down. At most batchSize records are written
// concurrently; individual failures are logged and counted, not returned.
func (w *SyncWorker) Backfill(ctx context.Context) (BackfillResult, error) {
	users, err := w.users.ListUsers(ctx)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("list users for backfill: %w", err)
	}

	var res BackfillResult
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)

	for _, u := range users {
		for _, k := range core.Kinds() {
			recs, err := w.records.ListRecords(gctx, u.ID, k, core.Filter{Order: core.OrderCreatedAsc})
			if err != nil {
				_ = g.Wait()
				return res, fmt.Errorf("list %s of %s: %w", k, u.ID, err)
			}
			for _, rec := range recs {
				g.Go(func() error {
					if err := w.mirror.Upsert(gctx, rec); err != nil {
						atomic.AddInt64(&res.Failed, 1)
						w.logger.ErrorContext(gctx, "Failed to sync record during backfill",
							log.FieldError, err,
							log.FieldKind, rec.Kind(),
							log.FieldRecordID, rec.Header().ID)
						return nil
					}
					atomic.AddInt64(&res.Synced, 1)
					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	w.logger.InfoContext(ctx, "Backfill completed",
		log.FieldCount, len(users),
		"synced", res.Synced,
		"errors", res.Failed)
	return res, nil
}
