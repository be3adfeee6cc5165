package records

import (
	"context"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/log"

	"golang.org/x/sync/errgroup"
)

// MonthOverview summarizes one month of userID's records. The three
// collections are read concurrently.
func (s *Service) MonthOverview(ctx context.Context, userID string, year, month int) (core.MonthOverview, error) {
	if err := requireUser(userID); err != nil {
		return core.MonthOverview{}, err
	}
	verr := &core.ValidationError{}
	if year < 1970 || year > 9999 {
		verr.Add("year", "must be between 1970 and 9999")
	}
	if month < 1 || month > 12 {
		verr.Add("month", "must be between 1 and 12")
	}
	if err := verr.OrNil(); err != nil {
		return core.MonthOverview{}, err
	}

	key := overviewKey(userID, year, month)
	if s.overviews != nil {
		if ov, ok := s.overviews.Get(key); ok {
			return ov, nil
		}
	}
	gen := s.generation(userID)

	from, to := core.MonthRange(year, month)
	var (
		txs   []*core.Transaction
		goals []*core.SavingsGoal
		bills []*core.Bill
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.store.ListRecords(gctx, userID, core.KindTransaction, core.Filter{From: from, To: to, Order: core.OrderDateAsc})
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		txs = typed[*core.Transaction](recs)
		return nil
	})
	g.Go(func() error {
		recs, err := s.store.ListRecords(gctx, userID, core.KindSavings, core.Filter{Order: core.OrderCreatedAsc})
		if err != nil {
			return fmt.Errorf("list savings: %w", err)
		}
		goals = typed[*core.SavingsGoal](recs)
		return nil
	})
	g.Go(func() error {
		recs, err := s.store.ListRecords(gctx, userID, core.KindBill, core.Filter{From: from, To: to, Order: core.OrderDateAsc})
		if err != nil {
			return fmt.Errorf("list bills: %w", err)
		}
		bills = typed[*core.Bill](recs)
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.MonthOverview{}, err
	}

	ov := core.BuildMonthOverview(year, month, txs, goals, bills)
	if !s.cacheOverview(userID, key, gen, ov) {
		s.logger.DebugContext(ctx, "Overview not cached, records changed while reading",
			log.FieldUserID, userID)
	}

	s.logger.DebugContext(ctx, "Built month overview",
		log.FieldUserID, userID,
		log.FieldYear, year,
		log.FieldMonth, month)
	return ov, nil
}

func (s *Service) generation(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[userID]
}

// cacheOverview stores ov unless a write by userID happened after gen was
// read. It reports whether ov was stored.
func (s *Service) cacheOverview(userID, key string, gen uint64, ov core.MonthOverview) bool {
	if s.overviews == nil {
		return true
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[userID] != gen {
		return false
	}
	s.overviews.Set(key, ov)
	return true
}

func (s *Service) invalidate(userID string) {
	if s.overviews == nil {
		return
	}
	s.genMu.Lock()
	s.gens[userID]++
	s.genMu.Unlock()

	if n := s.overviews.DeletePrefix(userID + ":"); n > 0 {
		s.logger.Debug("Invalidated cached overviews", log.FieldUserID, userID, log.FieldCount, n)
	}
}

func overviewKey(userID string, year, month int) string {
	return fmt.Sprintf("%s:%04d-%02d", userID, year, month)
}

func typed[T core.Record](recs []core.Record) []T {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		if t, ok := r.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
