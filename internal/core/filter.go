package core

import (
	"sort"
	"strings"
	"time"
)

// Order selects how listed records are sorted.
type Order string

const (
	OrderCreatedDesc Order = "created_desc"
	OrderCreatedAsc  Order = "created_asc"
	OrderDateDesc    Order = "date_desc"
	OrderDateAsc     Order = "date_asc"
)

func (o Order) IsValid() bool {
	switch o {
	case OrderCreatedDesc, OrderCreatedAsc, OrderDateDesc, OrderDateAsc:
		return true
	}
	return false
}

// Filter narrows a listing. From and To are inclusive bounds on the record's
// effective date; zero values leave that side open. Category and Type only
// apply to transactions.
type Filter struct {
	From     time.Time
	To       time.Time
	Category string
	Type     TransactionType
	Order    Order
	Limit    int
}

// Normalize fills defaults and checks the filter against kind k.
func (f Filter) Normalize(k Kind) (Filter, error) {
	verr := &ValidationError{}
	if f.Order == "" {
		f.Order = OrderCreatedDesc
	}
	if !f.Order.IsValid() {
		verr.Add("order", ErrInvalidEnum.Error())
	}
	if k != KindTransaction {
		if f.Category != "" {
			verr.Add("category", "only applies to transactions")
		}
		if f.Type != "" {
			verr.Add("type", "only applies to transactions")
		}
	} else if f.Type != "" && !f.Type.IsValid() {
		verr.Add("type", ErrInvalidEnum.Error())
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		verr.Add("to", "must not be before from")
	}
	if f.Limit < 0 {
		verr.Add("limit", ErrNegative.Error())
	}
	f.Category = strings.TrimSpace(f.Category)
	return f, verr.OrNil()
}

// Matches reports whether r passes the date, category and type constraints.
// Ownership is not part of the filter.
func (f Filter) Matches(r Record) bool {
	d := r.EffectiveDate()
	if !f.From.IsZero() && d.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.After(f.To) {
		return false
	}
	if t, ok := r.(*Transaction); ok {
		if f.Category != "" && !strings.EqualFold(t.Category, f.Category) {
			return false
		}
		if f.Type != "" && t.Type != f.Type {
			return false
		}
	}
	return true
}

// Apply returns the records of userID that match f, sorted and truncated.
// It is used by backends that cannot push the filter down to the store.
func (f Filter) Apply(userID string, in []Record) []Record {
	out := make([]Record, 0, len(in))
	for _, r := range in {
		if r.Header().UserID != userID || !f.Matches(r) {
			continue
		}
		out = append(out, r)
	}
	SortRecords(out, f.Order)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// SortRecords sorts rs in place. Ties are broken by id so the result is stable
// across backends.
func SortRecords(rs []Record, o Order) {
	key := func(r Record) time.Time { return r.Header().CreatedAt }
	if o == OrderDateAsc || o == OrderDateDesc {
		key = Record.EffectiveDate
	}
	desc := o != OrderCreatedAsc && o != OrderDateAsc
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := key(rs[i]), key(rs[j])
		if a.Equal(b) {
			if desc {
				return rs[i].Header().ID > rs[j].Header().ID
			}
			return rs[i].Header().ID < rs[j].Header().ID
		}
		if desc {
			return a.After(b)
		}
		return a.Before(b)
	})
}

// MonthRange returns the first and last instant of the given month in UTC.
func MonthRange(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0).Add(-time.Nanosecond)
}
