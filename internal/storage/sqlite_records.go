package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
)

// table maps a record kind to its SQL table. Columns are selected in the order
// id, user_id, fields..., created_at.
type table struct {
	name    string
	dateCol string
	fields  []string
	values  func(core.Record) []any
	scan    func(scanner) (core.Record, error)
}

var tables = map[core.Kind]table{
	core.KindTransaction: {
		name:    "transactions",
		dateCol: "date",
		fields:  []string{"amount_cents", "description", "type", "category", "date", "updated_at"},
		values: func(rec core.Record) []any {
			t := rec.(*core.Transaction)
			return []any{t.Amount.Cents, t.Description, string(t.Type), t.Category, formatTime(t.Date), formatTime(t.UpdatedAt)}
		},
		scan: func(s scanner) (core.Record, error) {
			var (
				t                      core.Transaction
				date, updated, created string
			)
			if err := s.Scan(&t.ID, &t.UserID, &t.Amount.Cents, &t.Description, &t.Type, &t.Category, &date, &updated, &created); err != nil {
				return nil, err
			}
			ts := timeScan{}
			t.Date = ts.parse(date)
			t.UpdatedAt = ts.parse(updated)
			t.CreatedAt = ts.parse(created)
			return &t, ts.err()
		},
	},
	core.KindSavings: {
		name:    "savings",
		dateCol: "created_at",
		fields:  []string{"name", "target_cents", "current_cents", "updated_at"},
		values: func(rec core.Record) []any {
			g := rec.(*core.SavingsGoal)
			return []any{g.Name, g.TargetAmount.Cents, g.CurrentAmount.Cents, formatTime(g.UpdatedAt)}
		},
		scan: func(s scanner) (core.Record, error) {
			var (
				g                core.SavingsGoal
				updated, created string
			)
			if err := s.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount.Cents, &g.CurrentAmount.Cents, &updated, &created); err != nil {
				return nil, err
			}
			ts := timeScan{}
			g.UpdatedAt = ts.parse(updated)
			g.CreatedAt = ts.parse(created)
			return &g, ts.err()
		},
	},
	core.KindBill: {
		name:    "bills",
		dateCol: "due_date",
		fields:  []string{"name", "due_date", "amount_cents", "is_recurring", "updated_at"},
		values: func(rec core.Record) []any {
			b := rec.(*core.Bill)
			return []any{b.Name, formatTime(b.DueDate), b.Amount.Cents, b.IsRecurring, formatTime(b.UpdatedAt)}
		},
		scan: func(s scanner) (core.Record, error) {
			var (
				b                     core.Bill
				due, updated, created string
			)
			if err := s.Scan(&b.ID, &b.UserID, &b.Name, &due, &b.Amount.Cents, &b.IsRecurring, &updated, &created); err != nil {
				return nil, err
			}
			ts := timeScan{}
			b.DueDate = ts.parse(due)
			b.UpdatedAt = ts.parse(updated)
			b.CreatedAt = ts.parse(created)
			return &b, ts.err()
		},
	},
}

func tableFor(k core.Kind) (table, error) {
	t, ok := tables[k]
	if !ok {
		return table{}, fmt.Errorf("no table for kind %q", k)
	}
	return t, nil
}

func (t table) columns() string {
	return "id, user_id, " + strings.Join(t.fields, ", ") + ", created_at"
}

func (r *SQLiteRepository) InsertRecord(ctx context.Context, rec core.Record) error {
	t, err := tableFor(rec.Kind())
	if err != nil {
		return err
	}
	h := rec.Header()
	args := append([]any{h.ID, h.UserID}, t.values(rec)...)
	args = append(args, formatTime(h.CreatedAt))
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")

	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, t.name, t.columns(), placeholders), args...)
	return core.Persistence("insert "+t.name, err)
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, kind core.Kind, id string) (core.Record, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, t.columns(), t.name), id)
	rec, err := t.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: t.name, ID: id}
	}
	if err != nil {
		return nil, core.Persistence("get "+t.name, err)
	}
	return rec, nil
}

// ListRecords pushes the whole filter down to SQL.
func (r *SQLiteRepository) ListRecords(ctx context.Context, userID string, kind core.Kind, f core.Filter) ([]core.Record, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var q strings.Builder
	fmt.Fprintf(&q, `SELECT %s FROM %s WHERE user_id = ?`, t.columns(), t.name)
	args := []any{userID}
	if !f.From.IsZero() {
		fmt.Fprintf(&q, ` AND %s >= ?`, t.dateCol)
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		fmt.Fprintf(&q, ` AND %s <= ?`, t.dateCol)
		args = append(args, formatTime(f.To))
	}
	if kind == core.KindTransaction {
		if f.Category != "" {
			q.WriteString(` AND category = ? COLLATE NOCASE`)
			args = append(args, f.Category)
		}
		if f.Type != "" {
			q.WriteString(` AND type = ?`)
			args = append(args, string(f.Type))
		}
	}
	q.WriteString(` ORDER BY ` + orderClause(f.Order, t.dateCol))
	if f.Limit > 0 {
		q.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, core.Persistence("list "+t.name, err)
	}
	defer rows.Close()

	out := []core.Record{}
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, core.Persistence("scan "+t.name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list "+t.name, err)
	}
	return out, nil
}

func orderClause(o core.Order, dateCol string) string {
	switch o {
	case core.OrderCreatedAsc:
		return "created_at ASC, id ASC"
	case core.OrderDateDesc:
		return dateCol + " DESC, id DESC"
	case core.OrderDateAsc:
		return dateCol + " ASC, id ASC"
	}
	return "created_at DESC, id DESC"
}

// ReplaceRecord overwrites the mutable columns of rec. The statement matches
// on both id and owner.
func (r *SQLiteRepository) ReplaceRecord(ctx context.Context, rec core.Record) error {
	t, err := tableFor(rec.Kind())
	if err != nil {
		return err
	}
	sets := make([]string, len(t.fields))
	for i, f := range t.fields {
		sets[i] = f + " = ?"
	}
	h := rec.Header()
	args := append(t.values(rec), h.ID, h.UserID)

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = ? AND user_id = ?`, t.name, strings.Join(sets, ", ")), args...)
	return affectedOne(res, err, "update "+t.name, t.name, h.ID)
}

func (r *SQLiteRepository) DeleteRecord(ctx context.Context, userID string, kind core.Kind, id string) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, t.name), id, userID)
	return affectedOne(res, err, "delete "+t.name, t.name, id)
}

func (r *SQLiteRepository) ListBillsDueBefore(ctx context.Context, before time.Time) ([]*core.Bill, error) {
	t := tables[core.KindBill]
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM bills WHERE due_date <= ? ORDER BY due_date ASC, id ASC`, t.columns()),
		formatTime(before))
	if err != nil {
		return nil, core.Persistence("list due bills", err)
	}
	defer rows.Close()

	bills := []*core.Bill{}
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, core.Persistence("scan bills", err)
		}
		bills = append(bills, rec.(*core.Bill))
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list due bills", err)
	}
	return bills, nil
}
