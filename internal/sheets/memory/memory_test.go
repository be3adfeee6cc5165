package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

func bill(id, name string) *core.Bill {
	b := &core.Bill{Name: name, Amount: core.Money{Cents: 1000}, IsRecurring: true}
	b.ID = id
	b.UserID = "u1"
	b.DueDate = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	return b
}

func TestMirrorUpsertReplacesByID(t *testing.T) {
	m := New()
	ctx := context.Background()

	if err := m.Upsert(ctx, bill("a", "Rent")); err != nil {
		t.Fatal(err)
	}
	if err := m.Upsert(ctx, bill("b", "Gym")); err != nil {
		t.Fatal(err)
	}
	if err := m.Upsert(ctx, bill("a", "Rent v2")); err != nil {
		t.Fatal(err)
	}

	rows := m.Rows(core.KindBill)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "a" || rows[0][2] != "Rent v2" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if len(rows[0]) != len(sheets.Header(core.KindBill)) {
		t.Errorf("row width %d does not match header", len(rows[0]))
	}
}

func TestMirrorDelete(t *testing.T) {
	m := New()
	ctx := context.Background()
	_ = m.Upsert(ctx, bill("a", "Rent"))
	_ = m.Upsert(ctx, bill("b", "Gym"))

	if err := m.Delete(ctx, core.KindBill, "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, core.KindBill, "missing"); err != nil {
		t.Fatalf("deleting a missing row should be a no-op: %v", err)
	}

	rows := m.Rows(core.KindBill)
	if len(rows) != 1 || rows[0][0] != "b" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestMirrorFailWith(t *testing.T) {
	m := New()
	m.FailWith = errors.New("quota exceeded")
	if err := m.Upsert(context.Background(), bill("a", "Rent")); err == nil {
		t.Fatal("expected error")
	}
}
