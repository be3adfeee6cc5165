package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(id, user string, created, date time.Time, typ TransactionType, cat string) *Transaction {
	return &Transaction{
		Meta:        Meta{ID: id, UserID: user, CreatedAt: created, UpdatedAt: created},
		Amount:      NewMoney(10, 0),
		Description: id,
		Type:        typ,
		Category:    cat,
		Date:        date,
	}
}

func ids(rs []Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Header().ID
	}
	return out
}

func TestFilterApply(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		tx("a", "u1", base, base.AddDate(0, 0, 10), Expense, "food"),
		tx("b", "u1", base.Add(time.Hour), base.AddDate(0, 0, 2), Income, "salary"),
		tx("c", "u2", base.Add(2*time.Hour), base.AddDate(0, 0, 3), Expense, "food"),
		tx("d", "u1", base.Add(3*time.Hour), base.AddDate(0, 1, 0), Expense, "Food"),
	}

	t.Run("owner only, newest first", func(t *testing.T) {
		assert.Equal(t, []string{"d", "b", "a"}, ids(Filter{Order: OrderCreatedDesc}.Apply("u1", records)))
	})
	t.Run("oldest first", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b", "d"}, ids(Filter{Order: OrderCreatedAsc}.Apply("u1", records)))
	})
	t.Run("by date", func(t *testing.T) {
		assert.Equal(t, []string{"b", "a", "d"}, ids(Filter{Order: OrderDateAsc}.Apply("u1", records)))
	})
	t.Run("category is case-insensitive", func(t *testing.T) {
		got := Filter{Category: "food", Order: OrderCreatedDesc}.Apply("u1", records)
		assert.Equal(t, []string{"d", "a"}, ids(got))
	})
	t.Run("date range", func(t *testing.T) {
		from, to := MonthRange(2025, 1)
		got := Filter{From: from, To: to, Order: OrderCreatedDesc}.Apply("u1", records)
		assert.Equal(t, []string{"b", "a"}, ids(got))
	})
	t.Run("type and limit", func(t *testing.T) {
		got := Filter{Type: Expense, Limit: 1, Order: OrderCreatedDesc}.Apply("u1", records)
		assert.Equal(t, []string{"d"}, ids(got))
	})
}

func TestFilterNormalize(t *testing.T) {
	f, err := Filter{}.Normalize(KindBill)
	require.NoError(t, err)
	assert.Equal(t, OrderCreatedDesc, f.Order)

	_, err = Filter{Category: "food"}.Normalize(KindSavings)
	assert.Error(t, err)

	_, err = Filter{Type: "gift"}.Normalize(KindTransaction)
	assert.Error(t, err)

	now := time.Now()
	_, err = Filter{From: now, To: now.Add(-time.Hour)}.Normalize(KindTransaction)
	assert.Error(t, err)

	_, err = Filter{Order: "random"}.Normalize(KindTransaction)
	assert.Error(t, err)
}

func TestMonthRange(t *testing.T) {
	from, to := MonthRange(2024, 2)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 29, to.Day())
	assert.Equal(t, time.February, to.Month())
}

func TestBuildMonthOverview(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	salary := tx("s", "u1", base, base, Income, "salary")
	salary.Amount = NewMoney(2000, 0)
	rent := tx("r", "u1", base, base, Expense, "housing")
	rent.Amount = NewMoney(-800, 0)
	food := tx("f", "u1", base, base, Expense, "food")
	food.Amount = NewMoney(120, 50)

	goals := []*SavingsGoal{
		{Name: "Car", TargetAmount: NewMoney(5000, 0), CurrentAmount: NewMoney(500, 0)},
		{Name: "Trip", TargetAmount: NewMoney(1000, 0)},
	}
	bills := []*Bill{
		{Name: "Power", DueDate: base.AddDate(0, 0, 20), Amount: NewMoney(60, 0)},
		{Name: "Phone", DueDate: base.AddDate(0, 0, 5), Amount: NewMoney(20, 0)},
	}

	ov := BuildMonthOverview(2025, 5, []*Transaction{salary, rent, food}, goals, bills)

	assert.Equal(t, "2000.00", ov.Income.String())
	assert.Equal(t, "920.50", ov.Expenses.String())
	assert.Equal(t, "1079.50", ov.Net.String())
	require.Len(t, ov.ByCategory, 2)
	assert.Equal(t, "housing", ov.ByCategory[0].Name)
	assert.Equal(t, 2, ov.Savings.Goals)
	assert.Equal(t, "6000.00", ov.Savings.Target.String())
	assert.Equal(t, "Phone", ov.BillsDue[0].Name)
	assert.Equal(t, "80.00", ov.BillsTotal.String())
}
