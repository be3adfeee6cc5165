package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// SavingsProgress aggregates every savings goal of a user.
type SavingsProgress struct {
	Goals   int   `json:"goals"`
	Target  Money `json:"target"`
	Current Money `json:"current"`
}

// MonthOverview is a compact per-user summary for a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Income     Money            `json:"income"`
	Expenses   Money            `json:"expenses"`
	Net        Money            `json:"net"`
	ByCategory []CategoryAmount `json:"byCategory"`
	Savings    SavingsProgress  `json:"savings"`
	BillsDue   []Bill           `json:"billsDue"`
	BillsTotal Money            `json:"billsTotal"`
}

// BuildMonthOverview aggregates already-scoped records. Transactions and
// bills are expected to fall inside the month; goals are taken as a whole.
// Amounts are summed by magnitude so signed and unsigned expenses add up the
// same way.
func BuildMonthOverview(year, month int, txs []*Transaction, goals []*SavingsGoal, bills []*Bill) MonthOverview {
	ov := MonthOverview{Year: year, Month: month, ByCategory: []CategoryAmount{}, BillsDue: []Bill{}}

	byCat := map[string]Money{}
	for _, t := range txs {
		switch t.Type {
		case Income:
			ov.Income = ov.Income.Add(t.Amount.Abs())
		case Expense:
			ov.Expenses = ov.Expenses.Add(t.Amount.Abs())
			byCat[t.Category] = byCat[t.Category].Add(t.Amount.Abs())
		}
	}
	ov.Net = ov.Income.Sub(ov.Expenses)

	for name, amt := range byCat {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		if ov.ByCategory[i].Amount.Cents == ov.ByCategory[j].Amount.Cents {
			return ov.ByCategory[i].Name < ov.ByCategory[j].Name
		}
		return ov.ByCategory[i].Amount.Cents > ov.ByCategory[j].Amount.Cents
	})

	for _, g := range goals {
		ov.Savings.Goals++
		ov.Savings.Target = ov.Savings.Target.Add(g.TargetAmount)
		ov.Savings.Current = ov.Savings.Current.Add(g.CurrentAmount)
	}

	for _, b := range bills {
		ov.BillsDue = append(ov.BillsDue, *b)
		ov.BillsTotal = ov.BillsTotal.Add(b.Amount)
	}
	sort.Slice(ov.BillsDue, func(i, j int) bool { return ov.BillsDue[i].DueDate.Before(ov.BillsDue[j].DueDate) })

	return ov
}
