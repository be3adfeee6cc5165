package sheets

import (
	"time"

	"fintrack/internal/core"
)

const (
	dateLayout  = "2006-01-02"
	stampLayout = time.RFC3339
)

// Tab returns the name of the tab records of kind k are mirrored to.
func Tab(k core.Kind) string {
	switch k {
	case core.KindTransaction:
		return "Transactions"
	case core.KindSavings:
		return "Savings"
	case core.KindBill:
		return "Bills"
	}
	return string(k)
}

// Header returns the header row of the tab for kind k.
func Header(k core.Kind) []any {
	switch k {
	case core.KindTransaction:
		return []any{"ID", "User", "Date", "Type", "Category", "Description", "Amount", "Created", "Updated"}
	case core.KindSavings:
		return []any{"ID", "User", "Name", "Target", "Current", "Progress", "Created", "Updated"}
	case core.KindBill:
		return []any{"ID", "User", "Name", "Due", "Amount", "Recurring", "Created", "Updated"}
	}
	return []any{"ID"}
}

// Row renders rec as a sheet row. The first cell is always the record id.
func Row(rec core.Record) []any {
	m := rec.Header()
	lead := []any{m.ID, m.UserID}
	tail := []any{m.CreatedAt.UTC().Format(stampLayout), m.UpdatedAt.UTC().Format(stampLayout)}

	var body []any
	switch r := rec.(type) {
	case *core.Transaction:
		body = []any{r.Date.UTC().Format(dateLayout), string(r.Type), r.Category, r.Description, r.Amount.Euros()}
	case *core.SavingsGoal:
		body = []any{r.Name, r.TargetAmount.Euros(), r.CurrentAmount.Euros(), r.Progress()}
	case *core.Bill:
		body = []any{r.Name, r.DueDate.UTC().Format(dateLayout), r.Amount.Euros(), r.IsRecurring}
	}

	out := make([]any, 0, len(lead)+len(body)+len(tail))
	out = append(out, lead...)
	out = append(out, body...)
	return append(out, tail...)
}

