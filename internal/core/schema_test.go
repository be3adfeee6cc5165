package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func problems(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr.Problems
}

func TestDecodeTransactionDefaultsDate(t *testing.T) {
	rec, err := Decode(KindTransaction, Fields{
		"amount":      json.Number("50"),
		"description": "Lunch",
		"type":        "expense",
		"category":    "food",
	}, day)
	require.NoError(t, err)

	tx := rec.(*Transaction)
	assert.Equal(t, day, tx.Date)
	assert.Equal(t, int64(5000), tx.Amount.Cents)
	assert.Equal(t, Expense, tx.Type)
}

func TestDecodeSavingsDefaultsCurrentAmount(t *testing.T) {
	rec, err := Decode(KindSavings, Fields{"name": "Vacation", "targetAmount": 1000.0}, day)
	require.NoError(t, err)

	g := rec.(*SavingsGoal)
	assert.Equal(t, "Vacation", g.Name)
	assert.Equal(t, int64(100000), g.TargetAmount.Cents)
	assert.True(t, g.CurrentAmount.IsZero())
}

func TestDecodeBillDefaultsRecurring(t *testing.T) {
	rec, err := Decode(KindBill, Fields{"name": "Rent", "dueDate": "2025-04-01", "amount": "900"}, day)
	require.NoError(t, err)

	b := rec.(*Bill)
	assert.True(t, b.IsRecurring)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), b.DueDate)

	rec, err = Decode(KindBill, Fields{"name": "Gym", "dueDate": "2025-04-01", "amount": "30", "isRecurring": false}, day)
	require.NoError(t, err)
	assert.False(t, rec.(*Bill).IsRecurring)
}

func TestDecodeReportsEveryProblem(t *testing.T) {
	_, err := Decode(KindTransaction, Fields{
		"amount": true,
		"type":   "expense",
		"date":   "yesterday",
		"color":  "red",
		"userId": "someone-else",
	}, day)
	p := problems(t, err)

	assert.Equal(t, "required", p["description"])
	assert.Equal(t, "required", p["category"])
	assert.Contains(t, p["amount"], "invalid type")
	assert.Contains(t, p, "date")
	assert.Equal(t, "unknown field", p["color"])
	assert.Equal(t, "is read-only", p["userId"])
}

func TestApplyPatch(t *testing.T) {
	g := &SavingsGoal{Meta: Meta{ID: "g1", UserID: "u1"}, Name: "Vacation", TargetAmount: NewMoney(1000, 0)}

	require.NoError(t, ApplyPatch(g, Fields{"currentAmount": json.Number("1000")}, day))
	assert.Equal(t, int64(100000), g.CurrentAmount.Cents)
	assert.Equal(t, int64(100000), g.TargetAmount.Cents)

	p := problems(t, ApplyPatch(g, Fields{"userId": "u2"}, day))
	assert.Contains(t, p, "userId")
	assert.Equal(t, "u1", g.UserID)

	p = problems(t, ApplyPatch(g, Fields{"name": nil}, day))
	assert.Contains(t, p, "name")

	p = problems(t, ApplyPatch(g, Fields{}, day))
	assert.Contains(t, p, "patch")
}

func TestApplyPatchNullResetsToDefaultAtNow(t *testing.T) {
	tx := &Transaction{Meta: Meta{ID: "t1", UserID: "u1"}, Amount: NewMoney(5, 0), Description: "Coffee", Type: Expense, Category: "food", Date: day}
	later := day.Add(36 * time.Hour)

	require.NoError(t, ApplyPatch(tx, Fields{"date": nil}, later))
	assert.Equal(t, later, tx.Date)
}

func TestApplyPatchIsAllOrNothing(t *testing.T) {
	b := &Bill{Meta: Meta{ID: "b1", UserID: "u1"}, Name: "Rent", Amount: NewMoney(900, 0), DueDate: day, IsRecurring: true}

	err := ApplyPatch(b, Fields{"name": "Mortgage", "amount": []int{1}}, day)
	problems(t, err)
	assert.Equal(t, "Rent", b.Name, "no field may change when one is invalid")
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-03-14T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, day, got)

	got, err = ParseDate("2025-03-14T09:30")
	require.NoError(t, err)
	assert.Equal(t, day, got)

	_, err = ParseDate("14/03/2025")
	assert.Error(t, err)
}
