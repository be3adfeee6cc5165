package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindTransaction Kind = "transactions"
	KindSavings     Kind = "savings"
	KindBill        Kind = "bills"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const maxTextLength = 200

type (
	// Kind names a record collection.
	Kind string

	TransactionType string

	Role string

	// Meta carries the fields every stored record has. UserID is set once at
	// creation and never changes afterwards.
	Meta struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Transaction struct {
		Meta
		Amount      Money           `json:"amount"`
		Description string          `json:"description"`
		Type        TransactionType `json:"type"`
		Category    string          `json:"category"`
		Date        time.Time       `json:"date"`
	}

	SavingsGoal struct {
		Meta
		Name          string `json:"name"`
		TargetAmount  Money  `json:"targetAmount"`
		CurrentAmount Money  `json:"currentAmount"`
	}

	Bill struct {
		Meta
		Name        string    `json:"name"`
		DueDate     time.Time `json:"dueDate"`
		Amount      Money     `json:"amount"`
		IsRecurring bool      `json:"isRecurring"`
	}

	User struct {
		ID           string    `json:"id"`
		Username     string    `json:"username"`
		PasswordHash string    `json:"-"`
		Role         Role      `json:"role"`
		CreatedAt    time.Time `json:"createdAt"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	// UserView is the shape of a user handed to admin listings. It has no
	// credential field at all, so it cannot leak one through serialization.
	UserView struct {
		ID        string    `json:"id"`
		Username  string    `json:"username"`
		Role      Role      `json:"role"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Session struct {
		Token     string
		UserID    string
		ExpiresAt time.Time
	}
)

// Record is implemented by *Transaction, *SavingsGoal and *Bill.
type Record interface {
	Kind() Kind
	Header() *Meta
	// EffectiveDate is the date filters and date ordering apply to.
	EffectiveDate() time.Time
	Validate(p Policy) error
}

var (
	ErrEmptyDescription = errors.New("must not be empty")
	ErrTooLong          = fmt.Errorf("must be at most %d characters", maxTextLength)
	ErrInvalidAmount    = errors.New("must be a non-zero amount")
	ErrNotPositive      = errors.New("must be positive")
	ErrNegative         = errors.New("must not be negative")
	ErrZeroDate         = errors.New("must be a valid date")
	ErrInvalidEnum      = errors.New("invalid value")
)

// Kinds returns every record collection.
func Kinds() []Kind {
	return []Kind{KindTransaction, KindSavings, KindBill}
}

func (k Kind) IsValid() bool {
	switch k {
	case KindTransaction, KindSavings, KindBill:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ParseKind maps a collection name to its Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", &NotFoundError{Kind: "collection", ID: s}
	}
	return k, nil
}

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Header gives access to the shared record fields.
func (m *Meta) Header() *Meta { return m }

// Stamp sets the creation and update timestamps for a new record.
func (m *Meta) Stamp(now time.Time) {
	now = now.UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// Touch marks the record as updated at now.
func (m *Meta) Touch(now time.Time) {
	m.UpdatedAt = now.UTC()
}

func (m *Meta) validate(verr *ValidationError) {
	if strings.TrimSpace(m.UserID) == "" {
		verr.Add("userId", "required")
	}
}

func (*Transaction) Kind() Kind                 { return KindTransaction }
func (t *Transaction) EffectiveDate() time.Time { return t.Date }

func (t *Transaction) Validate(p Policy) error {
	verr := &ValidationError{}
	t.Meta.validate(verr)
	validateText(verr, "description", t.Description)
	validateText(verr, "category", t.Category)
	if !t.Type.IsValid() {
		verr.Add("type", fmt.Sprintf("%v: must be %q or %q", ErrInvalidEnum, Income, Expense))
	}
	if t.Amount.IsZero() {
		verr.Add("amount", ErrInvalidAmount.Error())
	} else if p.EnforceAmountSign && t.Type.IsValid() {
		switch {
		case t.Type == Income && t.Amount.Cents < 0:
			verr.Add("amount", "must be positive for income")
		case t.Type == Expense && t.Amount.Cents > 0:
			verr.Add("amount", "must be negative for expense")
		}
	}
	if t.Date.IsZero() {
		verr.Add("date", ErrZeroDate.Error())
	}
	return verr.OrNil()
}

func (*SavingsGoal) Kind() Kind                 { return KindSavings }
func (g *SavingsGoal) EffectiveDate() time.Time { return g.CreatedAt }

func (g *SavingsGoal) Validate(p Policy) error {
	verr := &ValidationError{}
	g.Meta.validate(verr)
	validateText(verr, "name", g.Name)
	if g.TargetAmount.Cents <= 0 {
		verr.Add("targetAmount", ErrNotPositive.Error())
	}
	if g.CurrentAmount.Cents < 0 {
		verr.Add("currentAmount", ErrNegative.Error())
	}
	if p.CapSavingsAtTarget && g.TargetAmount.Cents > 0 && g.CurrentAmount.Cents > g.TargetAmount.Cents {
		verr.Add("currentAmount", "must not exceed targetAmount")
	}
	return verr.OrNil()
}

// Progress returns the completed share of the goal in the range [0, 1].
func (g *SavingsGoal) Progress() float64 {
	if g.TargetAmount.Cents <= 0 {
		return 0
	}
	p := float64(g.CurrentAmount.Cents) / float64(g.TargetAmount.Cents)
	if p > 1 {
		return 1
	}
	return p
}

func (*Bill) Kind() Kind                 { return KindBill }
func (b *Bill) EffectiveDate() time.Time { return b.DueDate }

func (b *Bill) Validate(_ Policy) error {
	verr := &ValidationError{}
	b.Meta.validate(verr)
	validateText(verr, "name", b.Name)
	if b.Amount.Cents <= 0 {
		verr.Add("amount", ErrNotPositive.Error())
	}
	if b.DueDate.IsZero() {
		verr.Add("dueDate", ErrZeroDate.Error())
	}
	return verr.OrNil()
}

// View strips the credential from a user.
func (u User) View() UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func validateText(verr *ValidationError, field, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		verr.Add(field, ErrEmptyDescription.Error())
		return
	}
	if len(v) > maxTextLength {
		verr.Add(field, ErrTooLong.Error())
	}
}

// NewRecord returns an empty record of the given kind.
func NewRecord(k Kind) (Record, error) {
	switch k {
	case KindTransaction:
		return &Transaction{}, nil
	case KindSavings:
		return &SavingsGoal{}, nil
	case KindBill:
		return &Bill{}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", k)
}
