package mongo

import (
	"fmt"
	"time"

	"fintrack/internal/core"

	"go.mongodb.org/mongo-driver/bson"
)

// Document shapes. Money is stored as integer cents. Envelope is exported
// because the bson codec skips unexported embedded structs.
type (
	Envelope struct {
		ID        string    `bson:"_id"`
		UserID    string    `bson:"userId"`
		CreatedAt time.Time `bson:"createdAt"`
		UpdatedAt time.Time `bson:"updatedAt"`
	}

	transactionDoc struct {
		Envelope    `bson:",inline"`
		AmountCents int64     `bson:"amountCents"`
		Description string    `bson:"description"`
		Type        string    `bson:"type"`
		Category    string    `bson:"category"`
		Date        time.Time `bson:"date"`
	}

	savingsDoc struct {
		Envelope     `bson:",inline"`
		Name         string `bson:"name"`
		TargetCents  int64  `bson:"targetAmountCents"`
		CurrentCents int64  `bson:"currentAmountCents"`
	}

	billDoc struct {
		Envelope    `bson:",inline"`
		Name        string    `bson:"name"`
		DueDate     time.Time `bson:"dueDate"`
		AmountCents int64     `bson:"amountCents"`
		IsRecurring bool      `bson:"isRecurring"`
	}

	userDoc struct {
		ID           string    `bson:"_id"`
		Username     string    `bson:"username"`
		PasswordHash string    `bson:"passwordHash"`
		Role         string    `bson:"role"`
		CreatedAt    time.Time `bson:"createdAt"`
		UpdatedAt    time.Time `bson:"updatedAt"`
	}

	sessionDoc struct {
		Token     string    `bson:"_id"`
		UserID    string    `bson:"userId"`
		ExpiresAt time.Time `bson:"expiresAt"`
	}
)

func fromMeta(m *core.Meta) Envelope {
	return Envelope{ID: m.ID, UserID: m.UserID, CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()}
}

func (m Envelope) core() core.Meta {
	return core.Meta{ID: m.ID, UserID: m.UserID, CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()}
}

func toDoc(rec core.Record) (any, error) {
	switch r := rec.(type) {
	case *core.Transaction:
		return transactionDoc{
			Envelope:    fromMeta(&r.Meta),
			AmountCents: r.Amount.Cents,
			Description: r.Description,
			Type:        string(r.Type),
			Category:    r.Category,
			Date:        r.Date.UTC(),
		}, nil
	case *core.SavingsGoal:
		return savingsDoc{
			Envelope:     fromMeta(&r.Meta),
			Name:         r.Name,
			TargetCents:  r.TargetAmount.Cents,
			CurrentCents: r.CurrentAmount.Cents,
		}, nil
	case *core.Bill:
		return billDoc{
			Envelope:    fromMeta(&r.Meta),
			Name:        r.Name,
			DueDate:     r.DueDate.UTC(),
			AmountCents: r.Amount.Cents,
			IsRecurring: r.IsRecurring,
		}, nil
	}
	return nil, fmt.Errorf("unsupported record type %T", rec)
}

// toSet turns a document into a $set payload without the immutable fields.
func toSet(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "_id")
	delete(m, "userId")
	delete(m, "createdAt")
	return m, nil
}

func (d transactionDoc) record() *core.Transaction {
	return &core.Transaction{
		Meta:        d.Envelope.core(),
		Amount:      core.Money{Cents: d.AmountCents},
		Description: d.Description,
		Type:        core.TransactionType(d.Type),
		Category:    d.Category,
		Date:        d.Date.UTC(),
	}
}

func (d savingsDoc) record() *core.SavingsGoal {
	return &core.SavingsGoal{
		Meta:          d.Envelope.core(),
		Name:          d.Name,
		TargetAmount:  core.Money{Cents: d.TargetCents},
		CurrentAmount: core.Money{Cents: d.CurrentCents},
	}
}

func (d billDoc) record() *core.Bill {
	return &core.Bill{
		Meta:        d.Envelope.core(),
		Name:        d.Name,
		DueDate:     d.DueDate.UTC(),
		Amount:      core.Money{Cents: d.AmountCents},
		IsRecurring: d.IsRecurring,
	}
}

func fromUser(u core.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
}

func (d userDoc) user() core.User {
	return core.User{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Role:         core.Role(d.Role),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

// decoder is satisfied by *mongo.SingleResult and *mongo.Cursor.
type decoder interface {
	Decode(v any) error
}

func decodeRecord(kind core.Kind, d decoder) (core.Record, error) {
	switch kind {
	case core.KindTransaction:
		var doc transactionDoc
		if err := d.Decode(&doc); err != nil {
			return nil, err
		}
		return doc.record(), nil
	case core.KindSavings:
		var doc savingsDoc
		if err := d.Decode(&doc); err != nil {
			return nil, err
		}
		return doc.record(), nil
	case core.KindBill:
		var doc billDoc
		if err := d.Decode(&doc); err != nil {
			return nil, err
		}
		return doc.record(), nil
	}
	return nil, fmt.Errorf("unsupported record kind %q", kind)
}
