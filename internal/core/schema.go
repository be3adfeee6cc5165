package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Fields is a candidate record or patch as decoded from a request body.
type Fields map[string]any

// FieldType is the wire type a schema field accepts.
type FieldType int

const (
	FieldString FieldType = iota
	FieldMoney
	FieldTime
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldMoney:
		return "amount"
	case FieldTime:
		return "date"
	case FieldBool:
		return "boolean"
	}
	return "unknown"
}

// Field describes one settable attribute of a record kind.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	// Default supplies the value when the field is omitted on create.
	Default func(now time.Time) any
}

// Schema is the single source of truth for a record kind's field names,
// types and defaults.
type Schema struct {
	Kind   Kind
	Fields []Field
	assign func(r Record, name string, v any)
}

// Fields that belong to the record envelope and can never be set by callers.
var immutableFields = map[string]struct{}{
	"id":        {},
	"userId":    {},
	"createdAt": {},
	"updatedAt": {},
}

var schemas = map[Kind]*Schema{
	KindTransaction: {
		Kind: KindTransaction,
		Fields: []Field{
			{Name: "amount", Type: FieldMoney, Required: true},
			{Name: "description", Type: FieldString, Required: true},
			{Name: "type", Type: FieldString, Required: true},
			{Name: "category", Type: FieldString, Required: true},
			{Name: "date", Type: FieldTime, Default: func(now time.Time) any { return now.UTC() }},
		},
		assign: func(r Record, name string, v any) {
			t := r.(*Transaction)
			switch name {
			case "amount":
				t.Amount = v.(Money)
			case "description":
				t.Description = v.(string)
			case "type":
				t.Type = TransactionType(strings.ToLower(v.(string)))
			case "category":
				t.Category = v.(string)
			case "date":
				t.Date = v.(time.Time)
			}
		},
	},
	KindSavings: {
		Kind: KindSavings,
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true},
			{Name: "targetAmount", Type: FieldMoney, Required: true},
			{Name: "currentAmount", Type: FieldMoney, Default: func(time.Time) any { return Money{} }},
		},
		assign: func(r Record, name string, v any) {
			g := r.(*SavingsGoal)
			switch name {
			case "name":
				g.Name = v.(string)
			case "targetAmount":
				g.TargetAmount = v.(Money)
			case "currentAmount":
				g.CurrentAmount = v.(Money)
			}
		},
	},
	KindBill: {
		Kind: KindBill,
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true},
			{Name: "dueDate", Type: FieldTime, Required: true},
			{Name: "amount", Type: FieldMoney, Required: true},
			{Name: "isRecurring", Type: FieldBool, Default: func(time.Time) any { return true }},
		},
		assign: func(r Record, name string, v any) {
			b := r.(*Bill)
			switch name {
			case "name":
				b.Name = v.(string)
			case "dueDate":
				b.DueDate = v.(time.Time)
			case "amount":
				b.Amount = v.(Money)
			case "isRecurring":
				b.IsRecurring = v.(bool)
			}
		},
	},
}

// SchemaFor returns the schema of kind k.
func SchemaFor(k Kind) (*Schema, error) {
	s, ok := schemas[k]
	if !ok {
		return nil, fmt.Errorf("no schema for kind %q", k)
	}
	return s, nil
}

func (s *Schema) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Decode validates a candidate record, applies defaults for omitted optional
// fields and returns the typed record. The envelope (id, owner, timestamps)
// is left for the caller to fill in.
func Decode(k Kind, in Fields, now time.Time) (Record, error) {
	s, err := SchemaFor(k)
	if err != nil {
		return nil, err
	}
	rec, err := NewRecord(k)
	if err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	s.rejectUnknown(in, verr)
	for _, f := range s.Fields {
		raw, present := in[f.Name]
		if !present || raw == nil {
			switch {
			case f.Required:
				verr.Add(f.Name, "required")
			case f.Default != nil:
				s.assign(rec, f.Name, f.Default(now))
			}
			continue
		}
		v, err := convert(f, raw)
		if err != nil {
			verr.Add(f.Name, err.Error())
			continue
		}
		s.assign(rec, f.Name, v)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return rec, nil
}

// ApplyPatch type-checks patch against the schema of rec and applies it.
// Envelope fields are immutable. A null optional field is reset to its
// default as of now. The patched record is not re-validated here.
func ApplyPatch(rec Record, patch Fields, now time.Time) error {
	s, err := SchemaFor(rec.Kind())
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return &ValidationError{Problems: map[string]string{"patch": "must not be empty"}}
	}

	verr := &ValidationError{}
	s.rejectUnknown(patch, verr)
	converted := make(map[string]any, len(patch))
	for _, f := range s.Fields {
		raw, present := patch[f.Name]
		if !present {
			continue
		}
		if raw == nil {
			if f.Required {
				verr.Add(f.Name, "must not be null")
			} else if f.Default != nil {
				converted[f.Name] = f.Default(now)
			}
			continue
		}
		v, err := convert(f, raw)
		if err != nil {
			verr.Add(f.Name, err.Error())
			continue
		}
		converted[f.Name] = v
	}
	if err := verr.OrNil(); err != nil {
		return err
	}
	for name, v := range converted {
		s.assign(rec, name, v)
	}
	return nil
}

func (s *Schema) rejectUnknown(in Fields, verr *ValidationError) {
	for name := range in {
		if _, ok := immutableFields[name]; ok {
			verr.Add(name, "is read-only")
			continue
		}
		if _, ok := s.field(name); !ok {
			verr.Add(name, "unknown field")
		}
	}
}

func convert(f Field, raw any) (any, error) {
	switch f.Type {
	case FieldString:
		s, ok := raw.(string)
		if !ok {
			return nil, typeMismatch(f, raw)
		}
		return strings.TrimSpace(s), nil
	case FieldMoney:
		return toMoney(f, raw)
	case FieldTime:
		return toTime(f, raw)
	case FieldBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, typeMismatch(f, raw)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unsupported field type %v", f.Type)
}

func toMoney(f Field, raw any) (Money, error) {
	switch v := raw.(type) {
	case Money:
		return v, nil
	case json.Number:
		return ParseMoney(v.String())
	case string:
		return ParseMoney(v)
	case float64:
		return ParseMoney(fmt.Sprintf("%v", v))
	case int:
		return Money{Cents: int64(v) * 100}, nil
	case int64:
		return Money{Cents: v * 100}, nil
	}
	return Money{}, typeMismatch(f, raw)
}

// Accepted date layouts, most specific first.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

func toTime(f Field, raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, ErrZeroDate
		}
		return v.UTC(), nil
	case string:
		return ParseDate(v)
	}
	return time.Time{}, typeMismatch(f, raw)
}

// ParseDate parses an RFC 3339 timestamp or a plain YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrZeroDate
}

func typeMismatch(f Field, raw any) error {
	return fmt.Errorf("invalid type: expected %s, got %T", f.Type, raw)
}
