package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"fintrack/internal/core"
)

// Action is what happened to a record.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// RecordEvent announces a record mutation. It carries only the identity of
// the record; consumers fetch the current state themselves.
type RecordEvent struct {
	Kind      core.Kind `json:"kind"`
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordEvent creates an event for rec stamped with the current time.
func NewRecordEvent(rec core.Record, action Action) *RecordEvent {
	h := rec.Header()
	return &RecordEvent{
		Kind:      rec.Kind(),
		ID:        h.ID,
		UserID:    h.UserID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Validate rejects events a consumer cannot act on.
func (m *RecordEvent) Validate() error {
	var errs []error
	if !m.Kind.IsValid() {
		errs = append(errs, errors.New("unknown kind "+string(m.Kind)))
	}
	if m.ID == "" {
		errs = append(errs, errors.New("missing id"))
	}
	switch m.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		errs = append(errs, errors.New("unknown action "+string(m.Action)))
	}
	return errors.Join(errs...)
}

// RecordEventFromJSON decodes and validates an event.
func RecordEventFromJSON(data []byte) (*RecordEvent, error) {
	var msg RecordEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
