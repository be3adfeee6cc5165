// Package memory is an in-process RecordMirror used by tests and by the
// worker when no spreadsheet is configured.
package memory

import (
	"context"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

var _ sheets.RecordMirror = (*Mirror)(nil)

type Mirror struct {
	mu   sync.Mutex
	tabs map[core.Kind]*tab

	// FailWith, when set, is returned by every call.
	FailWith error
}

type tab struct {
	order []string
	rows  map[string][]any
}

func New() *Mirror {
	return &Mirror{tabs: make(map[core.Kind]*tab)}
}

// Upsert replaces the row for rec's id or appends a new one.
func (m *Mirror) Upsert(_ context.Context, rec core.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	t := m.tab(rec.Kind())
	id := rec.Header().ID
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = sheets.Row(rec)
	return nil
}

// Delete drops the row for id.
func (m *Mirror) Delete(_ context.Context, kind core.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	t := m.tab(kind)
	if _, ok := t.rows[id]; !ok {
		return nil
	}
	delete(t.rows, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// Rows returns the rows of a tab in insertion order.
func (m *Mirror) Rows(kind core.Kind) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tab(kind)
	out := make([][]any, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, append([]any(nil), t.rows[id]...))
	}
	return out
}

func (m *Mirror) tab(kind core.Kind) *tab {
	t, ok := m.tabs[kind]
	if !ok {
		t = &tab{rows: make(map[string][]any)}
		m.tabs[kind] = t
	}
	return t
}
