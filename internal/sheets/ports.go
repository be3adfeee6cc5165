// Package sheets mirrors records into a spreadsheet, one tab per kind with
// the record id in the first column.
package sheets

import (
	"context"

	"fintrack/internal/core"
)

// RecordMirror is the outbound port of the Sheets mirror.
type RecordMirror interface {
	// Upsert writes rec to the row holding its id, appending a row when the
	// id is not present yet.
	Upsert(ctx context.Context, rec core.Record) error
	// Delete clears the row holding id. A missing row is not an error.
	Delete(ctx context.Context, kind core.Kind, id string) error
}
