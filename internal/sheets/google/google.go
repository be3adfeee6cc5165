// Package google implements the Sheets mirror on the Google Sheets API using
// service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var _ ports.RecordMirror = (*Client)(nil)

// Config selects the spreadsheet and the service account used to reach it.
// CredentialsJSON wins over CredentialsFile.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger

	// Serializes the read-then-write row lookup.
	mu sync.Mutex
}

// New creates a Sheets client from service account credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	opts, err := credentialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg.SpreadsheetID, logger, opts...)
}

// NewWithOptions creates a client with explicit API options. Tests use it to
// point the client at a local server.
func NewWithOptions(ctx context.Context, spreadsheetID string, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Discard()
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logger:        logger.WithComponent(log.ComponentSheets),
	}, nil
}

func credentialOptions(cfg Config) ([]goption.ClientOption, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

// EnsureTabs creates the tab of every record kind that does not exist yet and
// writes its header row.
func (c *Client) EnsureTabs(ctx context.Context) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	existing := make(map[string]bool, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	var (
		reqs    []*gsheet.Request
		created []core.Kind
	)
	for _, k := range core.Kinds() {
		if existing[ports.Tab(k)] {
			continue
		}
		reqs = append(reqs, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: ports.Tab(k)}},
		})
		created = append(created, k)
	}
	if len(reqs) == 0 {
		return nil
	}

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add tabs: %w", err)
	}
	for _, k := range created {
		if err := c.writeRow(ctx, k, 1, ports.Header(k)); err != nil {
			return err
		}
		c.logger.InfoContext(ctx, "Created sheet tab", log.FieldKind, k, "tab", ports.Tab(k))
	}
	return nil
}

// Upsert writes rec to the row holding its id or to the first row past the
// end of the id column.
func (c *Client) Upsert(ctx context.Context, rec core.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := rec.Kind()
	ids, err := c.readIDs(ctx, k)
	if err != nil {
		return err
	}
	row := findRow(ids, rec.Header().ID)
	if row == 0 {
		if len(ids) == 0 {
			if err := c.writeRow(ctx, k, 1, ports.Header(k)); err != nil {
				return err
			}
			ids = [][]any{{"ID"}}
		}
		row = len(ids) + 1
	}
	if err := c.writeRow(ctx, k, row, ports.Row(rec)); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "Mirrored record",
		log.FieldKind, k,
		log.FieldRecordID, rec.Header().ID,
		"row", row)
	return nil
}

// Delete clears the row holding id. Rows are cleared rather than removed so
// other row numbers stay put.
func (c *Client) Delete(ctx context.Context, kind core.Kind, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIDs(ctx, kind)
	if err != nil {
		return err
	}
	row := findRow(ids, id)
	if row == 0 {
		return nil
	}
	rng := rowRange(kind, row)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	c.logger.DebugContext(ctx, "Cleared mirrored record", log.FieldKind, kind, log.FieldRecordID, id, "row", row)
	return nil
}

func (c *Client) readIDs(ctx context.Context, kind core.Kind) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", ports.Tab(kind))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) writeRow(ctx context.Context, kind core.Kind, row int, values []any) error {
	rng := rowRange(kind, row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func rowRange(kind core.Kind, row int) string {
	last := string(rune('A' + len(ports.Header(kind)) - 1))
	return fmt.Sprintf("%s!A%d:%s%d", ports.Tab(kind), row, last, row)
}

// findRow returns the 1-based row holding id, skipping the header, or 0.
func findRow(ids [][]any, id string) int {
	for i, r := range ids {
		if i == 0 || len(r) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(r[0])) == id {
			return i + 1
		}
	}
	return 0
}
