package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"piggybank/internal/core"
	"piggybank/internal/export"
)

const maxTabName = 100

// Client mirrors each user's ledger to its own tab of one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabPrefix     string
}

// Config selects the spreadsheet and service account credentials. Either
// CredentialsJSON or CredentialsFile must be set; GOOGLE_APPLICATION_CREDENTIALS
// is used as a last resort.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	TabPrefix       string
}

var _ export.Sink = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg.CredentialsJSON, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	prefix := strings.TrimSpace(cfg.TabPrefix)
	if prefix == "" {
		prefix = "Piggy Bank"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, tabPrefix: prefix}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, serviceAccountJSON, serviceAccountFile string) (*gsheet.Service, error) {
	serviceAccountJSON = strings.TrimSpace(serviceAccountJSON)
	serviceAccountFile = strings.TrimSpace(serviceAccountFile)

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully",
		"credentials_size", len(credentialsJSON))
	return service, nil
}

func (c *Client) Name() string { return "sheets" }

// Write replaces the user's tab with the contents of doc.
func (c *Client) Write(ctx context.Context, doc *export.Document) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	tab := tabName(c.tabPrefix, doc.UserID)
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoteTab(tab), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear tab %s: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: rows(doc)}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteTab(tab)+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update tab %s: %w", tab, err)
	}
	return nil
}

func (c *Client) ensureTab(ctx context.Context, tab string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == tab {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Created sheet tab", "tab", tab)
	return nil
}

var tabUnsafe = regexp.MustCompile(`[\[\]\*\?/\\:']`)

// tabName builds "<prefix> <user>" without characters Sheets rejects,
// truncated to the maximum tab name length.
func tabName(prefix, userID string) string {
	name := strings.TrimSpace(prefix + " " + tabUnsafe.ReplaceAllString(userID, "_"))
	if r := []rune(name); len(r) > maxTabName {
		name = string(r[:maxTabName])
	}
	return name
}

func quoteTab(tab string) string {
	return "'" + tab + "'"
}

// rows lays out a summary block, the transactions and the goals.
func rows(doc *export.Document) [][]any {
	s := doc.Summary
	out := [][]any{
		{"Exported", doc.ExportedAt.Format("2006-01-02 15:04:05")},
		{"Balance", s.Balance.StringFixed(2)},
		{"Income", s.Totals.Income.StringFixed(2)},
		{"Expense", s.Totals.Expense.StringFixed(2)},
		{},
		{"Date", "Type", "Category", "Description", "Amount"},
	}
	for _, t := range doc.Transactions {
		out = append(out, []any{
			t.Date.Format("2006-01-02"),
			string(t.Type),
			string(t.Category),
			t.Description,
			signed(t),
		})
	}
	out = append(out, []any{}, []any{"Goal", "Target", "Saved", "Progress %"})
	for _, g := range s.Goals {
		out = append(out, []any{
			g.Name,
			g.TargetAmount.StringFixed(2),
			g.CurrentAmount.StringFixed(2),
			g.Percent.Round(0).String(),
		})
	}
	return out
}

func signed(t core.Transaction) string {
	return t.Signed().StringFixed(2)
}
