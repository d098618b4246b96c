package sheetsclient

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client wraps the Google Sheets API client for one spreadsheet
type Client struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewClient creates a Sheets client authorized by ts
func NewClient(ctx context.Context, ts oauth2.TokenSource, spreadsheetID string) (*Client, error) {
	return NewClientWithOptions(ctx, spreadsheetID, option.WithTokenSource(ts))
}

// NewClientWithOptions creates a Sheets client from raw API options
func NewClientWithOptions(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Client, error) {
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		service:       service,
		spreadsheetID: spreadsheetID,
	}, nil
}

// HasSheet reports whether a tab with the title exists
func (c *Client) HasSheet(ctx context.Context, sheetTitle string) (bool, error) {
	resp, err := c.service.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	for _, sheet := range resp.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetTitle {
			return true, nil
		}
	}
	return false, nil
}

// CreateSheet creates a new sheet/tab in the spreadsheet
func (c *Client) CreateSheet(ctx context.Context, sheetTitle string) (int64, error) {
	req := &sheets.Request{
		AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{
				Title: sheetTitle,
			},
		},
	}

	batchUpdateRequest := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{req},
	}

	resp, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, batchUpdateRequest).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("unexpected response from create sheet")
	}

	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// ExportRows writes rows into the tab from A1, creating the tab or
// clearing its previous contents first
func (c *Client) ExportRows(ctx context.Context, tab string, rows [][]string) error {
	exists, err := c.HasSheet(ctx, tab)
	if err != nil {
		return err
	}

	sheetRange := fmt.Sprintf("'%s'", tab)
	if exists {
		if _, err := c.service.Spreadsheets.Values.Clear(c.spreadsheetID, sheetRange, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to clear sheet %s: %w", tab, err)
		}
	} else if _, err := c.CreateSheet(ctx, tab); err != nil {
		return err
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, cell := range row {
			values[i][j] = cell
		}
	}

	_, err = c.service.Spreadsheets.Values.Update(c.spreadsheetID, sheetRange+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write rows to %s: %w", tab, err)
	}

	return nil
}
