// Package sheets stores registrations and gateway orders in a Google
// Spreadsheet, one sheet each, for organisers who work from the sheet.
package sheets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string

	payMu sync.Mutex
}

func New(ctx context.Context, serviceAccountJSONPath, spreadsheetID string) (*Client, error) {
	if _, err := os.Stat(serviceAccountJSONPath); err != nil {
		return nil, fmt.Errorf("service account json: %w", err)
	}
	srv, err := sheetsv4.NewService(ctx,
		option.WithCredentialsFile(serviceAccountJSONPath),
		option.WithScopes(sheetsv4.SpreadsheetsScope),
	)
	if err != nil {
		return nil, err
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

func (c *Client) readAll(ctx context.Context, sheet string) ([][]interface{}, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:Z").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	return resp.Values, nil
}

func (c *Client) appendRow(ctx context.Context, sheet string, row []interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:Z", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}

func (c *Client) updateRange(ctx context.Context, sheet, a1 string, row []interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!"+a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s!%s: %w", sheet, a1, err)
	}
	return nil
}

// EnsureHeaders writes the header row of each sheet that has none yet.
func (c *Client) EnsureHeaders(ctx context.Context) error {
	for sheet, header := range map[string][]interface{}{
		SheetRegistrations: registrationHeader,
		SheetOrders:        orderHeader,
	} {
		values, err := c.readAll(ctx, sheet)
		if err != nil {
			return err
		}
		if len(values) > 0 && len(values[0]) > 0 {
			continue
		}
		if err := c.updateRange(ctx, sheet, "A1", header); err != nil {
			return err
		}
	}
	return nil
}

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}
