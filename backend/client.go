// Package backend is an HTTP client for the spreadsheet service that owns
// the actual sheet state. All mutations are queued by the service and
// applied to the grid asynchronously; reads reflect the last applied state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is where the spreadsheet service listens in development.
const DefaultBaseURL = "http://localhost:3001"

const healthTimeout = 2 * time.Second

// StatusError is a non-2xx response from the spreadsheet service. Body
// holds the decoded JSON error payload when the service sent one.
type StatusError struct {
	StatusCode int
	Body       map[string]any
	Raw        string
}

func (e *StatusError) Error() string {
	if msg, ok := e.Body["error"].(string); ok && msg != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, msg)
	}
	if e.Raw != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Raw)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// Client talks to the spreadsheet service. The zero value is not usable;
// construct with NewClient.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the service at baseURL. An empty baseURL
// falls back to DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// BaseURL reports the configured service address.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reqBody = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode, Raw: strings.TrimSpace(string(raw))}
		var decoded map[string]any
		if json.Unmarshal(raw, &decoded) == nil {
			se.Body = decoded
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

// Health reports whether the spreadsheet service answers its health probe.
// The probe is bounded at two seconds regardless of ctx.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil)
	if err != nil {
		log.Debug().Err(err).Msg("spreadsheet service health probe failed")
	}
	return err == nil
}

// Sheets lists all sheets in the workbook.
func (c *Client) Sheets(ctx context.Context) ([]Sheet, error) {
	var out []Sheet
	if err := c.do(ctx, http.MethodGet, "/api/sheets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SheetTables fetches both Excel-style tables for one sheet.
func (c *Client) SheetTables(ctx context.Context, sheetID string) (*ExcelTables, error) {
	var out ExcelTables
	if err := c.do(ctx, http.MethodGet, "/api/sheet/"+sheetID+"/excel-tables", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetCell queues a single-cell write.
func (c *Client) SetCell(ctx context.Context, sheetID string, w CellWrite) (*CellAck, error) {
	var out CellAck
	if err := c.do(ctx, http.MethodPost, "/api/sheet/"+sheetID+"/cell", w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetCells queues a batch of cell writes in order.
func (c *Client) SetCells(ctx context.Context, sheetID string, cells []CellWrite) (*WriteResult, error) {
	var out WriteResult
	body := map[string]any{"cells": cells}
	if err := c.do(ctx, http.MethodPost, "/api/sheet/"+sheetID+"/cells", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyTables queues bulk writes from values and formulas tables. Either
// table may be nil.
func (c *Client) ApplyTables(ctx context.Context, sheetID string, values, formulas Table) (map[string]any, error) {
	body := map[string]any{}
	if values != nil {
		body["values_table"] = values
	}
	if formulas != nil {
		body["formulas_table"] = formulas
	}
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/sheet/"+sheetID+"/from-table", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PendingUpdates lists one sheet's queued writes.
func (c *Client) PendingUpdates(ctx context.Context, sheetID string) (*PendingUpdates, error) {
	var out PendingUpdates
	if err := c.do(ctx, http.MethodGet, "/api/sheet/"+sheetID+"/pending-updates", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearPendingUpdates drops one sheet's queued writes before they apply.
func (c *Client) ClearPendingUpdates(ctx context.Context, sheetID string) (*Ack, error) {
	var out Ack
	if err := c.do(ctx, http.MethodDelete, "/api/sheet/"+sheetID+"/pending-updates", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSheet adds a sheet to the workbook. Empty name lets the service
// pick one; order < 0 appends.
func (c *Client) CreateSheet(ctx context.Context, name string, order int) (*Sheet, error) {
	body := map[string]any{}
	if name != "" {
		body["name"] = name
	}
	if order >= 0 {
		body["order"] = order
	}
	var out Sheet
	if err := c.do(ctx, http.MethodPost, "/api/sheets", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AllPendingUpdates summarizes the pending queue across every sheet.
func (c *Client) AllPendingUpdates(ctx context.Context) (*AllPendingUpdates, error) {
	var out AllPendingUpdates
	if err := c.do(ctx, http.MethodGet, "/api/pending-updates/all", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AllSheetsTables dumps populated-row summaries for every sheet.
func (c *Client) AllSheetsTables(ctx context.Context) (*AllSheetsTables, error) {
	var out AllSheetsTables
	if err := c.do(ctx, http.MethodGet, "/api/sheets/excel-tables/all", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
