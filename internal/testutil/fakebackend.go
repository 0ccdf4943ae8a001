package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// FakeSheet is the in-memory state of one sheet.
type FakeSheet struct {
	ID       string
	Name     string
	Order    int
	Values   map[string]map[string]any
	Formulas map[string]map[string]any
	Pending  []map[string]any
}

// FakeBackend is an in-memory spreadsheet service speaking the same REST
// contract as the real one. Zero value is not usable; construct with
// NewFakeBackend.
type FakeBackend struct {
	mu     sync.Mutex
	sheets []*FakeSheet
	srv    *httptest.Server
}

// NewFakeBackend starts an httptest server with the given initial sheets.
func NewFakeBackend(sheets ...*FakeSheet) *FakeBackend {
	fb := &FakeBackend{}
	for _, s := range sheets {
		if s.Values == nil {
			s.Values = map[string]map[string]any{}
		}
		if s.Formulas == nil {
			s.Formulas = map[string]map[string]any{}
		}
		fb.sheets = append(fb.sheets, s)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("GET /api/sheets", fb.handleListSheets)
	mux.HandleFunc("POST /api/sheets", fb.handleCreateSheet)
	mux.HandleFunc("GET /api/sheet/{id}/excel-tables", fb.handleExcelTables)
	mux.HandleFunc("POST /api/sheet/{id}/cell", fb.handleSetCell)
	mux.HandleFunc("POST /api/sheet/{id}/cells", fb.handleSetCells)
	mux.HandleFunc("POST /api/sheet/{id}/from-table", fb.handleFromTable)
	mux.HandleFunc("GET /api/sheet/{id}/pending-updates", fb.handlePending)
	mux.HandleFunc("DELETE /api/sheet/{id}/pending-updates", fb.handleClearPending)
	mux.HandleFunc("GET /api/pending-updates/all", fb.handleAllPending)
	mux.HandleFunc("GET /api/sheets/excel-tables/all", fb.handleAllTables)
	fb.srv = httptest.NewServer(mux)
	return fb
}

// URL is the fake service's base URL.
func (fb *FakeBackend) URL() string { return fb.srv.URL }

// Close shuts the server down.
func (fb *FakeBackend) Close() { fb.srv.Close() }

// Sheet returns the live state of a sheet by ID, or nil.
func (fb *FakeBackend) Sheet(id string) *FakeSheet {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.findLocked(id)
}

func (fb *FakeBackend) findLocked(id string) *FakeSheet {
	for _, s := range fb.sheets {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (fb *FakeBackend) handleListSheets(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]map[string]any, 0, len(fb.sheets))
	for _, s := range fb.sheets {
		out = append(out, map[string]any{"id": s.ID, "name": s.Name, "order": s.Order})
	}
	respond(w, http.StatusOK, out)
}

func (fb *FakeBackend) handleCreateSheet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Order *int   `json:"order"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	id := fmt.Sprintf("sheet-%d", len(fb.sheets)+1)
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("Sheet%d", len(fb.sheets)+1)
	}
	order := len(fb.sheets)
	if req.Order != nil {
		order = *req.Order
	}
	s := &FakeSheet{
		ID: id, Name: name, Order: order,
		Values:   map[string]map[string]any{},
		Formulas: map[string]map[string]any{},
	}
	fb.sheets = append(fb.sheets, s)
	respond(w, http.StatusOK, map[string]any{"id": s.ID, "name": s.Name, "order": s.Order})
}

func (fb *FakeBackend) handleExcelTables(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	s := fb.findLocked(r.PathValue("id"))
	if s == nil {
		respond(w, http.StatusNotFound, map[string]any{"error": "sheet not found"})
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"sheet_id":       s.ID,
		"sheet_name":     s.Name,
		"values_table":   s.Values,
		"formulas_table": s.Formulas,
	})
}

func (fb *FakeBackend) handleSetCell(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	cell, _ := req["cell"].(string)
	if cell == "" {
		respond(w, http.StatusBadRequest, map[string]any{"error": "cell is required"})
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	s := fb.findLocked(r.PathValue("id"))
	if s == nil {
		respond(w, http.StatusNotFound, map[string]any{"error": "sheet not found"})
		return
	}
	s.apply(req)
	s.Pending = append(s.Pending, req)
	respond(w, http.StatusOK, map[string]any{"success": true, "cell": cell, "queued": 1})
}

func (fb *FakeBackend) handleSetCells(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cells []map[string]any `json:"cells"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	s := fb.findLocked(r.PathValue("id"))
	if s == nil {
		respond(w, http.StatusNotFound, map[string]any{"error": "sheet not found"})
		return
	}
	for _, c := range req.Cells {
		s.apply(c)
		s.Pending = append(s.Pending, c)
	}
	respond(w, http.StatusOK, map[string]any{"count": len(req.Cells), "cells": req.Cells})
}

func (fb *FakeBackend) handleFromTable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ValuesTable   map[string]map[string]any `json:"values_table"`
		FormulasTable map[string]map[string]any `json:"formulas_table"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	s := fb.findLocked(r.PathValue("id"))
	if s == nil {
		respond(w, http.StatusNotFound, map[string]any{"error": "sheet not found"})
		return
	}
	count := 0
	for row, cols := range req.ValuesTable {
		for col, v := range cols {
			if s.Values[row] == nil {
				s.Values[row] = map[string]any{}
			}
			s.Values[row][col] = v
			s.Pending = append(s.Pending, map[string]any{"cell": col + row, "value": v})
			count++
		}
	}
	for row, cols := range req.FormulasTable {
		for col, f := range cols {
			if s.Formulas[row] == nil {
				s.Formulas[row] = map[string]any{}
			}
			s.Formulas[row][col] = f
			s.Pending = append(s.Pending, map[string]any{"cell": col + row, "formula": f})
			count++
		}
	}
	respond(w, http.StatusOK, map[string]any{"success": true, "count": count})
}

func (fb *FakeBackend) handlePending(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	s := fb.findLocked(r.PathValue("id"))
	if s == nil {
		respond(w, http.StatusNotFound, map[string]any{"error": "sheet not found"})
		return
	}
	updates := s.Pending
	if updates == nil {
		updates = []map[string]any{}
	}
	respond(w, http.StatusOK, map[string]any{"updates": updates})
}

func (fb *FakeBackend) handleClearPending(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	s := fb.findLocked(r.PathValue("id"))
	if s == nil {
		respond(w, http.StatusNotFound, map[string]any{"error": "sheet not found"})
		return
	}
	s.Pending = nil
	respond(w, http.StatusOK, map[string]any{"success": true})
}

func (fb *FakeBackend) handleAllPending(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	total := 0
	withPending := 0
	sheets := map[string]any{}
	for _, s := range fb.sheets {
		n := len(s.Pending)
		total += n
		if n > 0 {
			withPending++
		}
		sheets[s.ID] = map[string]any{"sheet_name": s.Name, "updates_count": n}
	}
	respond(w, http.StatusOK, map[string]any{
		"total_updates_queued":     total,
		"total_sheets_with_pending": withPending,
		"sheets":                   sheets,
	})
}

func (fb *FakeBackend) handleAllTables(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	sheets := map[string]any{}
	for _, s := range fb.sheets {
		sheets[s.ID] = map[string]any{
			"sheet_name":     s.Name,
			"values_count":   len(s.Values),
			"formulas_count": len(s.Formulas),
			"values_table":   s.Values,
			"formulas_table": s.Formulas,
		}
	}
	respond(w, http.StatusOK, map[string]any{"sheets": sheets})
}

// apply writes one cell update into the sheet's tables.
func (s *FakeSheet) apply(update map[string]any) {
	cell, _ := update["cell"].(string)
	row, col := splitCell(cell)
	if row == "" || col == "" {
		return
	}
	if f, ok := update["formula"].(string); ok && f != "" {
		if s.Formulas[row] == nil {
			s.Formulas[row] = map[string]any{}
		}
		s.Formulas[row][col] = f
		return
	}
	if s.Values[row] == nil {
		s.Values[row] = map[string]any{}
	}
	s.Values[row][col] = update["value"]
}

func splitCell(cell string) (row, col string) {
	i := strings.IndexFunc(cell, func(r rune) bool { return r >= '0' && r <= '9' })
	if i <= 0 {
		return "", ""
	}
	return cell[i:], cell[:i]
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
