// Package server exposes the agent runner over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fortune-sheet/sheetagent"
	"github.com/fortune-sheet/sheetagent/backend"
)

// Server hosts the agent API. Runner and registry may be nil when the
// model could not be initialized; affected endpoints answer 503.
type Server struct {
	runner   *sheetagent.Runner
	registry *sheetagent.Registry
	backend  *backend.Client
	mux      *http.ServeMux
}

// New wires the HTTP surface. backend must be non-nil; runner and
// registry are optional.
func New(runner *sheetagent.Runner, registry *sheetagent.Registry, client *backend.Client) *Server {
	s := &Server{
		runner:   runner,
		registry: registry,
		backend:  client,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/explain", s.handleExplain)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/process-table", s.handleProcessTable)
	s.mux.HandleFunc("POST /api/apply-table", s.handleApplyTable)
	s.mux.HandleFunc("GET /api/tools", s.handleTools)
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return requestLogger(s.mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"llm_initialized": s.runner != nil,
		"api_connected":   s.backend != nil,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "API client not initialized", "")
		return
	}
	sheets, err := s.backend.Sheets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"framework":   "FortuneSheet AI Framework",
		"description": "LLM-powered spreadsheet assistant with automatic sheet discovery",
		"features": []string{
			"Automatic sheet discovery - LLM knows about sheets without extra API calls",
			"Function calling - LLM can read/write spreadsheet data",
			"Table format - Data sent in Excel-like format (values_table + formulas_table)",
			"Real-time sync - Changes appear in spreadsheet automatically",
			"Agent loop - Multi-step tasks broken into manageable chunks",
		},
		"sheets": sheets,
		"tools": []string{
			"get_all_sheets - List all sheets (usually not needed - sheets auto-loaded)",
			"get_excel_tables - Get sheet data in table format",
			"set_from_table - Write data using table format",
			"set_cell - Set single cell",
			"set_cells - Set multiple cells",
			"create_sheet - Create a new sheet in the workbook",
		},
		"howItWorks": map[string]string{
			"step1": "LLM automatically receives sheet information on startup",
			"step2": "User asks question (e.g., 'read sheet 1')",
			"step3": "LLM uses known sheet IDs to call get_excel_tables directly",
			"step4": "LLM receives data in values_table + formulas_table format",
			"step5": "LLM can analyze and write data back using set_from_table",
			"step6": "For complex tasks, LLM breaks work into smaller steps",
			"step7": "Changes are queued and applied to spreadsheet automatically",
		},
	})
}

type chatRequest struct {
	Query   string                   `json:"query"`
	History []sheetagent.HistoryEntry `json:"history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.runQuery(w, r, false)
}

func (s *Server) handleProcessTable(w http.ResponseWriter, r *http.Request) {
	s.runQuery(w, r, true)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, wantTable bool) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM service not initialized", "Set GEMINI_API_KEY environment variable")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	var (
		res *sheetagent.RunResult
		err error
	)
	if wantTable {
		res, err = s.runner.RunTableQuery(r.Context(), req.Query, req.History)
	} else {
		res, err = s.runner.RunQuery(r.Context(), req.Query, req.History)
	}
	if err != nil {
		log.Error().Err(err).Str("query", req.Query).Msg("query processing failed")
		writeError(w, http.StatusInternalServerError, "Failed to process query", err.Error())
		return
	}

	calls := res.ToolCalls
	if calls == nil {
		calls = []sheetagent.ToolCall{}
	}
	results := res.ToolResults
	if results == nil {
		results = []sheetagent.ToolResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"response":        res.Text,
		"functionCalls":   calls,
		"functionResults": results,
		"extractedTable":  res.ExtractedTable,
	})
}

type applyTableRequest struct {
	SheetID       string        `json:"sheet_id"`
	ValuesTable   backend.Table `json:"values_table"`
	FormulasTable backend.Table `json:"formulas_table"`
}

func (s *Server) handleApplyTable(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "API client not initialized", "")
		return
	}
	var req applyTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if req.SheetID == "" {
		writeError(w, http.StatusBadRequest, "sheet_id is required", "")
		return
	}
	if req.ValuesTable == nil && req.FormulasTable == nil {
		writeError(w, http.StatusBadRequest, "Either values_table or formulas_table is required", "")
		return
	}

	result, err := s.backend.ApplyTables(r.Context(), req.SheetID, req.ValuesTable, req.FormulasTable)
	if err != nil {
		log.Error().Err(err).Str("sheet_id", req.SheetID).Msg("apply table failed")
		writeError(w, http.StatusInternalServerError, "Failed to apply table", err.Error())
		return
	}

	count := 0
	if c, ok := result["count"].(float64); ok {
		count = int(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Applied %d cells to spreadsheet", count),
		"result":  result,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM service not initialized", "")
		return
	}
	specs := s.registry.Specs()
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": specs,
		"count": len(specs),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, errMsg, message string) {
	body := map[string]any{"error": errMsg}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}
