package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortune-sheet/sheetagent"
	"github.com/fortune-sheet/sheetagent/backend"
	"github.com/fortune-sheet/sheetagent/internal/testutil"
	"github.com/fortune-sheet/sheetagent/server"
)

func newTestServer(t *testing.T, provider sheetagent.ChatProvider) (http.Handler, *testutil.FakeBackend) {
	t.Helper()
	fb := testutil.NewFakeBackend(&testutil.FakeSheet{ID: "s1", Name: "Sheet1"})
	t.Cleanup(fb.Close)
	client := backend.NewClient(fb.URL())

	var (
		runner   *sheetagent.Runner
		registry *sheetagent.Registry
	)
	if provider != nil {
		registry = sheetagent.NewRegistry(client)
		runner = sheetagent.NewRunner(provider, registry, client)
	}
	return server.New(runner, registry, client).Handler(), fb
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reqBody *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(buf)
	} else {
		reqBody = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t, &testutil.ScriptedProvider{})
	rec, body := doJSON(t, h, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["llm_initialized"])
	assert.Equal(t, true, body["api_connected"])
}

func TestHealthWithoutProvider(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec, body := doJSON(t, h, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["llm_initialized"])
}

func TestExplainEndpoint(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec, body := doJSON(t, h, http.MethodGet, "/api/explain", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FortuneSheet AI Framework", body["framework"])
	sheets, ok := body["sheets"].([]any)
	require.True(t, ok)
	assert.Len(t, sheets, 1)
}

func TestChatEndpoint(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.ToolCallResult(sheetagent.ToolCallPart{
				CallID: "c1",
				Name:   "set_cell",
				Args:   map[string]any{"sheet_id": "s1", "cell": "A1", "value": "42"},
			})},
			{Result: testutil.TextResult("Set A1 to 42.")},
		},
	}
	h, fb := newTestServer(t, provider)

	rec, body := doJSON(t, h, http.MethodPost, "/api/chat", map[string]any{"query": "set A1 to 42"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Set A1 to 42.", body["response"])

	calls, ok := body["functionCalls"].([]any)
	require.True(t, ok)
	assert.Len(t, calls, 1)
	results, ok := body["functionResults"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 1)

	assert.Equal(t, "42", fb.Sheet("s1").Values["1"]["A"])
}

func TestChatMissingQuery(t *testing.T) {
	h, _ := newTestServer(t, &testutil.ScriptedProvider{})
	rec, body := doJSON(t, h, http.MethodPost, "/api/chat", map[string]any{"history": []any{}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query is required", body["error"])
}

func TestChatUninitialized(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec, body := doJSON(t, h, http.MethodPost, "/api/chat", map[string]any{"query": "hi"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["error"], "not initialized")
}

func TestProcessTableEndpoint(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.TextResult(`Summary: {"values_table": {"1": {"A": "Total", "B": 10}}}`)},
		},
	}
	h, _ := newTestServer(t, provider)

	rec, body := doJSON(t, h, http.MethodPost, "/api/process-table", map[string]any{"query": "make a table"})
	assert.Equal(t, http.StatusOK, rec.Code)

	extracted, ok := body["extractedTable"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, extracted, "values_table")
}

func TestApplyTableEndpoint(t *testing.T) {
	h, fb := newTestServer(t, nil)

	rec, body := doJSON(t, h, http.MethodPost, "/api/apply-table", map[string]any{
		"sheet_id": "s1",
		"values_table": map[string]any{
			"1": map[string]any{"A": "Name", "B": "Qty"},
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Applied 2 cells to spreadsheet", body["message"])
	assert.Equal(t, "Name", fb.Sheet("s1").Values["1"]["A"])
}

func TestApplyTableValidation(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec, body := doJSON(t, h, http.MethodPost, "/api/apply-table", map[string]any{
		"values_table": map[string]any{"1": map[string]any{"A": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sheet_id is required", body["error"])

	rec, body = doJSON(t, h, http.MethodPost, "/api/apply-table", map[string]any{"sheet_id": "s1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "values_table or formulas_table")
}

func TestToolsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, &testutil.ScriptedProvider{})
	rec, body := doJSON(t, h, http.MethodGet, "/api/tools", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), body["count"])
	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 7)
	first, ok := tools[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "get_all_sheets", first["name"])
}

func TestToolsUninitialized(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec, _ := doJSON(t, h, http.MethodGet, "/api/tools", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
