package sheetagent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortune-sheet/sheetagent"
	"github.com/fortune-sheet/sheetagent/backend"
	"github.com/fortune-sheet/sheetagent/internal/testutil"
)

func newCatalog(t *testing.T) (*sheetagent.Registry, *testutil.FakeBackend) {
	t.Helper()
	fb := testutil.NewFakeBackend(&testutil.FakeSheet{ID: "s1", Name: "Sheet1"})
	t.Cleanup(fb.Close)
	return sheetagent.NewRegistry(backend.NewClient(fb.URL())), fb
}

func TestCatalogSpecs(t *testing.T) {
	registry, _ := newCatalog(t)
	specs := registry.Specs()
	require.Len(t, specs, 7)

	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"get_all_sheets",
		"get_excel_tables",
		"set_from_table",
		"set_cell",
		"set_cells",
		"create_sheet",
		"get_all_sheets_excel_tables",
	}, names)

	for _, s := range specs {
		assert.NotEmpty(t, s.Description, s.Name)
		assert.Equal(t, "object", s.Parameters["type"], s.Name)
	}
}

func TestCatalogGetAllSheets(t *testing.T) {
	registry, _ := newCatalog(t)
	res := registry.Execute(context.Background(), sheetagent.ToolCall{Name: "get_all_sheets"})
	require.False(t, res.IsError)

	sheets, ok := res.Payload["sheets"].([]any)
	require.True(t, ok)
	require.Len(t, sheets, 1)
	first := sheets[0].(map[string]any)
	assert.Equal(t, "s1", first["id"])
}

func TestCatalogSetFromTable(t *testing.T) {
	registry, fb := newCatalog(t)
	res := registry.Execute(context.Background(), sheetagent.ToolCall{
		Name: "set_from_table",
		Args: map[string]any{
			"sheet_id": "s1",
			"values_table": map[string]any{
				"1": map[string]any{"A": "Item", "B": "Cost"},
				"2": map[string]any{"A": "Rent", "B": 1200},
			},
			"formulas_table": map[string]any{
				"3": map[string]any{"B": "=SUM(B2:B2)"},
			},
		},
	})
	require.False(t, res.IsError, "%v", res.Payload)

	sheet := fb.Sheet("s1")
	assert.Equal(t, "Item", sheet.Values["1"]["A"])
	assert.Equal(t, "=SUM(B2:B2)", sheet.Formulas["3"]["B"])
}

func TestCatalogSetCellsDecodesArray(t *testing.T) {
	registry, fb := newCatalog(t)
	res := registry.Execute(context.Background(), sheetagent.ToolCall{
		Name: "set_cells",
		Args: map[string]any{
			"sheet_id": "s1",
			"cells": []any{
				map[string]any{"cell": "A1", "value": "one"},
				map[string]any{"cell": "A2", "formula": "=A1"},
			},
		},
	})
	require.False(t, res.IsError, "%v", res.Payload)
	assert.Equal(t, float64(2), res.Payload["count"])

	sheet := fb.Sheet("s1")
	assert.Equal(t, "one", sheet.Values["1"]["A"])
	assert.Equal(t, "=A1", sheet.Formulas["2"]["A"])
}

func TestCatalogCreateSheet(t *testing.T) {
	registry, fb := newCatalog(t)
	res := registry.Execute(context.Background(), sheetagent.ToolCall{
		Name: "create_sheet",
		Args: map[string]any{"name": "Income Statement", "order": float64(1)},
	})
	require.False(t, res.IsError, "%v", res.Payload)
	assert.Equal(t, "Income Statement", res.Payload["name"])
	assert.NotEmpty(t, res.Payload["id"])

	id, _ := res.Payload["id"].(string)
	assert.NotNil(t, fb.Sheet(id))
}

func TestCatalogBackendErrorShape(t *testing.T) {
	registry, _ := newCatalog(t)
	res := registry.Execute(context.Background(), sheetagent.ToolCall{
		Name: "get_excel_tables",
		Args: map[string]any{"sheet_id": "nope"},
	})
	require.True(t, res.IsError)
	assert.Equal(t, true, res.Payload["error"])
	assert.NotEmpty(t, res.Payload["message"])

	details, ok := res.Payload["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sheet not found", details["error"])
}
