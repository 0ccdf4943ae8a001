package sheetagent

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/fortune-sheet/sheetagent/backend"
)

// NewRegistry builds the spreadsheet tool catalog bound to one backend
// client. Tool names and schemas are part of the model-facing contract.
func NewRegistry(client *backend.Client) *Registry {
	r := NewEmptyRegistry()

	r.Register(ToolSpec{
		Name:        "get_all_sheets",
		Description: "Get list of all sheets in the workbook. Returns sheet metadata including id and name.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sheets, err := client.Sheets(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sheets": sheets}, nil
	})

	r.Register(ToolSpec{
		Name:        "get_excel_tables",
		Description: "Get Excel-like tables (values and formulas) from a sheet. Returns data in the same format that you should output: values_table and formulas_table with Excel coordinates (A1, B2, etc.). Row numbers are 1-based, columns are A, B, C, etc.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sheet_id": map[string]any{
					"type":        "string",
					"description": "The ID of the sheet to get data from",
				},
			},
			"required": []string{"sheet_id"},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return client.SheetTables(ctx, stringArg(args, "sheet_id"))
	})

	r.Register(ToolSpec{
		Name:        "set_from_table",
		Description: "Apply data to a sheet using the Excel table format. This is the primary method for writing data back to the spreadsheet. Accepts values_table and formulas_table in the same format as get_excel_tables output. Row numbers are 1-based (1, 2, 3...), columns are A, B, C, etc. Formulas should start with '='. Use null for empty cells.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sheet_id": map[string]any{
					"type":        "string",
					"description": "The ID of the sheet to update",
				},
				"values_table": map[string]any{
					"type":        "object",
					"description": "Object with row numbers (as strings '1', '2', etc.) as keys, and objects with column letters (A, B, C, etc.) as keys containing cell values. Example: {'1': {'A': 'Name', 'B': 'Value'}, '2': {'A': 'Total', 'B': 100}}",
				},
				"formulas_table": map[string]any{
					"type":        "object",
					"description": "Object with row numbers (as strings '1', '2', etc.) as keys, and objects with column letters (A, B, C, etc.) as keys containing formulas (must start with '='). Example: {'3': {'C': '=SUM(A1:A2)'}}",
				},
			},
			"required": []string{"sheet_id"},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		var values, formulas backend.Table
		if err := decodeArg(args, "values_table", &values); err != nil {
			return nil, err
		}
		if err := decodeArg(args, "formulas_table", &formulas); err != nil {
			return nil, err
		}
		return client.ApplyTables(ctx, stringArg(args, "sheet_id"), values, formulas)
	})

	r.Register(ToolSpec{
		Name:        "set_cell",
		Description: "Set a single cell value or formula. Use Excel coordinates like 'A1', 'B2', etc.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sheet_id": map[string]any{
					"type":        "string",
					"description": "The ID of the sheet to update",
				},
				"cell": map[string]any{
					"type":        "string",
					"description": "Excel cell reference (e.g., 'A1', 'B2')",
				},
				"value": map[string]any{
					"type":        "string",
					"description": "Cell value (text or number as string). Omit this parameter if setting a formula.",
				},
				"formula": map[string]any{
					"type":        "string",
					"description": "Cell formula (must start with '='). Omit this parameter if setting a value.",
				},
			},
			"required": []string{"sheet_id", "cell"},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		w := backend.CellWrite{
			Cell:    stringArg(args, "cell"),
			Value:   args["value"],
			Formula: stringArg(args, "formula"),
		}
		return client.SetCell(ctx, stringArg(args, "sheet_id"), w)
	})

	r.Register(ToolSpec{
		Name:        "set_cells",
		Description: "Set multiple cells at once. More efficient than calling set_cell multiple times.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sheet_id": map[string]any{
					"type":        "string",
					"description": "The ID of the sheet to update",
				},
				"cells": map[string]any{
					"type":        "array",
					"description": "Array of cell objects. Each object should have: cell (Excel ref like 'A1'), value (string or number, optional), formula (string starting with '=', optional)",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"cell": map[string]any{
								"type":        "string",
								"description": "Excel cell reference (e.g., 'A1', 'B2')",
							},
							"value": map[string]any{
								"type":        "string",
								"description": "Cell value (text or number as string). Omit if setting a formula.",
							},
							"formula": map[string]any{
								"type":        "string",
								"description": "Cell formula (must start with '='). Omit if setting a value.",
							},
						},
						"required": []string{"cell"},
					},
				},
			},
			"required": []string{"sheet_id", "cells"},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		var cells []backend.CellWrite
		if err := decodeArg(args, "cells", &cells); err != nil {
			return nil, err
		}
		return client.SetCells(ctx, stringArg(args, "sheet_id"), cells)
	})

	r.Register(ToolSpec{
		Name:        "create_sheet",
		Description: "Create a new sheet in the workbook. Returns the new sheet's ID and name. Use this when you need to create a new worksheet for organizing data (e.g., creating separate sheets for different financial statements, assumptions, etc.).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Name for the new sheet (e.g., 'Income Statement', 'Assumptions', 'Sheet2'). If not provided, a default name will be generated (Sheet1, Sheet2, etc.).",
				},
				"order": map[string]any{
					"type":        "integer",
					"description": "Position/order of the sheet in the workbook (0-based). If not provided, the sheet will be added at the end.",
				},
			},
			"required": []string{},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		order := -1
		if v, ok := args["order"]; ok {
			switch n := v.(type) {
			case float64:
				order = int(n)
			case int:
				order = n
			case json.Number:
				i, err := n.Int64()
				if err != nil {
					return nil, errors.Wrap(err, "order must be an integer")
				}
				order = int(i)
			}
		}
		return client.CreateSheet(ctx, stringArg(args, "name"), order)
	})

	r.Register(ToolSpec{
		Name:        "get_all_sheets_excel_tables",
		Description: "Get Excel table format (values_table and formulas_table) for ALL sheets at once. Use this for final verification after creating a financial model to check all sheets were populated correctly. Returns data in the same format as get_excel_tables but for all sheets simultaneously.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return client.AllSheetsTables(ctx)
	})

	return r
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// decodeArg round-trips one argument through JSON into a typed value.
// An absent or nil argument leaves out untouched.
func decodeArg(args map[string]any, key string, out any) error {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return errors.Wrapf(err, "%s has the wrong shape", key)
	}
	return nil
}
