package backend

// Sheet is the metadata the spreadsheet service reports for one sheet.
type Sheet struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order,omitempty"`
}

// Table is the Excel-style exchange format: 1-based row numbers as string
// keys mapping to column letters (A, B, ... Z, AA, ...) mapping to cell
// values. Formula cells hold strings starting with "=".
type Table map[string]map[string]any

// ExcelTables is the full table dump of one sheet.
type ExcelTables struct {
	SheetID       string         `json:"sheet_id"`
	SheetName     string         `json:"sheet_name"`
	Dimensions    map[string]any `json:"dimensions,omitempty"`
	ValuesTable   Table          `json:"values_table"`
	FormulasTable Table          `json:"formulas_table"`
	FormulaCells  []string       `json:"formula_cells,omitempty"`
}

// CellWrite addresses a single cell write. Exactly one of Value and Formula
// should be set; the service decides what a write with neither means.
type CellWrite struct {
	Cell    string `json:"cell"`
	Value   any    `json:"value,omitempty"`
	Formula string `json:"formula,omitempty"`
}

// WriteResult acknowledges a batch write with the number of queued cells.
type WriteResult struct {
	Count int              `json:"count"`
	Cells []map[string]any `json:"cells,omitempty"`
}

// CellAck acknowledges a single-cell write.
type CellAck struct {
	Success bool           `json:"success,omitempty"`
	Cell    string         `json:"cell,omitempty"`
	Queued  int            `json:"queued,omitempty"`
	Update  map[string]any `json:"update,omitempty"`
}

// PendingUpdates lists the queued, not-yet-applied writes of one sheet.
type PendingUpdates struct {
	Updates []map[string]any `json:"updates"`
}

// PendingSheetInfo summarizes one sheet's share of the pending queue.
type PendingSheetInfo struct {
	SheetName    string `json:"sheet_name"`
	UpdatesCount int    `json:"updates_count"`
}

// AllPendingUpdates summarizes the pending queue across every sheet.
type AllPendingUpdates struct {
	TotalUpdatesQueued     int                         `json:"total_updates_queued"`
	TotalSheetsWithPending int                         `json:"total_sheets_with_pending"`
	Sheets                 map[string]PendingSheetInfo `json:"sheets"`
}

// SheetTablesSummary reports populated-row counts for one sheet in the
// all-sheets dump.
type SheetTablesSummary struct {
	SheetName     string `json:"sheet_name"`
	ValuesCount   int    `json:"values_count"`
	FormulasCount int    `json:"formulas_count"`
	ValuesTable   Table  `json:"values_table,omitempty"`
	FormulasTable Table  `json:"formulas_table,omitempty"`
}

// AllSheetsTables is the all-sheets table dump.
type AllSheetsTables struct {
	Sheets map[string]SheetTablesSummary `json:"sheets"`
}

// Ack is a generic success acknowledgment.
type Ack struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}
