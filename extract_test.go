package sheetagent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortune-sheet/sheetagent"
)

func TestExtractTableFromProse(t *testing.T) {
	text := `Here is the data you asked for:

{
  "values_table": {
    "1": {"A": "Name", "B": "Revenue"},
    "2": {"A": "Acme", "B": 100}
  },
  "formulas_table": {
    "3": {"B": "=SUM(B2:B2)"}
  }
}

Let me know if you need anything else.`

	table := sheetagent.ExtractTable(text)
	require.NotNil(t, table)
	values, ok := table["values_table"].(map[string]any)
	require.True(t, ok)
	row1, ok := values["1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Name", row1["A"])
	assert.Contains(t, table, "formulas_table")
}

func TestExtractTableAbsent(t *testing.T) {
	assert.Nil(t, sheetagent.ExtractTable("I wrote the values to the sheet."))
	assert.Nil(t, sheetagent.ExtractTable(""))
	assert.Nil(t, sheetagent.ExtractTable(`{"other": 1}`))
	assert.Nil(t, sheetagent.ExtractTable(`mentions "values_table" but has no JSON`))
}

func TestExtractTableSkipsEarlierObjects(t *testing.T) {
	text := `First {"summary": "ok"} and then {"values_table": {"1": {"A": 5}}}`
	table := sheetagent.ExtractTable(text)
	require.NotNil(t, table)
	assert.Contains(t, table, "values_table")
}

func TestExtractTableReturnsEnclosingObject(t *testing.T) {
	text := `{"result": {"values_table": {"1": {"A": 1}}}, "note": "wrapped"}`
	table := sheetagent.ExtractTable(text)
	require.NotNil(t, table)

	// The widest span wins, so the wrapper comes back whole.
	assert.Equal(t, "wrapped", table["note"])
	inner, ok := table["result"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, inner, "values_table")
}

func TestExtractTableBracesInStrings(t *testing.T) {
	text := `{"values_table": {"1": {"A": "curly } brace", "B": "open { brace"}}}`
	table := sheetagent.ExtractTable(text)
	require.NotNil(t, table)
	values := table["values_table"].(map[string]any)
	row := values["1"].(map[string]any)
	assert.Equal(t, "curly } brace", row["A"])
}

func TestExtractTableUnterminated(t *testing.T) {
	assert.Nil(t, sheetagent.ExtractTable(`{"values_table": {"1": {"A": 1}`))
}
