package sheetagent_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortune-sheet/sheetagent"
	"github.com/fortune-sheet/sheetagent/backend"
	"github.com/fortune-sheet/sheetagent/internal/testutil"
)

func newTestRunner(t *testing.T, provider sheetagent.ChatProvider, opts ...sheetagent.RunnerOption) (*sheetagent.Runner, *testutil.FakeBackend) {
	t.Helper()
	fb := testutil.NewFakeBackend(&testutil.FakeSheet{ID: "s1", Name: "Sheet1"})
	t.Cleanup(fb.Close)
	client := backend.NewClient(fb.URL())
	registry := sheetagent.NewRegistry(client)
	return sheetagent.NewRunner(provider, registry, client, opts...), fb
}

func TestRunQuerySingleToolCall(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.ToolCallResult(sheetagent.ToolCallPart{
				CallID: "call-1",
				Name:   "set_cell",
				Args:   map[string]any{"sheet_id": "s1", "cell": "A1", "formula": "=A1+5"},
			})},
			{Result: testutil.TextResult("Done")},
		},
	}
	runner, fb := newTestRunner(t, provider)

	res, err := runner.RunQuery(context.Background(), "add 5 to cell A1", nil)
	require.NoError(t, err)

	assert.Equal(t, "Done", res.Text)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "set_cell", res.ToolCalls[0].Name)
	require.Len(t, res.ToolResults, 1)
	assert.False(t, res.ToolResults[0].IsError)

	sheet := fb.Sheet("s1")
	require.NotNil(t, sheet)
	assert.Equal(t, "=A1+5", sheet.Formulas["1"]["A"])

	// Second round trip must see the tool result in history.
	require.Equal(t, 2, provider.Calls())
	secondReq := provider.Requests[1]
	var sawResult bool
	for _, msg := range secondReq.History {
		if trm, ok := msg.(sheetagent.ToolResultMessage); ok && trm.CallID == "call-1" {
			sawResult = true
			assert.False(t, trm.IsError)
		}
	}
	assert.True(t, sawResult, "tool result not fed back to the model")
}

func TestRunQuerySequentialCallsInOneTurn(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.ToolCallResult(
				sheetagent.ToolCallPart{CallID: "c1", Name: "set_cell", Args: map[string]any{"sheet_id": "s1", "cell": "A1", "value": "Revenue"}},
				sheetagent.ToolCallPart{CallID: "c2", Name: "set_cell", Args: map[string]any{"sheet_id": "s1", "cell": "B1", "value": "100"}},
			)},
			{Result: testutil.TextResult("Both cells written.")},
		},
	}
	runner, fb := newTestRunner(t, provider)

	res, err := runner.RunQuery(context.Background(), "write a header row", nil)
	require.NoError(t, err)

	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "c1", res.ToolResults[0].CallID)
	assert.Equal(t, "c2", res.ToolResults[1].CallID)

	sheet := fb.Sheet("s1")
	assert.Equal(t, "Revenue", sheet.Values["1"]["A"])
	assert.Equal(t, "100", sheet.Values["1"]["B"])
}

func TestRunQueryToolErrorFeedsBack(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.ToolCallResult(sheetagent.ToolCallPart{
				CallID: "c1",
				Name:   "get_excel_tables",
				Args:   map[string]any{},
			})},
			{Result: testutil.TextResult("I need a sheet id.")},
		},
	}
	runner, _ := newTestRunner(t, provider)

	res, err := runner.RunQuery(context.Background(), "read the sheet", nil)
	require.NoError(t, err)

	require.Len(t, res.ToolResults, 1)
	assert.True(t, res.ToolResults[0].IsError)
	assert.Equal(t, "sheet_id is required", res.ToolResults[0].Payload["message"])
	assert.Equal(t, "I need a sheet id.", res.Text)
}

func TestRunQueryIterationCap(t *testing.T) {
	loopCall := testutil.ToolCallResult(sheetagent.ToolCallPart{
		CallID: "loop",
		Name:   "get_all_sheets",
		Args:   map[string]any{},
	})
	provider := &testutil.ScriptedProvider{Fallback: &loopCall}
	runner, _ := newTestRunner(t, provider, sheetagent.WithMaxIterations(3))

	res, err := runner.RunQuery(context.Background(), "list sheets forever", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, provider.Calls())
	assert.Len(t, res.ToolCalls, 3)
	assert.Contains(t, res.Text, "Task completed after 3 iterations")
	assert.Contains(t, res.Text, "Executed 3 function call(s)")
}

func TestRunQueryMalformedAfterCalls(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.ToolCallResult(
				sheetagent.ToolCallPart{CallID: "c1", Name: "set_cell", Args: map[string]any{"sheet_id": "s1", "cell": "A1", "value": "1"}},
				sheetagent.ToolCallPart{CallID: "c2", Name: "set_cell", Args: map[string]any{"sheet_id": "s1", "cell": "A2", "value": "2"}},
			)},
			{Err: &sheetagent.MalformedCallError{Detail: "broken payload"}},
		},
	}
	runner, _ := newTestRunner(t, provider)

	res, err := runner.RunQuery(context.Background(), "fill the column", nil)
	require.NoError(t, err)

	assert.Contains(t, res.Text, "Task partially completed")
	assert.Contains(t, res.Text, "Executed 2 function call(s)")
	assert.Len(t, res.ToolCalls, 2)
}

func TestRunQueryMalformedBeforeAnyCall(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Err: &sheetagent.MalformedCallError{Detail: "broken payload"}},
		},
	}
	runner, _ := newTestRunner(t, provider)

	_, err := runner.RunQuery(context.Background(), "do everything at once", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed function call")
	assert.Contains(t, err.Error(), "Try rephrasing your request")
}

func TestRunQueryEmptyAnswerAfterCalls(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.ToolCallResult(
				sheetagent.ToolCallPart{CallID: "c1", Name: "get_all_sheets", Args: map[string]any{}},
				sheetagent.ToolCallPart{CallID: "c2", Name: "set_cell", Args: map[string]any{"sheet_id": "s1", "cell": "A1", "value": "1"}},
				sheetagent.ToolCallPart{CallID: "c3", Name: "set_cell", Args: map[string]any{"sheet_id": "s1", "cell": "A2", "value": "2"}},
			)},
			{Result: testutil.EmptyResult(sheetagent.StopStop, "STOP")},
		},
	}
	runner, _ := newTestRunner(t, provider)

	res, err := runner.RunQuery(context.Background(), "tidy up", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Task completed successfully")
	assert.Contains(t, res.Text, "Executed 3 function call(s)")
}

func TestRunQueryEmptyAnswerNoCalls(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.EmptyResult(sheetagent.StopSafety, "SAFETY")},
		},
	}
	runner, _ := newTestRunner(t, provider)

	res, err := runner.RunQuery(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "empty response")
	assert.Contains(t, res.Text, "SAFETY")
	assert.Contains(t, res.Text, "rephrasing")
	assert.Contains(t, res.Text, "Function calls executed: 0")
}

func TestRunQueryNilBackend(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.TextResult("unused")},
		},
	}
	fb := testutil.NewFakeBackend(&testutil.FakeSheet{ID: "s1", Name: "Sheet1"})
	t.Cleanup(fb.Close)
	registry := sheetagent.NewRegistry(backend.NewClient(fb.URL()))

	runner := sheetagent.NewRunner(provider, registry, nil)
	_, err := runner.RunQuery(context.Background(), "hello", nil)
	require.ErrorIs(t, err, sheetagent.ErrNoBackend)
}

func TestRunQuerySkipsEmptyToolNames(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.ToolCallResult(
				sheetagent.ToolCallPart{CallID: "c1", Name: "", Args: map[string]any{}},
				sheetagent.ToolCallPart{CallID: "c2", Name: "get_all_sheets", Args: map[string]any{}},
			)},
			{Result: testutil.TextResult("Here are the sheets.")},
		},
	}
	runner, _ := newTestRunner(t, provider)

	res, err := runner.RunQuery(context.Background(), "what sheets exist", nil)
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "get_all_sheets", res.ToolCalls[0].Name)
}

func TestRunQueryFinancialReviewAppended(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.ToolCallResult(sheetagent.ToolCallPart{
				CallID: "c1",
				Name:   "set_from_table",
				Args: map[string]any{
					"sheet_id": "s1",
					"values_table": map[string]any{
						"1": map[string]any{"A": "Revenue", "B": 100},
					},
				},
			})},
			{Result: testutil.TextResult("Model built.")},
		},
	}
	runner, _ := newTestRunner(t, provider)

	res, err := runner.RunQuery(context.Background(), "build a revenue model", nil)
	require.NoError(t, err)

	assert.Contains(t, res.Text, "Model built.")
	assert.Contains(t, res.Text, "Final Review:")
	assert.Contains(t, res.Text, "Sheet1: 1 value rows, 0 formula rows")
	assert.Contains(t, res.Text, "queued")
}

func TestRunQueryHistoryReachesProvider(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.TextResult("Of course.")},
		},
	}
	runner, _ := newTestRunner(t, provider)

	history := []sheetagent.HistoryEntry{
		{Role: "user", Content: "set A1 to 10"},
		{Role: "model", Content: "Done, A1 is 10."},
	}
	_, err := runner.RunQuery(context.Background(), "now double it", nil)
	require.NoError(t, err)
	provider.Requests = nil
	provider.Script = append(provider.Script, testutil.ScriptStep{Result: testutil.TextResult("Doubled.")})

	_, err = runner.RunQuery(context.Background(), "now double it", history)
	require.NoError(t, err)

	req := provider.Requests[len(provider.Requests)-1]
	require.GreaterOrEqual(t, len(req.History), 3)
	_, isUser := req.History[0].(sheetagent.UserMessage)
	_, isAssistant := req.History[1].(sheetagent.AssistantMessage)
	assert.True(t, isUser)
	assert.True(t, isAssistant)
	assert.NotEmpty(t, req.SystemPrompt)
	assert.Contains(t, req.SystemPrompt, "Sheet1")
}

func TestRunTableQueryExtracts(t *testing.T) {
	answer := fmt.Sprintf("Here you go:\n%s", `{"values_table": {"1": {"A": "Total", "B": 42}}}`)
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.TextResult(answer)},
		},
	}
	runner, _ := newTestRunner(t, provider)

	res, err := runner.RunTableQuery(context.Background(), "summarize as a table", nil)
	require.NoError(t, err)
	require.NotNil(t, res.ExtractedTable)
	assert.Contains(t, res.ExtractedTable, "values_table")
}

func TestRunTableQueryNoTable(t *testing.T) {
	provider := &testutil.ScriptedProvider{
		Script: []testutil.ScriptStep{
			{Result: testutil.TextResult("Nothing tabular here.")},
		},
	}
	runner, _ := newTestRunner(t, provider)

	res, err := runner.RunTableQuery(context.Background(), "just chat", nil)
	require.NoError(t, err)
	assert.Nil(t, res.ExtractedTable)
	assert.Equal(t, "Nothing tabular here.", res.Text)
}
