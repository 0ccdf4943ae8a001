package sheetagent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// FinancialModelKeywords mark queries that get an automatic workbook
// review after the run.
var FinancialModelKeywords = []string{
	"financial model",
	"3 statement",
	"income statement",
	"balance sheet",
	"cash flow",
	"revenue model",
	"assumptions",
	"model",
}

// IsFinancialModelQuery is the default review policy.
func IsFinancialModelQuery(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range FinancialModelKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// appendReview inspects the pending-update queue and every sheet's row
// counts, and appends a per-sheet summary to the answer. Review failures
// never fail the run.
func (r *Runner) appendReview(ctx context.Context, text string) string {
	pending, err := r.backend.AllPendingUpdates(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not check pending updates for review")
		pending = nil
	}

	all, err := r.backend.AllSheetsTables(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not fetch sheet tables for review")
		return text
	}

	ids := make([]string, 0, len(all.Sheets))
	for id := range all.Sheets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var lines []string
	for _, id := range ids {
		s := all.Sheets[id]
		name := s.SheetName
		if name == "" {
			name = "Unknown"
		}
		if s.ValuesCount > 0 || s.FormulasCount > 0 {
			lines = append(lines, fmt.Sprintf("%s: %d value rows, %d formula rows", name, s.ValuesCount, s.FormulasCount))
		} else {
			lines = append(lines, fmt.Sprintf("%s: Empty or error", name))
		}
	}
	if len(lines) == 0 {
		return text
	}

	text = text + "\n\n**Final Review:**\n" + strings.Join(lines, "\n")
	if pending != nil && pending.TotalUpdatesQueued > 0 {
		text += fmt.Sprintf("\n\n%d updates are queued and will appear in the spreadsheet within 2-3 seconds.", pending.TotalUpdatesQueued)
	}
	return text
}
