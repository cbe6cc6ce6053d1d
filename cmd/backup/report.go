package backup

import (
	"errors"
	"fmt"
	"io"

	"soupbackup/crawler"

	"github.com/jedib0t/go-pretty/v6/table"
)

func outcomeStatus(outcome targetOutcome) string {
	switch {
	case outcome.Result == nil && outcome.Err != nil:
		return "ERROR"
	case errors.Is(outcome.Err, crawler.ErrGaveUp):
		return outcome.Result.State.String()
	case outcome.Err != nil:
		return "INTERRUPTED"
	default:
		return outcome.Result.State.String()
	}
}

func printSummary(w io.Writer, outcomes []targetOutcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{
		"Soup", "Status", "Pages", "New", "Existing", "Repaired", "Failed", "Assets", "Types",
	})
	for _, outcome := range outcomes {
		if outcome.Result == nil {
			t.AppendRow(table.Row{outcome.Soup, outcomeStatus(outcome), "", "", "", "", "", "", ""})
			continue
		}
		stats := outcome.Result.Stats
		t.AppendRow(table.Row{
			outcome.Soup,
			outcomeStatus(outcome),
			stats.PagesFetched,
			stats.PostsWritten,
			stats.PostsExisting,
			stats.PostsRepaired,
			stats.PostsFailed,
			fmt.Sprintf("%d new, %d existing, %d failed", stats.AssetsDownloaded, stats.AssetsSkipped, stats.AssetsFailed),
			stats.TypesSummary(),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
