package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/reconciler"
	"statement-reconciliation-service/pkg/errors"
)

const (
	colorRed    lipgloss.Color = "#f38ba8"
	colorYellow lipgloss.Color = "#f9e2af"
	colorGreen  lipgloss.Color = "#a6e3a1"
	colorBlue   lipgloss.Color = "#89b4fa"
	colorTeal   lipgloss.Color = "#94e2d5"
	colorMuted  lipgloss.Color = "#7f849c"
)

const maxDescriptionWidth = 40

type consoleStyles struct {
	heading lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
	cell    lipgloss.Style
	status  map[models.MatchStatus]lipgloss.Style
}

// newConsoleStyles binds styles to w. Without colors the renderer is
// forced to plain ASCII so output is stable when piped.
func (rg *ReportGenerator) newConsoleStyles(w io.Writer) *consoleStyles {
	var opts []termenv.OutputOption
	if !rg.config.UseColors {
		opts = append(opts, termenv.WithProfile(termenv.Ascii))
	}
	r := lipgloss.NewRenderer(w, opts...)

	return &consoleStyles{
		heading: r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
		warning: r.NewStyle().Foreground(colorYellow),
		cell:    r.NewStyle().Padding(0, 1),
		status: map[models.MatchStatus]lipgloss.Style{
			models.StatusUnmatched: r.NewStyle().Padding(0, 1).Foreground(colorRed),
			models.StatusPotential: r.NewStyle().Padding(0, 1).Foreground(colorYellow),
			models.StatusMatched:   r.NewStyle().Padding(0, 1).Foreground(colorGreen),
			models.StatusReviewed:  r.NewStyle().Padding(0, 1).Foreground(colorBlue),
			models.StatusVerified:  r.NewStyle().Padding(0, 1).Foreground(colorTeal),
		},
	}
}

func (rg *ReportGenerator) consoleImport(result *reconciler.ImportResult, w io.Writer) error {
	st := rg.newConsoleStyles(w)

	fmt.Fprintln(w, st.heading.Render("IMPORT: "+result.File))
	fmt.Fprintf(w, "Processing Duration: %s\n", formatDuration(result.Duration))
	if result.Cleared > 0 {
		fmt.Fprintf(w, "Cleared previous session: %d records\n", result.Cleared)
	}
	for _, msg := range result.Messages() {
		fmt.Fprintln(w, st.warning.Render("! "+msg))
	}
	fmt.Fprintln(w)

	if stats := result.Stats; stats != nil {
		fmt.Fprintln(w, st.heading.Render("=== STATEMENT ==="))
		fmt.Fprintln(w, stats.String())
		fmt.Fprintf(w, "Income:      %s\n", stats.TotalIncome.StringFixed(2))
		fmt.Fprintf(w, "Expenditure: %s\n", stats.TotalExpenditure.StringFixed(2))
		fmt.Fprintf(w, "Net:         %s\n", stats.Net().StringFixed(2))
		if stats.EarliestAt != nil && stats.LatestAt != nil {
			fmt.Fprintf(w, "Period:      %s to %s\n",
				stats.EarliestAt.Format("2006-01-02"), stats.LatestAt.Format("2006-01-02"))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, st.heading.Render("=== DUPLICATES ==="))
	fmt.Fprintf(w, "Skipped: %d (in staging: %d, in ledger: %d)\n", result.Skipped, result.SkippedBatch, result.SkippedLedger)
	fmt.Fprintln(w)

	if len(result.Staged) > 0 {
		fmt.Fprintln(w, st.heading.Render(fmt.Sprintf("=== STAGED RECORDS (%d) ===", len(result.Staged))))
		rg.printStagedTable(result.Staged, st, w)
		fmt.Fprintln(w)

		fmt.Fprintln(w, st.heading.Render("=== MATCH BREAKDOWN ==="))
		rg.printBreakdown(result.Breakdown, w)
		fmt.Fprintln(w)
	}

	if len(result.RowErrors) > 0 {
		fmt.Fprintln(w, st.heading.Render(fmt.Sprintf("=== ROW ERRORS (%d) ===", len(result.RowErrors))))
		fmt.Fprintln(w, errors.FormatParseErrorsForUser(result.RowErrors))
	}
	return nil
}

func (rg *ReportGenerator) consoleStaged(records []*models.StagedImportRecord, w io.Writer) error {
	st := rg.newConsoleStyles(w)
	if len(records) == 0 {
		fmt.Fprintln(w, st.muted.Render("Nothing staged."))
		return nil
	}

	fmt.Fprintln(w, st.heading.Render(fmt.Sprintf("=== STAGED RECORDS (%d) ===", len(records))))
	rg.printStagedTable(records, st, w)
	fmt.Fprintln(w)

	breakdown := make(map[models.MatchStatus]int)
	for _, rec := range records {
		breakdown[rec.MatchStatus]++
	}
	fmt.Fprintln(w, st.heading.Render("=== MATCH BREAKDOWN ==="))
	rg.printBreakdown(breakdown, w)
	return nil
}

func (rg *ReportGenerator) consoleRecord(rec *models.StagedImportRecord, w io.Writer) error {
	st := rg.newConsoleStyles(w)
	status := st.status[rec.MatchStatus]

	fmt.Fprintln(w, st.heading.Render("RECORD "+rec.ID))
	fmt.Fprintf(w, "Description: %s\n", rec.Description)
	fmt.Fprintf(w, "Amount:      %s %s\n", rec.Amount.StringFixed(2), rec.Currency)
	fmt.Fprintf(w, "Date:        %s\n", rec.OccurredAt().Format(models.ISOTimestampLayout))
	fmt.Fprintf(w, "Status:     %s\n", status.Render(string(rec.MatchStatus)))
	if rec.MatchConfidence != models.ConfidenceNone {
		fmt.Fprintf(w, "Confidence:  %s (%.3f)\n", rec.MatchConfidence, rec.MatchScore)
	}
	if rec.MatchedLedgerID != nil {
		fmt.Fprintf(w, "Ledger:      %s\n", *rec.MatchedLedgerID)
	}
	if rec.VerificationNote != nil {
		fmt.Fprintf(w, "Note:        %s\n", *rec.VerificationNote)
	}
	for _, reason := range rec.MatchReasons {
		fmt.Fprintln(w, st.muted.Render("  - "+reason))
	}
	return nil
}

func (rg *ReportGenerator) consoleRescore(result *reconciler.RescoreResult, w io.Writer) error {
	st := rg.newConsoleStyles(w)

	fmt.Fprintln(w, st.heading.Render("RESCORE"))
	fmt.Fprintf(w, "Total:    %d\n", result.Total)
	fmt.Fprintf(w, "Rescored: %d\n", result.Rescored)
	fmt.Fprintf(w, "Decided:  %d (kept)\n", result.Decided)
	fmt.Fprintln(w)

	fmt.Fprintln(w, st.heading.Render("=== MATCH BREAKDOWN ==="))
	rg.printBreakdown(result.Breakdown, w)
	return nil
}

func (rg *ReportGenerator) consolePreview(preview *reconciler.CommitPreview, w io.Writer) error {
	st := rg.newConsoleStyles(w)

	fmt.Fprintln(w, st.heading.Render("COMMIT PREVIEW"))
	fmt.Fprintf(w, "Ledger rows to delete:  %d\n", preview.ToDelete)
	fmt.Fprintf(w, "Staged rows to insert:  %d\n", preview.Staged)
	if preview.Staged == 0 {
		fmt.Fprintln(w, st.warning.Render("! nothing staged, commit would fail"))
		return nil
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, st.heading.Render("=== MATCH BREAKDOWN ==="))
	rg.printBreakdown(preview.Breakdown, w)
	return nil
}

func (rg *ReportGenerator) consoleCommit(summary *reconciler.CommitSummary, w io.Writer) error {
	st := rg.newConsoleStyles(w)

	fmt.Fprintln(w, st.heading.Render("COMMIT COMPLETE"))
	fmt.Fprintf(w, "Processing Duration: %s\n\n", formatDuration(summary.Duration))
	fmt.Fprintf(w, "Ledger rows deleted:     %d\n", summary.Deleted)
	fmt.Fprintf(w, "Ledger rows committed:   %d\n", summary.Committed)
	fmt.Fprintf(w, "Verified with category:  %d\n", summary.VerifiedWithCategory)
	fmt.Fprintf(w, "Needs categorization:    %d (%.1f%%)\n", summary.NeedsCategorization,
		rg.calculatePercentage(summary.NeedsCategorization, summary.Committed))

	if len(summary.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.heading.Render(fmt.Sprintf("=== WARNINGS (%d) ===", len(summary.Warnings))))
		for _, warning := range summary.Warnings {
			fmt.Fprintln(w, st.warning.Render("  - "+warning))
		}
	}
	return nil
}

func (rg *ReportGenerator) consoleLedgerLoad(result *reconciler.LoadLedgerResult, w io.Writer) error {
	st := rg.newConsoleStyles(w)

	fmt.Fprintln(w, st.heading.Render("LEDGER LOADED: "+result.File))
	fmt.Fprintf(w, "Rows loaded:         %d\n", result.Loaded)
	fmt.Fprintf(w, "Categories created:  %d\n", result.CategoriesCreated)
	if len(result.RowErrors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.heading.Render(fmt.Sprintf("=== ROW ERRORS (%d) ===", len(result.RowErrors))))
		fmt.Fprintln(w, errors.FormatParseErrorsForUser(result.RowErrors))
	}
	return nil
}

func (rg *ReportGenerator) printStagedTable(records []*models.StagedImportRecord, st *consoleStyles, w io.Writer) {
	shown := records
	if limit := rg.config.MaxRows; limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	headers := []string{"#", "ID", "Date", "Description", "Amount", "Status", "Confidence", "Score"}
	if rg.config.ShowReasons {
		headers = append(headers, "Reasons")
	}
	const statusCol = 5

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.muted).
		Headers(headers...)
	for i, rec := range shown {
		row := []string{
			fmt.Sprintf("%d", i+1),
			rec.ID,
			rec.OccurredAt().Format("2006-01-02"),
			truncate(rec.Description, maxDescriptionWidth),
			rec.Amount.StringFixed(2),
			string(rec.MatchStatus),
			string(rec.MatchConfidence),
			fmt.Sprintf("%.3f", rec.MatchScore),
		}
		if rg.config.ShowReasons {
			row = append(row, strings.Join(rec.MatchReasons, "; "))
		}
		t.Row(row...)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row < 0 || row >= len(shown) {
			return st.heading.Padding(0, 1)
		}
		if col == statusCol {
			return st.status[shown[row].MatchStatus]
		}
		return st.cell
	})

	fmt.Fprintln(w, t.String())
	if len(shown) < len(records) {
		fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("... and %d more", len(records)-len(shown))))
	}
}

func (rg *ReportGenerator) printBreakdown(breakdown map[models.MatchStatus]int, w io.Writer) {
	total := 0
	for _, n := range breakdown {
		total += n
	}
	for _, status := range models.AllStatuses {
		n := breakdown[status]
		label := fmt.Sprintf("%-10s", string(status)+":")
		fmt.Fprintf(w, "%s %d (%.1f%%)\n", label, n, rg.calculatePercentage(n, total))
	}
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}
