// Package reporter renders reconciliation workflow results.
//
// Every operation of a reconciler.Session has a matching Write method
// that renders its result in one of three formats:
//   - Console: human-readable tables for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: staged records as rows, summaries as metric/value pairs
//
// Example usage:
//
//	rg, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	result, err := session.ImportStatement(ctx, path, reconciler.ImportOptions{})
//	err = rg.WriteImport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Console formatting options
	UseColors   bool `json:"use_colors"`
	ShowReasons bool `json:"show_reasons"`
	MaxRows     int  `json:"max_rows"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:       FormatConsole,
		UseColors:    true,
		ShowReasons:  false,
		MaxRows:      0,
		CSVDelimiter: ',',
		CSVHeaders:   true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("max rows cannot be negative, got %d", c.MaxRows)
	}
	switch c.CSVDelimiter {
	case 0, '"', '\r', '\n':
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator renders workflow results in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// WriteImport renders the outcome of a statement import
func (rg *ReportGenerator) WriteImport(result *reconciler.ImportResult, w io.Writer) error {
	if result == nil {
		return fmt.Errorf("import result cannot be nil")
	}
	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(result, w)
	case FormatCSV:
		return rg.writeStagedCSV(result.Staged, w)
	default:
		return rg.consoleImport(result, w)
	}
}

// WriteStaged renders the staging batch
func (rg *ReportGenerator) WriteStaged(records []*models.StagedImportRecord, w io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		if records == nil {
			records = []*models.StagedImportRecord{}
		}
		return rg.writeJSON(records, w)
	case FormatCSV:
		return rg.writeStagedCSV(records, w)
	default:
		return rg.consoleStaged(records, w)
	}
}

// WriteRecord renders a single staged record after a review decision
func (rg *ReportGenerator) WriteRecord(rec *models.StagedImportRecord, w io.Writer) error {
	if rec == nil {
		return fmt.Errorf("staged record cannot be nil")
	}
	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(rec, w)
	case FormatCSV:
		return rg.writeStagedCSV([]*models.StagedImportRecord{rec}, w)
	default:
		return rg.consoleRecord(rec, w)
	}
}

// WriteRescore renders the outcome of a rescore
func (rg *ReportGenerator) WriteRescore(result *reconciler.RescoreResult, w io.Writer) error {
	if result == nil {
		return fmt.Errorf("rescore result cannot be nil")
	}
	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(result, w)
	case FormatCSV:
		metrics := []metric{
			{"total", strconv.Itoa(result.Total)},
			{"rescored", strconv.Itoa(result.Rescored)},
			{"decided", strconv.Itoa(result.Decided)},
		}
		return rg.writeMetricsCSV(append(metrics, breakdownMetrics(result.Breakdown)...), w)
	default:
		return rg.consoleRescore(result, w)
	}
}

// WritePreview renders what a commit would do
func (rg *ReportGenerator) WritePreview(preview *reconciler.CommitPreview, w io.Writer) error {
	if preview == nil {
		return fmt.Errorf("commit preview cannot be nil")
	}
	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(preview, w)
	case FormatCSV:
		metrics := []metric{
			{"to_delete", strconv.Itoa(preview.ToDelete)},
			{"staged", strconv.Itoa(preview.Staged)},
		}
		return rg.writeMetricsCSV(append(metrics, breakdownMetrics(preview.Breakdown)...), w)
	default:
		return rg.consolePreview(preview, w)
	}
}

// WriteCommit renders a commit summary
func (rg *ReportGenerator) WriteCommit(summary *reconciler.CommitSummary, w io.Writer) error {
	if summary == nil {
		return fmt.Errorf("commit summary cannot be nil")
	}
	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(summary, w)
	case FormatCSV:
		metrics := []metric{
			{"deleted", strconv.FormatInt(summary.Deleted, 10)},
			{"committed", strconv.Itoa(summary.Committed)},
			{"verified_with_category", strconv.Itoa(summary.VerifiedWithCategory)},
			{"needs_categorization", strconv.Itoa(summary.NeedsCategorization)},
			{"duration", summary.Duration.String()},
		}
		for _, warning := range summary.Warnings {
			metrics = append(metrics, metric{"warning", warning})
		}
		return rg.writeMetricsCSV(metrics, w)
	default:
		return rg.consoleCommit(summary, w)
	}
}

// WriteLedgerLoad renders the outcome of a ledger seed
func (rg *ReportGenerator) WriteLedgerLoad(result *reconciler.LoadLedgerResult, w io.Writer) error {
	if result == nil {
		return fmt.Errorf("ledger load result cannot be nil")
	}
	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(result, w)
	case FormatCSV:
		return rg.writeMetricsCSV([]metric{
			{"file", result.File},
			{"loaded", strconv.Itoa(result.Loaded)},
			{"categories_created", strconv.Itoa(result.CategoriesCreated)},
			{"row_errors", strconv.Itoa(len(result.RowErrors))},
		}, w)
	default:
		return rg.consoleLedgerLoad(result, w)
	}
}

func (rg *ReportGenerator) writeJSON(v interface{}, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

var stagedCSVHeaders = []string{
	"ID",
	"Type",
	"Started_Date",
	"Completed_Date",
	"Description",
	"Amount",
	"Fee",
	"Currency",
	"Balance",
	"Status",
	"Confidence",
	"Score",
	"Matched_Ledger_ID",
	"Suggested_Category_ID",
	"Reasons",
	"Note",
}

func (rg *ReportGenerator) writeStagedCSV(records []*models.StagedImportRecord, w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(stagedCSVHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, rec := range records {
		completed := ""
		if rec.CompletedAt != nil {
			completed = rec.CompletedAt.Format(models.ISOTimestampLayout)
		}
		row := []string{
			rec.ID,
			string(rec.Kind),
			rec.StartedAt.Format(models.ISOTimestampLayout),
			completed,
			rec.Description,
			rec.Amount.StringFixed(2),
			rec.Fee.StringFixed(2),
			rec.Currency,
			rec.Balance.StringFixed(2),
			string(rec.MatchStatus),
			string(rec.MatchConfidence),
			strconv.FormatFloat(rec.MatchScore, 'f', 3, 64),
			models.Deref(rec.MatchedLedgerID),
			models.Deref(rec.SuggestedCategoryID),
			strings.Join(rec.MatchReasons, "; "),
			models.Deref(rec.VerificationNote),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write staged record %s: %w", rec.ID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

type metric struct {
	name  string
	value string
}

func breakdownMetrics(breakdown map[models.MatchStatus]int) []metric {
	metrics := make([]metric, 0, len(models.AllStatuses))
	for _, status := range models.AllStatuses {
		metrics = append(metrics, metric{"status_" + string(status), strconv.Itoa(breakdown[status])})
	}
	return metrics
}

func (rg *ReportGenerator) writeMetricsCSV(metrics []metric, w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write([]string{"Metric", "Value"}); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, m := range metrics {
		if err := csvWriter.Write([]string{m.name, m.value}); err != nil {
			return fmt.Errorf("failed to write metric %s: %w", m.name, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
