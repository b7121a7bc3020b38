package parsers

import (
	"context"
	"io"
	"strings"
	"time"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/pkg/errors"
)

// Ledger seed column names
const (
	LedgerColDate        = "Date"
	LedgerColDescription = "Description"
	LedgerColAmount      = "Amount"
	LedgerColDirection   = "Direction"
	LedgerColCategory    = "Category"
)

// RequiredLedgerHeaders must be present in a ledger seed file. Direction
// and Category are optional.
var RequiredLedgerHeaders = []string{LedgerColDate, LedgerColDescription, LedgerColAmount}

var ledgerDateLayouts = []string{"2006-01-02", "02/01/2006", models.ISOTimestampLayout}

// LedgerRow is one ledger seed entry. Category is carried by name; the
// caller resolves or creates it.
type LedgerRow struct {
	Transaction  models.LedgerTransaction
	CategoryName string
}

// LedgerResult is the output of a ledger seed parse
type LedgerResult struct {
	Rows      []LedgerRow
	RowErrors *errors.ParseErrorCollector
}

// LedgerParser parses ledger seed files
type LedgerParser struct {
	*BaseParser
}

// NewLedgerParser creates a LedgerParser
func NewLedgerParser(config *ParseConfig) (*LedgerParser, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", config, err)
	}
	return &LedgerParser{BaseParser: NewBaseParser(config, "ledger_parser")}, nil
}

// ParseFile parses a ledger seed file into unsaved ledger transactions
func (lp *LedgerParser) ParseFile(ctx context.Context, path string) (*LedgerResult, error) {
	data, err := lp.ReadFile(path)
	if err != nil {
		return nil, err
	}

	reader, err := lp.NewReader(path, data)
	if err != nil {
		return nil, err
	}

	parseCtx := NewParseContext(ctx, path)
	if err := lp.ReadHeaders(reader, parseCtx, RequiredLedgerHeaders); err != nil {
		return nil, err
	}

	result := &LedgerResult{RowErrors: errors.NewParseErrorCollector(lp.config.MaxRowErrors)}
	for {
		record, rowErr, err := lp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ReconciliationError(errors.CodeProcessingError, "ledger parsing", err)
		}
		if rowErr == nil {
			var row *LedgerRow
			if row, rowErr = lp.parseRow(record, parseCtx); rowErr == nil {
				result.Rows = append(result.Rows, *row)
				continue
			}
		}
		rowErr = lp.withRow(rowErr, record)
		lp.logger.WithField("line", parseCtx.Line).Warn(rowErr.Error())
		if !result.RowErrors.Add(rowErr) {
			return nil, errors.ParseError(errors.CodeInvalidData, path, parseCtx.Line, "", "", rowErr)
		}
	}

	if len(result.Rows) == 0 {
		return nil, errors.ParseError(errors.CodeNoValidRows, path, parseCtx.Line, "", "", nil)
	}
	return result, nil
}

func (lp *LedgerParser) parseRow(record []string, parseCtx *ParseContext) (*LedgerRow, *errors.EnhancedParseError) {
	fields := append(append([]string{}, RequiredLedgerHeaders...), LedgerColDirection, LedgerColCategory)
	row := lp.rawRow(record, parseCtx, fields)
	file, line := parseCtx.File, parseCtx.Line

	if row[LedgerColDescription] == "" {
		return nil, errors.EmptyValueError(file, line, LedgerColDescription)
	}

	date, ok := parseLedgerDate(row[LedgerColDate])
	if !ok {
		return nil, errors.InvalidDateError(file, line, LedgerColDate, row[LedgerColDate])
	}

	amount, err := models.ParseAmount(row[LedgerColAmount])
	if err != nil {
		return nil, errors.InvalidAmountError(file, line, LedgerColAmount, row[LedgerColAmount])
	}

	direction := models.DirectionOf(amount)
	if raw := row[LedgerColDirection]; raw != "" {
		if direction, err = models.ParseDirection(raw); err != nil {
			return nil, errors.InvalidEnumError(file, line, LedgerColDirection, raw, []string{"income", "expenditure"})
		}
	}

	return &LedgerRow{
		Transaction: models.LedgerTransaction{
			Description: row[LedgerColDescription],
			Amount:      amount.Abs(),
			Direction:   direction,
			OccurredOn:  date,
		},
		CategoryName: strings.TrimSpace(row[LedgerColCategory]),
	}, nil
}

func parseLedgerDate(s string) (time.Time, bool) {
	for _, layout := range ledgerDateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
