package parsers

import (
	"context"
	"io"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// Statement column names
const (
	ColType          = "Type"
	ColProduct       = "Product"
	ColStartedDate   = "Started Date"
	ColCompletedDate = "Completed Date"
	ColDescription   = "Description"
	ColAmount        = "Amount"
	ColFee           = "Fee"
	ColCurrency      = "Currency"
	ColState         = "State"
	ColBalance       = "Balance"
)

// RequiredStatementHeaders is the fixed header set of a statement export
var RequiredStatementHeaders = []string{
	ColType, ColProduct, ColStartedDate, ColCompletedDate, ColDescription,
	ColAmount, ColFee, ColCurrency, ColState, ColBalance,
}

// StatementResult is the output of a statement parse
type StatementResult struct {
	File      string
	Records   []models.BankTransactionRecord
	Stats     *ParseStats
	RowErrors *errors.ParseErrorCollector
}

// StatementParser parses bank statement exports
type StatementParser struct {
	*BaseParser
}

// NewStatementParser creates a StatementParser
func NewStatementParser(config *ParseConfig) (*StatementParser, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", config, err)
	}
	return &StatementParser{BaseParser: NewBaseParser(config, "parser")}, nil
}

// ParseFile checks the extension and size of path, then parses it
func (sp *StatementParser) ParseFile(ctx context.Context, path string) (*StatementResult, error) {
	data, err := sp.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return sp.Parse(ctx, path, data)
}

// Parse parses raw statement bytes. name is used for the extension check
// and in error messages.
func (sp *StatementParser) Parse(ctx context.Context, name string, data []byte) (*StatementResult, error) {
	reader, err := sp.NewReader(name, data)
	if err != nil {
		return nil, err
	}

	parseCtx := NewParseContext(ctx, name)
	if err := sp.ReadHeaders(reader, parseCtx, RequiredStatementHeaders); err != nil {
		return nil, err
	}

	result := &StatementResult{
		File:      name,
		Stats:     NewParseStats(),
		RowErrors: errors.NewParseErrorCollector(sp.config.MaxRowErrors),
	}
	log := sp.logger.WithField("file", name)

	for {
		record, rowErr, err := sp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ReconciliationError(errors.CodeProcessingError, "statement parsing", err)
		}

		result.Stats.RowsRead++
		if rowErr == nil {
			var rec *models.BankTransactionRecord
			rec, rowErr = sp.parseRecord(record, parseCtx)
			if rowErr == nil {
				result.Stats.observeValid(rec)
				if rec.IsCompleted() {
					result.Stats.observeRetained(rec)
					result.Records = append(result.Records, *rec)
				}
				continue
			}
		}

		rowErr = sp.withRow(rowErr, record)
		result.Stats.RowsErrored++
		log.WithFields(logger.Fields{
			"line": parseCtx.Line,
			"code": rowErr.Code,
		}).Warn(rowErr.Error())
		if !result.RowErrors.Add(rowErr) {
			return nil, errors.ParseError(errors.CodeInvalidData, name, parseCtx.Line, "", "", rowErr).
				WithSuggestion("too many invalid rows; check that this is a statement export").
				WithContext("row_errors", result.RowErrors.Count())
		}
	}

	result.Stats.TotalLines = parseCtx.Line
	if len(result.Records) == 0 {
		return nil, errors.ParseError(errors.CodeNoValidRows, name, parseCtx.Line, "", "", nil).
			WithContext("rows_read", result.Stats.RowsRead).
			WithContext("rows_errored", result.Stats.RowsErrored)
	}

	log.WithFields(logger.Fields{
		"rows_read":     result.Stats.RowsRead,
		"rows_retained": result.Stats.RowsRetained,
		"rows_errored":  result.Stats.RowsErrored,
	}).Info("Parsed statement")

	return result, nil
}

// parseRecord converts one tokenized row into a typed record
func (sp *StatementParser) parseRecord(record []string, parseCtx *ParseContext) (*models.BankTransactionRecord, *errors.EnhancedParseError) {
	row := sp.rawRow(record, parseCtx, RequiredStatementHeaders)
	file, line := parseCtx.File, parseCtx.Line

	kind, err := models.ParseKind(row[ColType])
	if err != nil {
		return nil, errors.InvalidEnumError(file, line, ColType, row[ColType], kindNames())
	}
	state, err := models.ParseState(row[ColState])
	if err != nil {
		return nil, errors.InvalidEnumError(file, line, ColState, row[ColState], stateNames())
	}

	if row[ColStartedDate] == "" {
		return nil, errors.EmptyValueError(file, line, ColStartedDate)
	}
	started, err := models.ParseStatementTime(row[ColStartedDate])
	if err != nil {
		return nil, errors.InvalidDateError(file, line, ColStartedDate, row[ColStartedDate])
	}

	rec := &models.BankTransactionRecord{
		Kind:        kind,
		Product:     row[ColProduct],
		StartedAt:   started,
		Description: row[ColDescription],
		Currency:    row[ColCurrency],
		State:       state,
	}

	if row[ColCompletedDate] != "" {
		completed, err := models.ParseStatementTime(row[ColCompletedDate])
		if err != nil {
			return nil, errors.InvalidDateError(file, line, ColCompletedDate, row[ColCompletedDate])
		}
		rec.CompletedAt = &completed
	}

	if row[ColAmount] == "" {
		return nil, errors.EmptyValueError(file, line, ColAmount)
	}
	amount, err := models.ParseAmount(row[ColAmount])
	if err != nil {
		return nil, errors.InvalidAmountError(file, line, ColAmount, row[ColAmount])
	}
	rec.Amount = models.NormalizeSign(kind, amount)

	if rec.Fee, err = models.ParseOptionalAmount(row[ColFee]); err != nil {
		return nil, errors.InvalidAmountError(file, line, ColFee, row[ColFee])
	}
	if rec.Balance, err = models.ParseOptionalAmount(row[ColBalance]); err != nil {
		return nil, errors.InvalidAmountError(file, line, ColBalance, row[ColBalance])
	}

	if err := rec.Validate(); err != nil {
		return nil, errors.NewEnhancedParseError(errors.CodeInvalidData, &errors.ParseContext{File: file, Line: line}, err.Error(), nil)
	}

	return rec, nil
}

func kindNames() []string {
	names := make([]string, len(models.AllKinds))
	for i, k := range models.AllKinds {
		names[i] = string(k)
	}
	return names
}

func stateNames() []string {
	names := make([]string, len(models.AllStates))
	for i, s := range models.AllStates {
		names[i] = string(s)
	}
	return names
}
