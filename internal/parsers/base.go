// Package parsers turns exported bank statements and ledger seed files into
// typed records.
//
// Untyped rows never leave this package: every row is mapped through the
// header index into a validated models type, and rows that fail validation
// are collected as row-level errors instead of aborting the parse.
//
// Parser Types:
//   - StatementParser: bank statement exports (Type, Product, Started Date, ...)
//   - LedgerParser: ledger seed files used to populate an empty ledger
//
// Example usage:
//
//	parser, err := NewStatementParser(DefaultParseConfig())
//	result, err := parser.ParseFile(ctx, "statement.csv")
//	fmt.Println(result.Stats)
package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// DefaultMaxFileSize is the upload limit applied when none is configured
const DefaultMaxFileSize int64 = 10 << 20

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Delimiter         rune
	TrimLeadingSpace  bool
	MaxFileSize       int64
	MaxRowErrors      int
	ValidateEncoding  bool
	AllowedExtensions []string
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:         ',',
		TrimLeadingSpace:  true,
		MaxFileSize:       DefaultMaxFileSize,
		MaxRowErrors:      0,
		ValidateEncoding:  true,
		AllowedExtensions: []string{".csv"},
	}
}

// Validate checks the configuration
func (c *ParseConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '"' || c.Delimiter == '\r' || c.Delimiter == '\n' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive")
	}
	if c.MaxRowErrors < 0 {
		return fmt.Errorf("max row errors cannot be negative")
	}
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one allowed extension is required")
	}
	return nil
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent(component)
	log.WithFields(logger.Fields{
		"delimiter":     string(config.Delimiter),
		"max_file_size": config.MaxFileSize,
	}).Debug("Created parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// SetLogger replaces the parser's logger
func (bp *BaseParser) SetLogger(l logger.Logger) {
	bp.logger = l
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	File      string
	Line      int
	Headers   []string
	HeaderMap map[string]int
	ctx       context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, file string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		File:      file,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found.
// Lookup is case-insensitive.
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[strings.ToLower(strings.TrimSpace(name))]; exists {
		return index
	}
	return -1
}

// CheckFile rejects a path by extension and size before any content is read
func (bp *BaseParser) CheckFile(path string) error {
	if err := bp.checkExtension(path); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		return errors.FileError("", path, err)
	}
	if info.IsDir() {
		return errors.FileError("", path, fmt.Errorf("path is a directory"))
	}
	return bp.checkSize(path, info.Size())
}

func (bp *BaseParser) checkExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range bp.config.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	bp.logger.WithFields(logger.Fields{"file": name, "extension": ext}).Warn("Rejected file extension")
	return errors.FileError(errors.CodeInvalidExtension, name, nil).
		WithContext("extension", ext).
		WithContext("allowed", bp.config.AllowedExtensions)
}

func (bp *BaseParser) checkSize(name string, size int64) error {
	if size > bp.config.MaxFileSize {
		bp.logger.WithFields(logger.Fields{
			"file":     name,
			"size":     size,
			"max_size": bp.config.MaxFileSize,
		}).Warn("Rejected oversized file")
		return errors.FileError(errors.CodeFileTooLarge, name, nil).
			WithContext("size", size).
			WithContext("max_size", bp.config.MaxFileSize)
	}
	return nil
}

// ReadFile applies CheckFile and returns the file contents
func (bp *BaseParser) ReadFile(path string) ([]byte, error) {
	if err := bp.CheckFile(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileError("", path, err)
	}
	return data, nil
}

// NewReader validates name and data and returns a configured csv.Reader.
// A leading UTF-8 byte order mark is dropped.
func (bp *BaseParser) NewReader(name string, data []byte) (*csv.Reader, error) {
	if err := bp.checkExtension(name); err != nil {
		return nil, err
	}
	if err := bp.checkSize(name, int64(len(data))); err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	if bp.config.ValidateEncoding && !utf8.Valid(data) {
		line := 1 + bytes.Count(data[:firstInvalidUTF8(data)], []byte("\n"))
		return nil, errors.ParseError(errors.CodeEncodingError, name, line, "", "", fmt.Errorf("invalid UTF-8 encoding detected"))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader, nil
}

func firstInvalidUTF8(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// ReadHeaders reads the header row and fails with every missing required header named
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, requiredHeaders []string) error {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			bp.logger.WithField("file", parseCtx.File).Error("File is empty")
			return errors.ParseError(errors.CodeInvalidFormat, parseCtx.File, 1, "headers", "", fmt.Errorf("file is empty")).
				WithSuggestion("ensure the file contains a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.File, 1, "headers", "", err)
	}

	parseCtx.Line = 1
	parseCtx.Headers = make([]string, len(headers))
	parseCtx.HeaderMap = make(map[string]int, len(headers))
	for i, header := range headers {
		clean := strings.TrimSpace(header)
		parseCtx.Headers[i] = clean
		key := strings.ToLower(clean)
		if _, dup := parseCtx.HeaderMap[key]; !dup {
			parseCtx.HeaderMap[key] = i
		}
	}

	missing := errors.MissingColumns(requiredHeaders, parseCtx.Headers)
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return errors.ParseError(errors.CodeMissingColumn, parseCtx.File, 1, strings.Join(missing, ", "), "", nil).
			WithContext("missing", missing)
	}

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Read headers")
	return nil
}

// ReadRecord returns the next non-empty record. Tokenizer failures are
// returned as a recoverable row error so the caller can skip the line.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, *errors.EnhancedParseError, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, nil, parseCtx.ctx.Err()
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		if err != nil {
			line := parseCtx.Line + 1
			if pe, ok := err.(*csv.ParseError); ok {
				line = pe.Line
			}
			parseCtx.Line = line
			return nil, errors.MalformedRowError(parseCtx.File, line, err), nil
		}

		line, _ := reader.FieldPos(0)
		parseCtx.Line = line

		if isEmptyRecord(record) {
			continue
		}
		return record, nil, nil
	}
}

// withRow attaches the raw row to a row error when the row was tokenized
func (bp *BaseParser) withRow(rowErr *errors.EnhancedParseError, record []string) *errors.EnhancedParseError {
	if len(record) > 0 {
		rowErr.WithLineContent(strings.Join(record, string(bp.config.Delimiter)))
	}
	return rowErr
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue retrieves a trimmed field by header name. A short row
// yields an empty value.
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, fieldName string) string {
	index := parseCtx.GetColumnIndex(fieldName)
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// RawRow maps header names to values for one line. It is used only while
// building a typed record.
type RawRow map[string]string

func (bp *BaseParser) rawRow(record []string, parseCtx *ParseContext, fields []string) RawRow {
	row := make(RawRow, len(fields))
	for _, f := range fields {
		row[f] = bp.GetFieldValue(record, parseCtx, f)
	}
	return row
}
