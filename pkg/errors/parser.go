package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ParseContext locates a row-level problem inside a statement file
type ParseContext struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column"`
	Value    string `json:"value"`
	Expected string `json:"expected,omitempty"`
}

// EnhancedParseError is a row-level parse failure. Recoverable errors skip
// the row; unrecoverable ones abort the whole file.
type EnhancedParseError struct {
	*ReconcilerError
	Location    *ParseContext `json:"location"`
	Recoverable bool          `json:"recoverable"`
	LineContent string        `json:"line_content,omitempty"`
	Examples    []string      `json:"examples,omitempty"`
}

// Error implements the error interface with the row location appended
func (e *EnhancedParseError) Error() string {
	parts := []string{e.ReconcilerError.Error()}

	if e.Location != nil {
		location := fmt.Sprintf("at %s", filepath.Base(e.Location.File))
		if e.Location.Line > 0 {
			location += fmt.Sprintf(":%d", e.Location.Line)
		}
		if e.Location.Column != "" {
			location += fmt.Sprintf(" column '%s'", e.Location.Column)
		}
		parts = append(parts, location)
	}

	return strings.Join(parts, " ")
}

// GetDetailedError returns a detailed multi-line error description
func (e *EnhancedParseError) GetDetailedError() string {
	var lines []string

	lines = append(lines, fmt.Sprintf("ERROR: %s", e.Message))

	if e.Location != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", e.Location.File))
		if e.Location.Line > 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", e.Location.Line))
		}
		if e.Location.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", e.Location.Column))
		}
		if e.Location.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", e.Location.Value))
		}
		if e.Location.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Location.Expected))
		}
	}

	if e.LineContent != "" {
		lines = append(lines, fmt.Sprintf("  → Content: %s", e.LineContent))
	}

	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}

	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples:")
		for _, example := range e.Examples {
			lines = append(lines, fmt.Sprintf("    • %s", example))
		}
	}

	return strings.Join(lines, "\n")
}

// NewEnhancedParseError creates a new row-level parse error
func NewEnhancedParseError(code ErrorCode, location *ParseContext, message string, cause error) *EnhancedParseError {
	baseError := build(cause, CategoryValidation, code, message)

	if location != nil {
		baseError.WithContext("file", location.File).
			WithContext("line", location.Line).
			WithContext("column", location.Column).
			WithContext("value", location.Value)
	}

	return &EnhancedParseError{
		ReconcilerError: baseError,
		Location:        location,
		Recoverable:     true,
	}
}

// WithLineContent adds the raw line to the error
func (e *EnhancedParseError) WithLineContent(content string) *EnhancedParseError {
	e.LineContent = content
	return e
}

// WithExamples adds example values to help fix the error
func (e *EnhancedParseError) WithExamples(examples ...string) *EnhancedParseError {
	e.Examples = examples
	return e
}

// WithSuggestion adds a suggestion and returns the EnhancedParseError
func (e *EnhancedParseError) WithSuggestion(suggestion string) *EnhancedParseError {
	e.ReconcilerError.WithSuggestion(suggestion)
	return e
}

// InvalidAmountError reports an amount, fee or balance that is not a number
// after currency symbols and separators are stripped.
func InvalidAmountError(file string, line int, column string, value string) *EnhancedParseError {
	location := &ParseContext{
		File:     file,
		Line:     line,
		Column:   column,
		Value:    value,
		Expected: "decimal number",
	}

	return NewEnhancedParseError(CodeInvalidAmount, location, "invalid amount format", nil).
		WithExamples("12.34", "-1,250.50", "€-500.00").
		WithSuggestion("use a decimal number; currency symbols and thousands separators are ignored")
}

// InvalidDateError reports a timestamp in neither supported layout
func InvalidDateError(file string, line int, column string, value string) *EnhancedParseError {
	location := &ParseContext{
		File:     file,
		Line:     line,
		Column:   column,
		Value:    value,
		Expected: "YYYY-MM-DD HH:MM:SS or DD/MM/YYYY HH:MM",
	}

	return NewEnhancedParseError(CodeInvalidDate, location, "invalid date format", nil).
		WithExamples("2024-03-01 09:15:00", "01/03/2024 09:15").
		WithSuggestion("re-export the statement with full timestamps")
}

// InvalidEnumError reports a Type or State value outside the known set
func InvalidEnumError(file string, line int, column string, value string, allowed []string) *EnhancedParseError {
	location := &ParseContext{
		File:     file,
		Line:     line,
		Column:   column,
		Value:    value,
		Expected: strings.Join(allowed, ", "),
	}

	return NewEnhancedParseError(CodeInvalidData, location, fmt.Sprintf("unrecognized %s", strings.ToLower(column)), nil).
		WithExamples(allowed...).
		WithSuggestion(fmt.Sprintf("use one of the supported %s values", strings.ToLower(column)))
}

// EmptyValueError creates an error for empty required values
func EmptyValueError(file string, line int, column string) *EnhancedParseError {
	location := &ParseContext{
		File:     file,
		Line:     line,
		Column:   column,
		Expected: "non-empty value",
	}

	return NewEnhancedParseError(CodeMissingField, location, "required field is empty", nil).
		WithSuggestion("provide a value for this required field")
}

// MalformedRowError reports a row the CSV reader could not tokenize
func MalformedRowError(file string, line int, cause error) *EnhancedParseError {
	location := &ParseContext{
		File: file,
		Line: line,
	}

	return NewEnhancedParseError(CodeInvalidFormat, location, "malformed row", cause).
		WithSuggestion("check quoting on this line")
}

// ParseErrorCollector collects row-level errors while a file is parsed
type ParseErrorCollector struct {
	errors    []*EnhancedParseError
	maxErrors int
}

// NewParseErrorCollector creates a collector that stops accepting rows once
// maxErrors is reached. A maxErrors of zero means no limit.
func NewParseErrorCollector(maxErrors int) *ParseErrorCollector {
	return &ParseErrorCollector{
		errors:    make([]*EnhancedParseError, 0),
		maxErrors: maxErrors,
	}
}

// Add records err and reports whether parsing may continue
func (c *ParseErrorCollector) Add(err *EnhancedParseError) bool {
	if err == nil {
		return true
	}

	c.errors = append(c.errors, err)

	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}

	return err.Recoverable
}

// HasErrors returns true if any errors have been collected
func (c *ParseErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Count returns the number of collected errors
func (c *ParseErrorCollector) Count() int {
	return len(c.errors)
}

// GetErrors returns all collected errors
func (c *ParseErrorCollector) GetErrors() []*EnhancedParseError {
	return c.errors
}

// GetReconcilerErrors converts all errors to base ReconcilerError type
func (c *ParseErrorCollector) GetReconcilerErrors() []*ReconcilerError {
	result := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		result[i] = err.ReconcilerError
	}
	return result
}

// GetSummary returns an error summary for all collected errors
func (c *ParseErrorCollector) GetSummary() *ErrorSummary {
	return NewErrorSummary(c.GetReconcilerErrors())
}

// Describe returns the aggregate message shown for skipped rows
func (c *ParseErrorCollector) Describe() string {
	return DescribeRowErrors(len(c.errors))
}

// DescribeRowErrors describes n unparseable rows, or returns "" for none
func DescribeRowErrors(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "1 row could not be parsed"
	default:
		return fmt.Sprintf("%d rows could not be parsed", n)
	}
}

// MissingColumns returns the expected columns absent from actual, compared
// case-insensitively after trimming.
func MissingColumns(expected, actual []string) []string {
	actualSet := make(map[string]bool)
	for _, col := range actual {
		actualSet[strings.ToLower(strings.TrimSpace(col))] = true
	}

	var missing []string
	for _, col := range expected {
		if !actualSet[strings.ToLower(strings.TrimSpace(col))] {
			missing = append(missing, col)
		}
	}

	return missing
}

// FormatParseErrorsForUser formats multiple parse errors in a user-friendly way
func FormatParseErrorsForUser(errs []*EnhancedParseError) string {
	if len(errs) == 0 {
		return "No parse errors"
	}

	if len(errs) == 1 {
		return errs[0].GetDetailedError()
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Found %d parse errors:", len(errs)))

	maxDetailedErrors := 3
	for i, err := range errs {
		if i == maxDetailedErrors {
			lines = append(lines, "")
			lines = append(lines, fmt.Sprintf("... and %d more", len(errs)-maxDetailedErrors))
			break
		}
		lines = append(lines, "")
		lines = append(lines, err.GetDetailedError())
	}

	return strings.Join(lines, "\n")
}
