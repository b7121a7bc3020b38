package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
		expectText string
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
			expectText: "file not found: no such file",
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			expectCode: 3,
			expectText: "invalid format",
		},
		{
			name:       "storage error",
			category:   CategoryStorage,
			code:       CodeStoreFailure,
			message:    "store failure",
			cause:      errors.New("disk full"),
			expectCode: 6,
			expectText: "store failure: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.expectText {
				t.Errorf("expected error string %q, got %q", tt.expectText, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		err := FileError(CodeInvalidExtension, "/test/statement.xlsx", nil)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Context["file_path"] != "/test/statement.xlsx" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
	})

	t.Run("ParseError missing headers", func(t *testing.T) {
		err := ParseError(CodeMissingColumn, "test.csv", 1, "Amount, Fee", "", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if !strings.Contains(err.Message, "missing required headers") {
			t.Errorf("expected missing headers message, got %q", err.Message)
		}
		if !strings.Contains(err.Message, "Amount, Fee") {
			t.Errorf("expected message to name columns, got %q", err.Message)
		}
	})

	t.Run("StoreError", func(t *testing.T) {
		cause := errors.New("database is locked")
		err := StoreError("duplicate check", cause)

		if err.Category != CategoryStorage {
			t.Errorf("expected storage category, got %s", err.Category)
		}
		if err.Context["operation"] != "duplicate check" {
			t.Errorf("expected operation context, got %v", err.Context["operation"])
		}
		if !errors.Is(err, cause) {
			t.Error("expected StoreError to wrap cause")
		}
		if StoreError("noop", nil) != nil {
			t.Error("expected nil for nil cause")
		}
	})

	t.Run("CommitStepError", func(t *testing.T) {
		err := CommitStepError("insert-rows", 7, errors.New("constraint failed"))

		if err.Code != CodeCommitStepFailed {
			t.Errorf("expected commit step code, got %s", err.Code)
		}
		if err.Context["step"] != "insert-rows" {
			t.Errorf("expected step context, got %v", err.Context["step"])
		}
		if !err.IsRetryable() {
			t.Error("expected commit step failure to be retryable")
		}
		if !strings.Contains(err.Error(), "7 staged records kept") {
			t.Errorf("expected staged count in message, got %q", err.Error())
		}
	})

	t.Run("ReviewError", func(t *testing.T) {
		err := ReviewError(CodeInvalidTransition, "rec-1", "verified", "potential")

		if err.Category != CategoryReview {
			t.Errorf("expected review category, got %s", err.Category)
		}
		if err.GetExitCode() != 3 {
			t.Errorf("expected exit code 3, got %d", err.GetExitCode())
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		New(CategoryFile, CodeFileNotFound, "error 1"),
		New(CategoryFile, CodeFilePermission, "error 2"),
		New(CategoryParse, CodeInvalidFormat, "error 3"),
		New(CategoryValidation, CodeInvalidAmount, "error 4"),
		New(CategoryStorage, CodeStoreFailure, "error 5"),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 5 {
		t.Errorf("expected total 5, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryFile] != 2 {
		t.Errorf("expected 2 file errors, got %d", summary.ByCategory[CategoryFile])
	}
	if !summary.HasCode(CodeStoreFailure) {
		t.Error("expected store failure code")
	}
	if summary.HasCategory(CategoryReview) {
		t.Error("expected not to have review category")
	}
	if summary.GetExitCode() != 6 {
		t.Errorf("expected highest exit code 6, got %d", summary.GetExitCode())
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary(nil)

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
}

func TestAsReconcilerError(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if extracted, ok := AsReconcilerError(reconcilerErr); !ok || extracted != reconcilerErr {
		t.Error("expected AsReconcilerError to extract ReconcilerError")
	}
	if _, ok := AsReconcilerError(genericErr); ok {
		t.Error("expected AsReconcilerError to return false for generic error")
	}
	if _, ok := AsReconcilerError(nil); ok {
		t.Error("expected AsReconcilerError to return false for nil")
	}
	if !HasCode(reconcilerErr, CodeFileNotFound) {
		t.Error("expected HasCode to match")
	}
	if HasCode(genericErr, CodeFileNotFound) {
		t.Error("expected HasCode to reject generic error")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if WrapIfNeeded(reconcilerErr, CategoryParse, CodeInvalidFormat, "wrapped") != reconcilerErr {
		t.Error("expected WrapIfNeeded to return original ReconcilerError")
	}

	wrapped := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if wrapped.Cause != genericErr {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}

	if WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryReview, 3},
		{CategoryConfiguration, 4},
		{CategoryReconciliation, 5},
		{CategoryInternal, 5},
		{CategoryStorage, 6},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}

func TestParseErrorCollector(t *testing.T) {
	collector := NewParseErrorCollector(2)

	if collector.Describe() != "" {
		t.Errorf("expected empty description, got %q", collector.Describe())
	}

	if !collector.Add(InvalidDateError("s.csv", 3, "Started Date", "yesterday")) {
		t.Error("expected collector to continue after first error")
	}
	if collector.Describe() != "1 row could not be parsed" {
		t.Errorf("unexpected description %q", collector.Describe())
	}
	if collector.Add(InvalidAmountError("s.csv", 4, "Amount", "abc")) {
		t.Error("expected collector to stop at the limit")
	}
	if collector.Count() != 2 {
		t.Errorf("expected 2 errors, got %d", collector.Count())
	}
	if collector.Describe() != "2 rows could not be parsed" {
		t.Errorf("unexpected description %q", collector.Describe())
	}

	summary := collector.GetSummary()
	if !summary.HasCode(CodeInvalidDate) || !summary.HasCode(CodeInvalidAmount) {
		t.Errorf("expected both codes in summary, got %v", summary.ByCode)
	}
}

func TestEnhancedParseErrorLocation(t *testing.T) {
	err := InvalidEnumError("/tmp/statement.csv", 9, "State", "LOST", []string{"COMPLETED", "PENDING"})

	msg := err.Error()
	if !strings.Contains(msg, "statement.csv:9") {
		t.Errorf("expected location in message, got %q", msg)
	}
	detail := err.GetDetailedError()
	if !strings.Contains(detail, "COMPLETED, PENDING") {
		t.Errorf("expected allowed values in detail, got %q", detail)
	}
}

func TestFormatParseErrorsForUser(t *testing.T) {
	rowErr := func(line int) *EnhancedParseError {
		return InvalidAmountError("statement.csv", line, "Amount", "abc").WithLineContent("CARD_PAYMENT,abc")
	}

	tests := []struct {
		name    string
		errs    []*EnhancedParseError
		want    []string
		notWant []string
	}{
		{"none", nil, []string{"No parse errors"}, nil},
		{"single", []*EnhancedParseError{rowErr(2)}, []string{"→ Line: 2", "→ Content: CARD_PAYMENT,abc"}, []string{"Found"}},
		{"capped", []*EnhancedParseError{rowErr(2), rowErr(3), rowErr(4), rowErr(5)}, []string{"Found 4 parse errors:", "→ Line: 4", "... and 1 more"}, []string{"→ Line: 5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatParseErrorsForUser(tt.errs)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("expected %q in:\n%s", want, out)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(out, notWant) {
					t.Errorf("did not expect %q in:\n%s", notWant, out)
				}
			}
		})
	}
}

func TestDescribeRowErrors(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "1 row could not be parsed"},
		{4, "4 rows could not be parsed"},
	}
	for _, tt := range tests {
		if got := DescribeRowErrors(tt.n); got != tt.want {
			t.Errorf("DescribeRowErrors(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestMissingColumns(t *testing.T) {
	missing := MissingColumns(
		[]string{"Type", "Amount", "State"},
		[]string{" type ", "STATE", "Balance"},
	)
	if len(missing) != 1 || missing[0] != "Amount" {
		t.Errorf("expected [Amount], got %v", missing)
	}
}
