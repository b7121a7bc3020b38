// Package config builds component configurations from viper settings.
//
// Settings come from, in order of precedence: command-line flags, RECONCILER_*
// environment variables, an optional config file and the defaults below.
// Nested keys map to environment variables by replacing dots and dashes with
// underscores, so matching.min_score is read from RECONCILER_MATCHING_MIN_SCORE.
package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"statement-reconciliation-service/internal/reconciler"
	"statement-reconciliation-service/internal/reporter"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// Setting keys
const (
	KeyDatabasePath = "database.path"
	KeyOwner        = "owner"
	KeyFormat       = "format"
	KeyOutput       = "output"
	KeyVerbose      = "verbose"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
	KeyLogFile   = "log.file"

	KeyParserDelimiter    = "parser.delimiter"
	KeyParserMaxFileSize  = "parser.max_file_size"
	KeyParserMaxRowErrors = "parser.max_row_errors"

	KeyMatchingWorkers         = "matching.workers"
	KeyMatchingMinScore        = "matching.min_score"
	KeyMatchingDateCloseDays   = "matching.date_close_days"
	KeyMatchingAmountTolerance = "matching.amount_close_tolerance"

	KeyDedupDateWindowDays = "dedup.date_window_days"

	KeySuggestEnabled       = "suggest.enabled"
	KeySuggestMinSimilarity = "suggest.min_similarity"

	KeyReportColors      = "report.colors"
	KeyReportShowReasons = "report.show_reasons"
	KeyReportMaxRows     = "report.max_rows"
)

// SetDefaults registers the default value of every setting on v
func SetDefaults(v *viper.Viper) {
	rc := reconciler.DefaultConfig()
	lc := logger.DefaultConfig()
	rp := reporter.DefaultReportConfig()

	v.SetDefault(KeyDatabasePath, "reconciler.db")
	v.SetDefault(KeyOwner, "")
	v.SetDefault(KeyFormat, string(rp.Format))
	v.SetDefault(KeyOutput, "")
	v.SetDefault(KeyVerbose, false)

	v.SetDefault(KeyLogLevel, string(lc.Level))
	v.SetDefault(KeyLogFormat, string(lc.Format))
	v.SetDefault(KeyLogFile, "")

	v.SetDefault(KeyParserDelimiter, string(rc.Parser.Delimiter))
	v.SetDefault(KeyParserMaxFileSize, rc.Parser.MaxFileSize)
	v.SetDefault(KeyParserMaxRowErrors, rc.Parser.MaxRowErrors)

	v.SetDefault(KeyMatchingWorkers, rc.Matching.Workers)
	v.SetDefault(KeyMatchingMinScore, rc.Matching.MinScore)
	v.SetDefault(KeyMatchingDateCloseDays, rc.Matching.DateCloseDays)
	v.SetDefault(KeyMatchingAmountTolerance, rc.Matching.AmountCloseTolerance.String())

	v.SetDefault(KeyDedupDateWindowDays, rc.Dedup.DateWindowDays)

	v.SetDefault(KeySuggestEnabled, rc.Suggest.Enabled)
	v.SetDefault(KeySuggestMinSimilarity, rc.Suggest.MinSimilarity)

	v.SetDefault(KeyReportColors, rp.UseColors)
	v.SetDefault(KeyReportShowReasons, rp.ShowReasons)
	v.SetDefault(KeyReportMaxRows, rp.MaxRows)
}

// BindEnv makes every setting readable from RECONCILER_* variables
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// CreateReconcilerConfig builds the workflow configuration
func CreateReconcilerConfig(v *viper.Viper) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()

	delimiter, err := parseDelimiter(v.GetString(KeyParserDelimiter))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyParserDelimiter, v.GetString(KeyParserDelimiter), err)
	}
	config.Parser.Delimiter = delimiter
	config.Parser.MaxFileSize = v.GetInt64(KeyParserMaxFileSize)
	config.Parser.MaxRowErrors = v.GetInt(KeyParserMaxRowErrors)

	tolerance, err := decimal.NewFromString(v.GetString(KeyMatchingAmountTolerance))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyMatchingAmountTolerance, v.GetString(KeyMatchingAmountTolerance), err).
			WithSuggestion("use a decimal amount such as 1.00")
	}
	config.Matching.AmountCloseTolerance = tolerance
	config.Matching.Workers = v.GetInt(KeyMatchingWorkers)
	config.Matching.MinScore = v.GetFloat64(KeyMatchingMinScore)
	config.Matching.DateCloseDays = v.GetInt(KeyMatchingDateCloseDays)

	config.Dedup.DateWindowDays = v.GetInt(KeyDedupDateWindowDays)

	config.Suggest.Enabled = v.GetBool(KeySuggestEnabled)
	config.Suggest.MinSimilarity = v.GetFloat64(KeySuggestMinSimilarity)

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err)
	}
	return config, nil
}

// CreateReportConfig builds the report configuration for the selected format
func CreateReportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(v.GetString(KeyFormat)))
	config.UseColors = v.GetBool(KeyReportColors) && config.Format == reporter.FormatConsole
	config.ShowReasons = v.GetBool(KeyReportShowReasons)
	config.MaxRows = v.GetInt(KeyReportMaxRows)

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyFormat, v.GetString(KeyFormat), err).
			WithSuggestion("use --format console, json or csv")
	}
	return config, nil
}

// CreateLoggerConfig builds the logger configuration. Verbose output forces
// debug level.
func CreateLoggerConfig(v *viper.Viper) (*logger.Config, error) {
	config := logger.DefaultConfig()
	config.Level = logger.Level(strings.ToLower(v.GetString(KeyLogLevel)))
	config.Format = logger.Format(strings.ToLower(v.GetString(KeyLogFormat)))
	if file := v.GetString(KeyLogFile); file != "" {
		config.Output = logger.FileOutput
		config.File = file
	}
	if v.GetBool(KeyVerbose) {
		config.Level = logger.DebugLevel
		config.CallerInfo = true
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", nil, err).
			WithSuggestion("use log levels debug, info, warn or error and formats text or json")
	}
	return config, nil
}

// DatabasePath returns the SQLite file the commands operate on
func DatabasePath(v *viper.Viper) (string, error) {
	path := strings.TrimSpace(v.GetString(KeyDatabasePath))
	if path == "" {
		return "", errors.ConfigurationError(errors.CodeMissingConfig, KeyDatabasePath, path, nil).
			WithSuggestion("set --db or RECONCILER_DATABASE_PATH")
	}
	return path, nil
}

// Owner returns the ledger owner the commands act for
func Owner(v *viper.Viper) (string, error) {
	owner := strings.TrimSpace(v.GetString(KeyOwner))
	if owner == "" {
		return "", errors.ConfigurationError(errors.CodeMissingConfig, KeyOwner, owner, nil).
			WithSuggestion("set --owner or RECONCILER_OWNER")
	}
	return owner, nil
}

// ValidateConfig checks every setting without building components
func ValidateConfig(v *viper.Viper) error {
	if _, err := CreateReconcilerConfig(v); err != nil {
		return err
	}
	if _, err := CreateReportConfig(v); err != nil {
		return err
	}
	if _, err := CreateLoggerConfig(v); err != nil {
		return err
	}
	_, err := DatabasePath(v)
	return err
}

// parseDelimiter accepts a single character or the words "tab" and "semicolon"
func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', nil
	case "semicolon":
		return ';', nil
	case "comma":
		return ',', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
