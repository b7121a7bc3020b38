package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/reconciler"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with enhanced error handling
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("use --format console, json or csv")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// Generate renders any workflow result with fallbacks. A failing JSON or
// CSV render is retried as console output; a failing file write is
// retried against a backup file next to it.
func (srg *SafeReportGenerator) Generate(result interface{}, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	render, err := srg.renderer(result)
	if err != nil {
		srg.logger.WithError(err).Error("Invalid result type for report generation")
		return err
	}

	if err := srg.generateWithFallback(render, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}

	srg.logger.Debug("Report generation completed successfully")
	return nil
}

type renderFunc func(rg *ReportGenerator, w io.Writer) error

// renderer picks the Write method for the result type
func (srg *SafeReportGenerator) renderer(result interface{}) (renderFunc, error) {
	switch v := result.(type) {
	case *reconciler.ImportResult:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.WriteImport(v, w) }, nil
	case []*models.StagedImportRecord:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.WriteStaged(v, w) }, nil
	case *models.StagedImportRecord:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.WriteRecord(v, w) }, nil
	case *reconciler.RescoreResult:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.WriteRescore(v, w) }, nil
	case *reconciler.CommitPreview:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.WritePreview(v, w) }, nil
	case *reconciler.CommitSummary:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.WriteCommit(v, w) }, nil
	case *reconciler.LoadLedgerResult:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.WriteLedgerLoad(v, w) }, nil
	default:
		return nil, errors.ValidationError(
			errors.CodeInvalidData,
			"result_type",
			fmt.Sprintf("%T", result),
			nil,
		).WithSuggestion("provide a workflow result from the reconciler")
	}
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(result interface{}, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"result",
			nil,
			nil,
		).WithSuggestion("provide a workflow result to render")
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("provide a valid output writer")
	}

	return nil
}

// generateWithFallback attempts to generate the report with fallback strategies
func (srg *SafeReportGenerator) generateWithFallback(render renderFunc, writer io.Writer) error {
	err := render(srg.ReportGenerator, writer)
	if err == nil {
		return nil
	}

	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	if srg.shouldAttemptOutputFallback(err, writer) {
		return srg.generateWithOutputFallback(render, writer, err)
	}

	if srg.config.Format != FormatConsole {
		return srg.generateWithFormatFallback(render, writer, err)
	}

	return srg.wrapGenerationError(err)
}

// generateWithFormatFallback attempts to generate with a fallback format
func (srg *SafeReportGenerator) generateWithFormatFallback(render renderFunc, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallbackConfig.UseColors = false

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := render(fallbackGenerator, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	srg.logger.Info("Report generated successfully using format fallback")
	return nil
}

// shouldAttemptOutputFallback determines if an output fallback should be attempted
func (srg *SafeReportGenerator) shouldAttemptOutputFallback(err error, writer io.Writer) bool {
	if file, ok := writer.(*os.File); ok && file.Name() != "" && file != os.Stdout && file != os.Stderr {
		return isFileError(err)
	}
	return false
}

// generateWithOutputFallback attempts to generate with a fallback output
func (srg *SafeReportGenerator) generateWithOutputFallback(render renderFunc, writer io.Writer, originalErr error) error {
	file, ok := writer.(*os.File)
	if !ok {
		return srg.wrapGenerationError(originalErr)
	}

	originalPath := file.Name()
	backupPath := generateBackupPath(originalPath)

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Info("Attempting output fallback")

	backupFile, err := os.Create(backupPath)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}
	defer backupFile.Close()

	if err := render(srg.ReportGenerator, backupFile); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err),
		)
	}

	srg.logger.WithField("backup_file", backupPath).Info("Report generated successfully using output fallback")
	fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", originalPath, backupPath)
	return nil
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeProcessingError,
		"report_generation",
		err,
	).WithSuggestion("check the output destination and report format settings")
}

// isFileError checks if the error is file-related
func isFileError(err error) bool {
	return os.IsPermission(err) ||
		os.IsNotExist(err) ||
		os.IsExist(err) ||
		isSpaceError(err)
}

// generateBackupPath creates a backup file path
func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
