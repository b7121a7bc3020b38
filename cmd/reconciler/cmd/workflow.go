package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"statement-reconciliation-service/cmd/reconciler/config"
	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/reconciler"
	"statement-reconciliation-service/internal/reporter"
	"statement-reconciliation-service/internal/store"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// app is everything a workflow command needs for one owner
type app struct {
	v        *viper.Viper
	store    *store.SQLiteStore
	session  *reconciler.Session
	reporter *reporter.SafeReportGenerator
	logger   logger.Logger
}

func openApp(v *viper.Viper) (*app, error) {
	owner, err := config.Owner(v)
	if err != nil {
		return nil, err
	}
	dbPath, err := config.DatabasePath(v)
	if err != nil {
		return nil, err
	}
	reconcilerConfig, err := config.CreateReconcilerConfig(v)
	if err != nil {
		return nil, err
	}
	reportConfig, err := config.CreateReportConfig(v)
	if err != nil {
		return nil, err
	}

	log := logger.GetGlobalLogger().WithComponent("cli")
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenStore(dbPath)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeStoreFailure, "failed to open database "+dbPath)
	}

	svc, err := reconciler.NewService(st, reconcilerConfig)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{
		v:        v,
		store:    st,
		session:  svc.Session(owner),
		reporter: generator,
		logger:   log.WithField("owner", owner),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// render writes result to --output, or to the command's stdout
func (a *app) render(cmd *cobra.Command, result interface{}) error {
	path := a.v.GetString(config.KeyOutput)
	if path == "" {
		return a.reporter.Generate(result, cmd.OutOrStdout())
	}

	output, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer output.Close()

	if err := a.reporter.Generate(result, output); err != nil {
		return err
	}
	a.logger.WithField("file", path).Debug("Report written")
	return nil
}

// withApp opens the app around fn
func withApp(v *viper.Viper, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(v)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func newImportCommand(v *viper.Viper) *cobra.Command {
	var newSession bool

	importCmd := &cobra.Command{
		Use:   "import <statement.csv>",
		Short: "Import a bank statement into the staging area",
		Long: `Import parses a bank statement export, drops rows already staged or
already in the ledger, scores the rest against the ledger and stages them
for review.

Examples:
  reconciler --owner me import statement.csv
  reconciler --owner me import statement.csv --new-session
  reconciler --owner me --format json import statement.csv`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFileExists(args[0], "statement file")
		},
		RunE: withApp(v, func(cmd *cobra.Command, a *app, args []string) error {
			result, err := a.session.ImportStatement(cmd.Context(), args[0], reconciler.ImportOptions{NewSession: newSession})
			if err != nil {
				return err
			}
			return a.render(cmd, result)
		}),
	}

	importCmd.Flags().BoolVar(&newSession, "new-session", false, "clear the staging area before importing")
	return importCmd
}

func newStagedCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "staged",
		Short: "List the staged records awaiting review",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, args []string) error {
			records, err := a.session.GetStagedRecords(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, records)
		}),
	}
}

func newReviewCommand(v *viper.Viper) *cobra.Command {
	var note string

	reviewCmd := &cobra.Command{
		Use:   "review <record-id> <status>",
		Short: "Record a review decision for a staged record",
		Long: fmt.Sprintf(`Review moves a staged record to a new status.

Valid statuses: %s

Marking a matched record verified attaches a note naming the ledger entry.

Examples:
  reconciler --owner me review 3f2a... verified
  reconciler --owner me review 3f2a... reviewed --note "card refund"`, statusList()),
		Args: cobra.ExactArgs(2),
		RunE: withApp(v, func(cmd *cobra.Command, a *app, args []string) error {
			status, err := models.ParseMatchStatus(strings.ToLower(args[1]))
			if err != nil {
				return errors.ValidationError(errors.CodeInvalidData, "status", args[1], err).
					WithSuggestion("use one of: " + statusList())
			}
			rec, err := a.session.UpdateRecordStatus(cmd.Context(), args[0], status, note)
			if err != nil {
				return err
			}
			return a.render(cmd, rec)
		}),
	}

	reviewCmd.Flags().StringVar(&note, "note", "", "verification note to attach")
	return reviewCmd
}

func newRescoreCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rescore",
		Short: "Score staged records again against the current ledger",
		Long: `Rescore matches every staged record again. Records with a review
decision keep their status.`,
		Args: cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, args []string) error {
			result, err := a.session.RescoreStaged(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, result)
		}),
	}
}

func newPreviewCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Show what a commit would change",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, args []string) error {
			preview, err := a.session.PreviewCommit(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, preview)
		}),
	}
}

func newCommitCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Replace the ledger with the staged batch",
		Long: `Commit deletes the owner's ledger and inserts every staged record in a
single transaction. Categories of matched ledger entries are carried over.
If the transaction fails the ledger and the staging area are left as they were.`,
		Args: cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, args []string) error {
			summary, err := a.session.CommitImport(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, summary)
		}),
	}
}

func newClearCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the staging area",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.session.ClearStaging(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Staging cleared.")
			return nil
		}),
	}
}

func newLedgerCommand(v *viper.Viper) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage the ledger",
	}

	ledgerCmd.AddCommand(&cobra.Command{
		Use:   "load <ledger.csv>",
		Short: "Append ledger entries from a CSV file",
		Long: `Load reads Date, Description, Amount, Direction and Category columns
and appends every valid row to the owner's ledger. Unknown categories are
created.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFileExists(args[0], "ledger file")
		},
		RunE: withApp(v, func(cmd *cobra.Command, a *app, args []string) error {
			result, err := a.session.LoadLedger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd, result)
		}),
	})
	return ledgerCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reconciler %s\n", getVersionString())
		},
	}
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, filePath, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeInvalidExtension, filePath, fmt.Errorf("%s is a directory, expected a file", description))
	}

	return nil
}

func statusList() string {
	names := make([]string, len(models.AllStatuses))
	for i, s := range models.AllStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
