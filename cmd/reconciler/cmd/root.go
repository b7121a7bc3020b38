package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"statement-reconciliation-service/cmd/reconciler/config"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// NewRootCommand builds the command tree over the settings in v
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Bank statement reconciliation tool",
		Long: `Reconciler imports bank statement exports into a staging area, matches
every row against your ledger, lets you review the matches and finally
commits the reviewed batch as your new ledger.

A typical session:
  reconciler --owner me ledger load ledger.csv
  reconciler --owner me import statement.csv
  reconciler --owner me staged
  reconciler --owner me review <record-id> verified --note "checked"
  reconciler --owner me preview
  reconciler --owner me commit`,
		Version:       getVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("db", "reconciler.db", "path to the SQLite database")
	flags.String("owner", "", "ledger owner to act for")
	flags.StringP("format", "f", "console", "output format: console, json, csv")
	flags.StringP("output", "o", "", "output file path (default: stdout)")

	_ = v.BindPFlag(config.KeyVerbose, flags.Lookup("verbose"))
	_ = v.BindPFlag(config.KeyDatabasePath, flags.Lookup("db"))
	_ = v.BindPFlag(config.KeyOwner, flags.Lookup("owner"))
	_ = v.BindPFlag(config.KeyFormat, flags.Lookup("format"))
	_ = v.BindPFlag(config.KeyOutput, flags.Lookup("output"))

	rootCmd.AddCommand(
		newImportCommand(v),
		newStagedCommand(v),
		newReviewCommand(v),
		newRescoreCommand(v),
		newPreviewCommand(v),
		newCommitCommand(v),
		newClearCommand(v),
		newLedgerCommand(v),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	v := viper.New()
	config.SetDefaults(v)
	config.BindEnv(v)

	err := NewRootCommand(v).ExecuteContext(ctx)
	return NewCLIErrorHandler(os.Stderr, v.GetBool(config.KeyVerbose)).HandleError(err)
}

// initConfig reads the optional config file and sets up logging
func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("check the config file path and syntax")
		}
	}

	logConfig, err := config.CreateLoggerConfig(v)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", nil, err)
	}
	logger.SetGlobalLogger(log)

	if cfgFile != "" {
		log.WithField("file", v.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
