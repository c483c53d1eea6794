package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/guidesync/pkg/config"
	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/presenter"
)

// exitError carries a process exit code out of a command without printing
// anything further.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

var rootCmd = &cobra.Command{
	Use:   "guidesync",
	Short: "Keep per-project coding guideline files in sync",
	Long: `guidesync detects the projects under a directory, fetches the base and
per-language coding guidelines that apply to each one, and writes them as a
single AGENTS.md with CLAUDE.md linked to it. The Project-Specific Guidelines
section of an existing file is preserved across syncs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			viper.SetConfigFile(path)
		}
		if err := config.Init(); err != nil {
			return err
		}
		if err := bindFlags(cmd); err != nil {
			return err
		}

		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			return errors.Wrap(err, "invalid log level")
		}
		logger.SetLogFormat(viper.GetString("log_format"))

		shutdown, err := initTracing(cmd.Context())
		if err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to initialize tracing")
			return nil
		}
		shutdownTracing = shutdown
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./guidesync.yaml or $HOME/.guidesync/guidesync.yaml)")
	flags.String("source", "", "URL or directory holding the guideline documents")
	flags.String("profile", "", "Named configuration profile to apply")
	flags.String("log-level", "", "Log level (panic, fatal, error, warn, info, debug, trace)")
	flags.String("log-format", "", "Log format (fmt, json)")
	flags.BoolP("yes", "y", false, "Approve every confirmation without prompting")

	rootCmd.AddCommand(withTracing(syncCmd))
	rootCmd.AddCommand(withTracing(detectCmd))
	rootCmd.AddCommand(withTracing(planCmd))
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if shutdownTracing != nil {
		if serr := shutdownTracing(context.Background()); serr != nil {
			logger.G(ctx).WithError(serr).Debug("failed to flush traces")
		}
	}
	if err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		presenter.Error(err, "")
		os.Exit(1)
	}
}
