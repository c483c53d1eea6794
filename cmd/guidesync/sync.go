package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/guidesync/pkg/config"
	"github.com/jingkaihe/guidesync/pkg/gitutil"
	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/pipeline"
	"github.com/jingkaihe/guidesync/pkg/presenter"
	"github.com/jingkaihe/guidesync/pkg/report"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
	"github.com/jingkaihe/guidesync/pkg/writer"
)

var syncCmd = &cobra.Command{
	Use:   "sync [root]",
	Short: "Fetch, merge and write the coding guidelines of every project under root",
	Long: `Detect the projects under root (default: the current directory), fetch the
base guidelines plus the guidelines of each project's languages, and write
the merged AGENTS.md into every project with CLAUDE.md linked to it.

Replacing an existing file asks for confirmation. Without a terminal every
confirmation is declined unless --yes is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		root, err := rootArg(args)
		if err != nil {
			return err
		}

		opts := syncOptionsFromFlags(cmd)
		tty := interactive()
		confirm := &terminalConfirmer{presenter: presenter.Default(), interactive: tty, yes: cfg.Yes}
		chooser, err := languageChooser(opts.Languages, presenter.Default(), tty)
		if err != nil {
			return err
		}

		result, err := runSync(ctx, cfg, root, opts, confirm, chooser)
		if err != nil {
			return err
		}
		if err := result.Err(); err != nil {
			logger.G(ctx).WithError(err).Debug("sync finished with failures")
			return exitError{code: 1}
		}
		return nil
	},
}

func init() {
	addDetectFlags(syncCmd)
	addFetchFlags(syncCmd)
	addOutputFlags(syncCmd)
}

func syncOptionsFromFlags(cmd *cobra.Command) syncOptions {
	var opts syncOptions
	if languages, err := cmd.Flags().GetStringSlice("language"); err == nil {
		opts.Languages = languages
	}
	if discard, err := cmd.Flags().GetBool("discard-custom"); err == nil {
		opts.DiscardCustom = discard
	}
	if commit, err := cmd.Flags().GetBool("commit"); err == nil {
		opts.Commit = commit
	}
	return opts
}

func rootArg(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", root)
	}
	return abs, nil
}

// runSync performs one sync, prints the session summary and commits when
// asked to.
func runSync(ctx context.Context, cfg config.Config, root string, opts syncOptions, confirm writer.Confirmer, chooser pipeline.LanguageChooser) (guide.RunResult, error) {
	p, err := newPipeline(cfg, opts, confirm, chooser)
	if err != nil {
		return guide.RunResult{}, err
	}

	result, err := p.Run(ctx, root)
	if err != nil {
		return result, err
	}
	presenter.Info(report.Summarize(result))

	if opts.Commit {
		commitResult(ctx, result, confirm)
	}
	return result, nil
}

func commitResult(ctx context.Context, result guide.RunResult, confirm writer.Confirmer) {
	files := result.WrittenFiles()
	if len(files) == 0 {
		presenter.Info("Nothing to commit.")
		return
	}

	top, err := gitutil.TopLevel(ctx, result.Root)
	if err != nil {
		presenter.Warning(fmt.Sprintf("%s is not inside a git repository, skipping commit", result.Root))
		return
	}

	ok, err := confirm.Confirm(ctx, writer.ConfirmRequest{
		Action:  writer.ActionCommit,
		Path:    top,
		Message: fmt.Sprintf("Commit %d file(s) with message %q?", len(files), gitutil.DefaultMessage),
	})
	if err != nil || !ok {
		presenter.Info("Commit skipped.")
		return
	}

	committed, err := gitutil.Commit(ctx, top, gitutil.RelativePaths(top, files), gitutil.DefaultMessage)
	switch {
	case err != nil:
		presenter.Error(err, "Failed to commit guidelines")
	case committed:
		presenter.Success(fmt.Sprintf("Committed %d file(s)", len(files)))
	default:
		presenter.Info("Nothing to commit.")
	}
}
