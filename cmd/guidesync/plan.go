package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/guidesync/pkg/config"
	"github.com/jingkaihe/guidesync/pkg/presenter"
	"github.com/jingkaihe/guidesync/pkg/selector"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
	"github.com/jingkaihe/guidesync/pkg/writer"
)

var planCmd = &cobra.Command{
	Use:   "plan [root]",
	Short: "Show which guideline documents each project would receive",
	Long: `Run detection and document selection without fetching or writing
anything. Documents are listed in the order they would be merged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		root, err := rootArg(args)
		if err != nil {
			return err
		}

		opts := syncOptionsFromFlags(cmd)
		chooser, err := languageChooser(opts.Languages, presenter.Default(), false)
		if err != nil {
			return err
		}
		p, err := newPipeline(cfg, opts, writer.NeverConfirm, chooser)
		if err != nil {
			return err
		}

		projects, undetermined, err := p.Plan(cmd.Context(), root)
		if err != nil {
			return err
		}

		presenter.Section(fmt.Sprintf("Guideline plan for %s", root))
		if len(projects) == 0 {
			presenter.Info("No projects found.")
		}
		for _, d := range projects {
			presenter.Info(fmt.Sprintf("%s [%s, %s]", relPath(root, d.Path), guide.JoinLanguages(d.Languages), d.Maturity))
			for i, ref := range selector.Select(d, p.Catalog()) {
				presenter.Info(fmt.Sprintf("  %d. %s: %s", i+1, ref.Label(), ref.Location))
			}
			for _, tag := range selector.Unsupported(d, p.Catalog()) {
				presenter.Warning(fmt.Sprintf("  no guideline configured for %s", tag.DisplayName()))
			}
		}
		for _, dir := range undetermined {
			presenter.Warning(fmt.Sprintf("%s: language undetermined (choose with --language)", relPath(root, dir)))
		}
		return nil
	},
}

func init() {
	addDetectFlags(planCmd)
}
