package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/guidesync/pkg/config"
	"github.com/jingkaihe/guidesync/pkg/detector"
	"github.com/jingkaihe/guidesync/pkg/presenter"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

var detectCmd = &cobra.Command{
	Use:   "detect [root]",
	Short: "List the projects and languages found under root",
	Long: `Run project detection only. Each project is listed with its languages,
maturity and the marker files that identified it, followed by the
directories whose language could not be determined.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := rootArg(args)
		if err != nil {
			return err
		}

		// detection does not need a guideline source
		cfg, err := config.LoadUnvalidated(viper.GetViper())
		if err != nil {
			return err
		}
		d, err := newDetector(cfg)
		if err != nil {
			return err
		}

		detection, err := d.Detect(cmd.Context(), root)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeDetectionJSON(cmd.OutOrStdout(), detection)
		}
		printDetection(detection)
		return nil
	},
}

func init() {
	addDetectFlags(detectCmd)
	detectCmd.Flags().Bool("json", false, "Print the detection as JSON")
}

type detectionJSON struct {
	Root         string                    `json:"root"`
	Projects     []guide.ProjectDescriptor `json:"projects"`
	Undetermined []string                  `json:"undetermined"`
}

func writeDetectionJSON(w io.Writer, d detector.Detection) error {
	out := detectionJSON{
		Root:         d.Root,
		Projects:     d.Projects,
		Undetermined: d.Undetermined,
	}
	if out.Projects == nil {
		out.Projects = []guide.ProjectDescriptor{}
	}
	if out.Undetermined == nil {
		out.Undetermined = []string{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(out), "failed to encode detection")
}

func printDetection(d detector.Detection) {
	presenter.Section(fmt.Sprintf("Projects under %s", d.Root))
	if len(d.Projects) == 0 {
		presenter.Info("No projects found.")
	}
	for _, p := range d.Projects {
		presenter.Info(fmt.Sprintf("  %s [%s, %s] markers: %v",
			relPath(d.Root, p.Path), guide.JoinLanguages(p.Languages), p.Maturity, p.Markers))
	}
	if len(d.Undetermined) > 0 {
		presenter.Info("")
		presenter.Warning("Language undetermined (choose with --language):")
		for _, dir := range d.Undetermined {
			presenter.Info("  " + relPath(d.Root, dir))
		}
	}
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
