package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jingkaihe/guidesync/pkg/config"
)

// flagKeys maps command line flags to their configuration keys. Flags are
// bound only for the command being run, so commands can share flag names.
var flagKeys = map[string]string{
	"source":          "source",
	"profile":         "profile",
	"log-level":       "log_level",
	"log-format":      "log_format",
	"yes":             "yes",
	"max-depth":       "detect.max_depth",
	"exclude":         "detect.exclude",
	"timeout":         "fetch.timeout",
	"retries":         "fetch.retries",
	"allowed-host":    "fetch.allowed_hosts",
	"concurrency":     "concurrency",
	"primary":         "output.primary",
	"secondary":       "output.secondary",
	"tracing-enabled": "tracing.enabled",
	"tracing-sampler": "tracing.sampler",
	"tracing-ratio":   "tracing.ratio",
}

func bindFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := viper.BindPFlag(key, f); err != nil {
			bindErr = errors.Wrapf(err, "failed to bind --%s", f.Name)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	if f := cmd.Flags().Lookup("no-backup"); f != nil && f.Changed {
		viper.Set("output.backup", f.Value.String() != "true")
	}
	return nil
}

func addDetectFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().Int("max-depth", d.Detect.MaxDepth, "Maximum directory depth searched for project markers")
	cmd.Flags().StringSlice("exclude", d.Detect.Exclude, "Directory name or path patterns to skip (doublestar syntax)")
	cmd.Flags().StringSliceP("language", "l", nil, "Languages for directories without project markers (e.g. ts,py)")
}

func addFetchFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().Duration("timeout", d.Fetch.Timeout, "Timeout of each document fetch attempt")
	cmd.Flags().Int("retries", d.Fetch.Retries, "Retries of a transiently failing fetch")
	cmd.Flags().StringSlice("allowed-host", nil, "Host patterns guideline URLs may point at (e.g. *.example.com)")
}

func addOutputFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().String("primary", d.Output.Primary, "Name of the merged guideline file")
	cmd.Flags().String("secondary", d.Output.Secondary, "Name of the file linked to the primary")
	cmd.Flags().Bool("no-backup", false, "Remove a replaced secondary file instead of backing it up")
	cmd.Flags().Bool("discard-custom", false, "Reset the Project-Specific Guidelines section to its hint")
	cmd.Flags().Int("concurrency", d.Concurrency, "Number of projects synced at once")
	cmd.Flags().Bool("commit", false, "Commit the written files to git after confirmation")
}
