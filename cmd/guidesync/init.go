package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/guidesync/pkg/config"
	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/presenter"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default guidesync configuration file",
	Long: `Write guidesync.yaml with the built-in defaults. An existing file is kept
unless --override is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("path")
		override, _ := cmd.Flags().GetBool("override")
		source, _ := cmd.Flags().GetString("source")

		written, err := writeDefaultConfig(path, source, override)
		if err != nil {
			return err
		}
		if !written {
			presenter.Warning(fmt.Sprintf("Configuration file already exists at %s", path))
			presenter.Info("To overwrite, use the --override flag or remove the file and run 'guidesync init' again")
			return nil
		}

		logger.G(ctx).WithField("path", path).Debug("configuration written")
		presenter.Success(fmt.Sprintf("Configuration written to %s", path))
		if source == "" {
			presenter.Info("Set 'source' to the URL or directory holding your guideline documents before running 'guidesync sync'")
		}
		return nil
	},
}

func init() {
	initCmd.Flags().String("path", config.FileName+"."+config.FileType, "Where to write the configuration file")
	initCmd.Flags().Bool("override", false, "Overwrite an existing configuration file")
}

// writeDefaultConfig writes the default configuration to path. It returns
// false without writing when the file exists and override is not set.
func writeDefaultConfig(path, source string, override bool) (bool, error) {
	if !override {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	cfg := config.Default()
	cfg.Source = source

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return false, errors.Wrap(err, "failed to encode configuration")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, errors.Wrapf(err, "failed to write %s", path)
	}
	return true, nil
}
