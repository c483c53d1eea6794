package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/guidesync/pkg/config"
	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/presenter"
)

const defaultDebounce = 500 * time.Millisecond

var watchCmd = withTracing(&cobra.Command{
	Use:   "watch [root]",
	Short: "Re-sync whenever the local guideline documents change",
	Long: `Run a sync, then watch the guideline source directory and run it again
after every change. The source must be a local directory. Bursts of changes
are coalesced into one sync.`,
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
		sourceDir, err := localSource(cfg.Source)
		if err != nil {
			return err
		}
		delay, _ := cmd.Flags().GetDuration("debounce")

		opts := syncOptionsFromFlags(cmd)
		opts.Commit = false
		tty := interactive()
		confirm := &terminalConfirmer{presenter: presenter.Default(), interactive: tty, yes: cfg.Yes}
		chooser, err := languageChooser(opts.Languages, presenter.Default(), tty)
		if err != nil {
			return err
		}

		resync := func(ctx context.Context) {
			if _, err := runSync(ctx, cfg, root, opts, confirm, chooser); err != nil {
				presenter.Error(err, "Sync failed")
			}
		}

		resync(ctx)
		presenter.Info(fmt.Sprintf("Watching %s for changes... Press Ctrl+C to stop", sourceDir))
		return watchSource(ctx, sourceDir, delay, resync)
	},
})

func init() {
	addDetectFlags(watchCmd)
	addFetchFlags(watchCmd)
	addOutputFlags(watchCmd)
	watchCmd.Flags().Duration("debounce", defaultDebounce, "Quiet period after a change before syncing")
}

// localSource returns the directory behind a local source, rejecting URLs.
func localSource(source string) (string, error) {
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		if u.Scheme != "file" {
			return "", errors.Errorf("watch needs a local guideline source, got %s", source)
		}
		source = u.Path
	}
	dir, err := filepath.Abs(source)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", source)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", errors.Wrapf(err, "guideline source %s", dir)
	}
	if !info.IsDir() {
		return "", errors.Errorf("guideline source %s is not a directory", dir)
	}
	return dir, nil
}

// watchSource calls onChange once per burst of changes under dir until ctx
// is cancelled.
func watchSource(ctx context.Context, dir string, delay time.Duration, onChange func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	if err := addRecursive(ctx, watcher, dir); err != nil {
		return err
	}

	events := make(chan fsnotify.Event)
	go func() {
		defer close(events)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if strings.HasPrefix(filepath.Base(event.Name), ".") {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := addRecursive(ctx, watcher, event.Name); err != nil {
							logger.G(ctx).WithError(err).Warn("failed to watch new directory")
						}
					}
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.G(ctx).WithError(err).Error("error watching guideline source")
			case <-ctx.Done():
				return
			}
		}
	}()

	for range debounce(ctx, events, delay) {
		logger.G(ctx).Debug("guideline source changed")
		onChange(ctx)
	}
	return nil
}

// debounce emits once after input has been quiet for delay. The output
// closes when input closes or ctx is done.
func debounce(ctx context.Context, input <-chan fsnotify.Event, delay time.Duration) <-chan struct{} {
	output := make(chan struct{})
	go func() {
		defer close(output)
		timer := time.NewTimer(delay)
		timer.Stop()
		for {
			select {
			case event, ok := <-input:
				if !ok {
					return
				}
				logger.G(ctx).WithField("file", event.Name).WithField("operation", event.Op.String()).Debug("file change detected")
				timer.Reset(delay)
			case <-timer.C:
				select {
				case output <- struct{}{}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
	return output
}

func addRecursive(ctx context.Context, watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		logger.G(ctx).WithField("directory", path).Debug("adding directory to watcher")
		return watcher.Add(path)
	})
}
