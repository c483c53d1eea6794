// Package gitutil stages and commits the files a sync wrote.
package gitutil

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/osutil"
)

// DefaultMessage is the commit message used for synced guidelines.
const DefaultMessage = "Sync coding guidelines"

// ErrNotRepository marks a directory outside any git work tree.
var ErrNotRepository = errors.New("not a git repository")

// IsRepository reports whether dir is inside a git work tree.
func IsRepository(ctx context.Context, dir string) bool {
	out, err := git(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// TopLevel returns the root of the work tree containing dir.
func TopLevel(ctx context.Context, dir string) (string, error) {
	out, err := git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", errors.Wrapf(ErrNotRepository, "%s: %v", dir, err)
	}
	return strings.TrimSpace(out), nil
}

// Commit stages paths and records them in a single commit. Paths are
// staged as given, so symbolic links are committed as links. It returns
// false when nothing changed and no commit was made.
func Commit(ctx context.Context, dir string, paths []string, message string) (bool, error) {
	if len(paths) == 0 {
		return false, nil
	}
	if !IsRepository(ctx, dir) {
		return false, errors.Wrapf(ErrNotRepository, "%s", dir)
	}
	if message == "" {
		message = DefaultMessage
	}

	args := append([]string{"add", "--"}, paths...)
	if _, err := git(ctx, dir, args...); err != nil {
		return false, errors.Wrap(err, "failed to stage files")
	}

	// diff --quiet exits 1 when the staged paths differ from HEAD
	diffArgs := append([]string{"diff", "--cached", "--quiet", "--"}, paths...)
	if _, err := git(ctx, dir, diffArgs...); err == nil {
		logger.G(ctx).Info("no guideline changes to commit")
		return false, nil
	}

	msgFile, err := os.CreateTemp("", "guidesync-commit-*.txt")
	if err != nil {
		return false, errors.Wrap(err, "error creating temporary file")
	}
	defer os.Remove(msgFile.Name())
	if _, err := msgFile.WriteString(message); err != nil {
		msgFile.Close()
		return false, errors.Wrap(err, "error writing to temporary file")
	}
	msgFile.Close()

	commitArgs := append([]string{"commit", "-F", msgFile.Name(), "--"}, paths...)
	if _, err := git(ctx, dir, commitArgs...); err != nil {
		return false, errors.Wrap(err, "failed to commit")
	}
	logger.G(ctx).WithField("files", len(paths)).Info("committed guideline changes")
	return true, nil
}

// RelativePaths rewrites paths relative to dir, leaving ones outside it
// untouched.
func RelativePaths(dir string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			out = append(out, p)
			continue
		}
		out = append(out, rel)
	}
	return out
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	osutil.Isolate(cmd)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.String(), errors.Wrapf(err, "git %s: %s", args[0], msg)
		}
		return stdout.String(), errors.Wrapf(err, "git %s", args[0])
	}
	return stdout.String(), nil
}
