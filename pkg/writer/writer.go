// Package writer writes merged guidelines into a project directory and keeps
// the secondary file name linked to the primary one. Every destructive step
// goes through a Confirmer.
package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"

	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

const (
	// DefaultPrimary is the primary output file name
	DefaultPrimary = "AGENTS.md"
	// DefaultSecondary is linked to the primary
	DefaultSecondary = "CLAUDE.md"

	backupTimeLayout = "20060102-150405"
)

// LinkResult describes what happened to the secondary file.
type LinkResult int

const (
	// LinkNone means the secondary file was not touched
	LinkNone LinkResult = iota
	// LinkCreated means a new link to the primary was created
	LinkCreated
	// LinkKept means an existing link to the primary was left alone
	LinkKept
	// LinkRepaired means a dangling link was replaced
	LinkRepaired
	// LinkReplaced means a confirmed replacement of a foreign file or link
	LinkReplaced
	// LinkCopied means links are unsupported and a copy was written instead
	LinkCopied
	// LinkDeclined means the operator kept a foreign secondary file
	LinkDeclined
)

// String returns a short name for the result.
func (r LinkResult) String() string {
	switch r {
	case LinkNone:
		return "none"
	case LinkCreated:
		return "created"
	case LinkKept:
		return "kept"
	case LinkRepaired:
		return "repaired"
	case LinkReplaced:
		return "replaced"
	case LinkCopied:
		return "copied"
	case LinkDeclined:
		return "declined"
	default:
		return fmt.Sprintf("link(%d)", int(r))
	}
}

// WriteOutcome records the effect of one Write.
type WriteOutcome struct {
	Status        guide.Status
	PrimaryPath   string
	SecondaryPath string
	Link          LinkResult
	BackupPath    string
	Detail        string
	Warnings      []string
	// Files lists every path written or linked.
	Files []string
}

// Writer writes primary and secondary files. It is safe for concurrent use;
// writes to the same path are serialized.
type Writer struct {
	primary   string
	secondary string
	backup    bool
	confirm   Confirmer
	linker    Linker
	now       func() time.Time
	locks     *pathLocks
}

// Option configures a Writer
type Option func(*Writer) error

// WithFileNames sets the primary and secondary file names.
func WithFileNames(primary, secondary string) Option {
	return func(w *Writer) error {
		for _, name := range []string{primary, secondary} {
			if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
				return errors.Errorf("output file name %q must be a plain file name", name)
			}
		}
		if primary == secondary {
			return errors.Errorf("primary and secondary file names must differ: %q", primary)
		}
		w.primary, w.secondary = primary, secondary
		return nil
	}
}

// WithBackup controls whether a replaced secondary file is backed up first.
func WithBackup(backup bool) Option {
	return func(w *Writer) error {
		w.backup = backup
		return nil
	}
}

// WithConfirmer sets the confirmation capability.
func WithConfirmer(c Confirmer) Option {
	return func(w *Writer) error {
		if c == nil {
			return errors.New("confirmer cannot be nil")
		}
		w.confirm = c
		return nil
	}
}

// WithLinker replaces the symlink implementation.
func WithLinker(l Linker) Option {
	return func(w *Writer) error {
		if l == nil {
			return errors.New("linker cannot be nil")
		}
		w.linker = l
		return nil
	}
}

// WithClock sets the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) error {
		w.now = now
		return nil
	}
}

// New creates a Writer. Without a confirmer every destructive action is
// declined.
func New(opts ...Option) (*Writer, error) {
	w := &Writer{
		primary:   DefaultPrimary,
		secondary: DefaultSecondary,
		backup:    true,
		confirm:   NeverConfirm,
		linker:    &OSLinker{},
		now:       time.Now,
		locks:     newPathLocks(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, errors.Wrap(err, "failed to apply writer option")
		}
	}
	return w, nil
}

// Primary returns the primary file name.
func (w *Writer) Primary() string { return w.primary }

// Secondary returns the secondary file name.
func (w *Writer) Secondary() string { return w.secondary }

// Existing reads the current primary file in dir. A missing file yields "".
func (w *Writer) Existing(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, w.primary))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", errors.Wrapf(guide.ErrWriteIO, "failed to read %s: %v", filepath.Join(dir, w.primary), err)
	}
	return string(data), nil
}

// Write stores out as the primary file of dir and then ensures the secondary
// file links to it. Replacing an existing, different primary file needs an
// ActionOverwrite confirmation; a decline yields StatusSkipped and leaves
// both files untouched. Secondary file problems are reported as warnings.
func (w *Writer) Write(ctx context.Context, dir string, out guide.MergedOutput) (WriteOutcome, error) {
	primaryPath := filepath.Join(dir, w.primary)
	outcome := WriteOutcome{
		PrimaryPath:   primaryPath,
		SecondaryPath: filepath.Join(dir, w.secondary),
	}
	log := logger.G(ctx).WithField("path", primaryPath)

	unlock := w.locks.lock(primaryPath)
	defer unlock()

	if err := ctx.Err(); err != nil {
		outcome.Status = guide.StatusSkipped
		return outcome, errors.Wrap(err, "write cancelled")
	}

	info, err := os.Lstat(primaryPath)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		outcome.Status = guide.StatusFailed
		return outcome, errors.Wrapf(guide.ErrWriteIO, "failed to stat %s: %v", primaryPath, err)
	}
	if exists && info.IsDir() {
		outcome.Status = guide.StatusFailed
		return outcome, errors.Wrapf(guide.ErrWriteIO, "%s is a directory", primaryPath)
	}

	previous := ""
	if exists {
		data, err := os.ReadFile(primaryPath)
		if err != nil {
			outcome.Status = guide.StatusFailed
			return outcome, errors.Wrapf(guide.ErrWriteIO, "failed to read %s: %v", primaryPath, err)
		}
		previous = string(data)
	}

	switch {
	case exists && previous == out.Body:
		outcome.Status = guide.StatusUnchanged
		outcome.Detail = "already up to date"
	case exists:
		ok, err := w.confirm.Confirm(ctx, ConfirmRequest{
			Action:  ActionOverwrite,
			Path:    primaryPath,
			Message: fmt.Sprintf("Overwrite %s with the merged guidelines?", primaryPath),
			Diff:    udiff.Unified("a/"+w.primary, "b/"+w.primary, previous, out.Body),
		})
		if err != nil {
			outcome.Status = guide.StatusFailed
			return outcome, errors.Wrap(err, "confirmation failed")
		}
		if !ok {
			log.Info("overwrite declined")
			outcome.Status = guide.StatusSkipped
			outcome.Detail = "overwrite declined"
			return outcome, nil
		}
		if err := ctx.Err(); err != nil {
			outcome.Status = guide.StatusSkipped
			return outcome, errors.Wrap(err, "write cancelled")
		}
		perm := info.Mode().Perm()
		if info.Mode()&os.ModeSymlink != 0 {
			perm = 0o644
		}
		if err := writeAtomic(primaryPath, out.Body, perm); err != nil {
			outcome.Status = guide.StatusFailed
			return outcome, err
		}
		outcome.Status = guide.StatusUpdated
		outcome.Files = append(outcome.Files, primaryPath)
	default:
		if err := writeAtomic(primaryPath, out.Body, 0o644); err != nil {
			outcome.Status = guide.StatusFailed
			return outcome, err
		}
		outcome.Status = guide.StatusCreated
		outcome.Files = append(outcome.Files, primaryPath)
	}
	log.WithField("status", outcome.Status.String()).Debug("primary file handled")

	w.ensureSecondary(ctx, dir, previous, out.Body, &outcome)
	return outcome, nil
}

func (w *Writer) ensureSecondary(ctx context.Context, dir, previous, body string, outcome *WriteOutcome) {
	secPath := outcome.SecondaryPath
	log := logger.G(ctx).WithField("path", secPath)

	info, err := os.Lstat(secPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		w.link(dir, body, outcome, LinkCreated)

	case err != nil:
		outcome.warn("cannot inspect %s: %v", w.secondary, err)

	case info.Mode()&os.ModeSymlink != 0:
		dest, err := os.Readlink(secPath)
		if err != nil {
			outcome.warn("cannot read link %s: %v", w.secondary, err)
			return
		}
		if w.pointsToPrimary(dir, dest) {
			outcome.Link = LinkKept
			return
		}
		if _, err := os.Stat(secPath); errors.Is(err, os.ErrNotExist) {
			log.WithField("dest", dest).Info("repairing dangling link")
			if err := os.Remove(secPath); err != nil {
				outcome.warn("cannot remove dangling link %s: %v", w.secondary, err)
				return
			}
			w.link(dir, body, outcome, LinkRepaired)
			return
		}
		w.replaceSecondary(ctx, dir, body, fmt.Sprintf("%s links to %s instead of %s. Replace it with a link to %s?", w.secondary, dest, w.primary, w.primary), outcome)

	case info.Mode().IsRegular():
		data, err := os.ReadFile(secPath)
		if err != nil {
			outcome.warn("cannot read %s: %v", w.secondary, err)
			return
		}
		current := string(data)
		if !w.linker.Supported(dir) && (current == body || current == previous) {
			// refreshing an earlier fallback copy
			if current != body {
				w.writeCopy(body, outcome)
				return
			}
			outcome.Link = LinkCopied
			outcome.warn("symbolic links are unsupported in %s, %s is a copy of %s", dir, w.secondary, w.primary)
			return
		}
		w.replaceSecondary(ctx, dir, body, fmt.Sprintf("%s is a regular file, not a link to %s. Back it up and replace it with a link?", w.secondary, w.primary), outcome)

	default:
		outcome.warn("%s exists and is not a regular file or link, leaving it alone", w.secondary)
	}
}

func (w *Writer) replaceSecondary(ctx context.Context, dir, body, message string, outcome *WriteOutcome) {
	secPath := outcome.SecondaryPath

	ok, err := w.confirm.Confirm(ctx, ConfirmRequest{
		Action:  ActionReplaceSecondary,
		Path:    secPath,
		Message: message,
	})
	if err != nil {
		outcome.warn("confirmation for %s failed: %v", w.secondary, err)
		return
	}
	if !ok {
		outcome.Link = LinkDeclined
		outcome.warn("kept existing %s, it does not follow %s", w.secondary, w.primary)
		return
	}

	if w.backup {
		backupPath := w.backupPath(secPath)
		if err := os.Rename(secPath, backupPath); err != nil {
			outcome.warn("cannot back up %s: %v", w.secondary, err)
			return
		}
		outcome.BackupPath = backupPath
		outcome.Files = append(outcome.Files, backupPath)
	} else if err := os.Remove(secPath); err != nil {
		outcome.warn("cannot remove %s: %v", w.secondary, err)
		return
	}

	w.link(dir, body, outcome, LinkReplaced)
}

// link creates the secondary link, falling back to a copy where links are
// unsupported.
func (w *Writer) link(dir, body string, outcome *WriteOutcome, result LinkResult) {
	if !w.linker.Supported(dir) {
		w.writeCopy(body, outcome)
		return
	}

	if err := w.linker.Symlink(w.primary, outcome.SecondaryPath); err != nil {
		if isLinkUnsupported(err) {
			w.writeCopy(body, outcome)
			return
		}
		outcome.warn("cannot link %s to %s: %v", w.secondary, w.primary, err)
		return
	}
	outcome.Link = result
	outcome.Files = append(outcome.Files, outcome.SecondaryPath)
}

func (w *Writer) writeCopy(body string, outcome *WriteOutcome) {
	if err := writeAtomic(outcome.SecondaryPath, body, 0o644); err != nil {
		outcome.warn("cannot write copy %s: %v", w.secondary, err)
		return
	}
	outcome.Link = LinkCopied
	outcome.Files = append(outcome.Files, outcome.SecondaryPath)
	outcome.warn("symbolic links are unsupported in %s, %s is a copy of %s", filepath.Dir(outcome.SecondaryPath), w.secondary, w.primary)
}

func (w *Writer) pointsToPrimary(dir, dest string) bool {
	if dest == w.primary {
		return true
	}
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(dir, dest)
	}
	return filepath.Clean(dest) == filepath.Join(dir, w.primary)
}

func (w *Writer) backupPath(path string) string {
	candidate := path + ".bak"
	if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
		return candidate
	}
	stamped := path + ".bak." + w.now().Format(backupTimeLayout)
	candidate = stamped
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d", stamped, i)
	}
}

func (o *WriteOutcome) warn(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

// writeAtomic writes content to a temporary file in the target directory and
// renames it into place, so readers see either the old or the new file.
func writeAtomic(path, content string, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(guide.ErrWriteIO, "failed to create temporary file in %s: %v", dir, err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return errors.Wrapf(guide.ErrWriteIO, "failed to write %s: %v", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(guide.ErrWriteIO, "failed to sync %s: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(guide.ErrWriteIO, "failed to close %s: %v", path, err)
	}
	if perm == 0 {
		perm = 0o644
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return errors.Wrapf(guide.ErrWriteIO, "failed to set permissions on %s: %v", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(guide.ErrWriteIO, "failed to replace %s: %v", path, err)
	}
	success = true
	return nil
}
