// Package detector finds projects under a root directory by their manifest
// files and classifies each as new or existing.
package detector

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

// DefaultMaxDepth is how many directory levels below the root are searched.
const DefaultMaxDepth = 3

// Detection is the result of scanning one root directory.
type Detection struct {
	Root     string
	Projects []guide.ProjectDescriptor
	// Undetermined lists directories that look like projects but carry no
	// recognised marker. They need an explicit language choice.
	Undetermined []string
}

// Err returns ErrNoLanguageDetected when no project was found.
func (d Detection) Err() error {
	if len(d.Projects) == 0 {
		return errors.Wrapf(guide.ErrNoLanguageDetected, "no project markers under %s", d.Root)
	}
	return nil
}

// Detector walks directory trees looking for marker files.
type Detector struct {
	maxDepth int
	excludes []string
	markers  map[string]guide.LanguageTag
}

// Option configures a Detector
type Option func(*Detector) error

// WithMaxDepth bounds the walk. 0 inspects the root only.
func WithMaxDepth(depth int) Option {
	return func(d *Detector) error {
		if depth < 0 {
			return errors.Errorf("max depth cannot be negative: %d", depth)
		}
		d.maxDepth = depth
		return nil
	}
}

// WithExcludePatterns replaces the pruned directory patterns. Patterns use
// doublestar syntax and match either a directory's base name or its
// slash-separated path relative to the root.
func WithExcludePatterns(patterns ...string) Option {
	return func(d *Detector) error {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return errors.Errorf("invalid exclude pattern %q", p)
			}
		}
		d.excludes = append([]string(nil), patterns...)
		return nil
	}
}

// WithMarker registers an additional marker file name for a language.
func WithMarker(fileName string, tag guide.LanguageTag) Option {
	return func(d *Detector) error {
		if fileName == "" || strings.ContainsAny(fileName, `/\`) {
			return errors.Errorf("marker must be a plain file name: %q", fileName)
		}
		d.markers[fileName] = tag
		return nil
	}
}

// New creates a Detector. Without options it searches DefaultMaxDepth levels
// and prunes nothing.
func New(opts ...Option) (*Detector, error) {
	d := &Detector{
		maxDepth: DefaultMaxDepth,
		markers:  make(map[string]guide.LanguageTag, len(DefaultMarkers)),
	}
	for name, tag := range DefaultMarkers {
		d.markers[name] = tag
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, errors.Wrap(err, "failed to apply detector option")
		}
	}
	return d, nil
}

// Detect scans root. Finding nothing is not an error; the returned
// Detection then lists root as undetermined.
func (d *Detector) Detect(ctx context.Context, root string) (Detection, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Detection{}, errors.Wrapf(err, "failed to resolve %s", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Detection{}, errors.Wrapf(err, "failed to stat root %s", abs)
	}
	if !info.IsDir() {
		return Detection{}, errors.Errorf("root %s is not a directory", abs)
	}

	w := &walk{detector: d, root: abs, found: map[string]bool{}}
	if err := w.visit(ctx, abs, 0); err != nil {
		return Detection{}, err
	}

	det := Detection{Root: abs, Projects: w.projects}
	sort.Slice(det.Projects, func(i, j int) bool { return det.Projects[i].Path < det.Projects[j].Path })

	switch {
	case len(det.Projects) == 0:
		det.Undetermined = []string{abs}
	case !w.found[abs]:
		det.Undetermined = w.undeterminedChildren()
	}

	logger.G(ctx).WithField("root", abs).
		WithField("projects", len(det.Projects)).
		WithField("undetermined", len(det.Undetermined)).
		Debug("detection complete")
	return det, nil
}

type walk struct {
	detector *Detector
	root     string
	projects []guide.ProjectDescriptor
	// found records directories that are a project or contain one.
	found    map[string]bool
	children []string
}

func (w *walk) visit(ctx context.Context, dir string, depth int) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "detection cancelled")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if dir == w.root {
			return errors.Wrapf(err, "failed to read %s", dir)
		}
		logger.G(ctx).WithError(err).WithField("dir", dir).Warn("skipping unreadable directory")
		return nil
	}

	langs, markers := w.detector.inspect(ctx, dir, entries)
	if len(langs) > 0 {
		maturity := w.detector.ClassifyMaturity(ctx, dir, langs)
		w.projects = append(w.projects, guide.NewProjectDescriptor(dir, langs, maturity, markers...))
		w.markFound(dir)
		logger.G(ctx).WithField("dir", dir).
			WithField("languages", langs).
			WithField("maturity", maturity.String()).
			Debug("project detected")
	}

	if depth >= w.detector.maxDepth {
		return nil
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		child := filepath.Join(dir, entry.Name())
		rel, _ := filepath.Rel(w.root, child)
		if w.detector.excluded(entry.Name(), filepath.ToSlash(rel)) {
			continue
		}
		if depth == 0 && !strings.HasPrefix(entry.Name(), ".") {
			w.children = append(w.children, child)
		}
		if err := w.visit(ctx, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) markFound(dir string) {
	for {
		w.found[dir] = true
		if dir == w.root {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func (w *walk) undeterminedChildren() []string {
	var out []string
	for _, child := range w.children {
		if !w.found[child] {
			out = append(out, child)
		}
	}
	return out
}

func (d *Detector) excluded(name, rel string) bool {
	for _, p := range d.excludes {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
		if rel != "" {
			if ok, _ := doublestar.Match(p, rel); ok {
				return true
			}
		}
	}
	return false
}
