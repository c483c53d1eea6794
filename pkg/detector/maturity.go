package detector

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

// scaffoldMaxLines is the largest non-blank line count at which a scaffold
// file such as index.ts or main.go still counts as a placeholder.
const scaffoldMaxLines = 10

type sourceLayout struct {
	dirs       []string
	extensions []string
}

var sourceLayouts = map[guide.LanguageTag]sourceLayout{
	guide.LanguageTypeScript: {dirs: []string{"src", "app", "lib"}, extensions: []string{".ts", ".tsx", ".mts", ".cts"}},
	guide.LanguageJavaScript: {dirs: []string{"src", "app", "lib"}, extensions: []string{".js", ".jsx", ".mjs", ".cjs"}},
	guide.LanguagePython:     {dirs: []string{"src", "app"}, extensions: []string{".py"}},
	guide.LanguageRust:       {dirs: []string{"src"}, extensions: []string{".rs"}},
	guide.LanguageGo:         {dirs: []string{"cmd", "internal", "pkg"}, extensions: []string{".go"}},
}

var scaffoldNames = map[string]bool{
	"index.ts": true, "index.tsx": true, "index.js": true, "index.jsx": true, "index.mjs": true,
	"main.ts": true, "main.js": true, "app.ts": true, "app.tsx": true, "app.js": true, "app.jsx": true,
	"__init__.py": true, "__main__.py": true, "main.py": true, "app.py": true,
	"main.rs": true, "lib.rs": true,
	"main.go": true, "doc.go": true,
}

// ClassifyMaturity decides whether the project in dir is New or Existing for
// the given languages. A project is New when none of its languages has a
// source file that is more than a placeholder, either in the language's
// conventional source directories or at the project root.
func (d *Detector) ClassifyMaturity(ctx context.Context, dir string, langs []guide.LanguageTag) guide.Maturity {
	for _, tag := range langs {
		layout, ok := sourceLayouts[tag]
		if !ok {
			continue
		}
		if d.hasRealSource(ctx, dir, layout) {
			return guide.MaturityExisting
		}
	}
	return guide.MaturityNew
}

func (d *Detector) hasRealSource(ctx context.Context, dir string, layout sourceLayout) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && layout.matches(entry.Name()) && !isPlaceholder(filepath.Join(dir, entry.Name())) {
			return true
		}
	}

	for _, sub := range layout.dirs {
		srcDir := filepath.Join(dir, sub)
		info, err := os.Stat(srcDir)
		if err != nil || !info.IsDir() {
			continue
		}

		found := false
		walkErr := filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if entry.IsDir() {
				if path != srcDir && d.excluded(entry.Name(), "") {
					return filepath.SkipDir
				}
				return nil
			}
			if entry.Type().IsRegular() && layout.matches(entry.Name()) && !isPlaceholder(path) {
				found = true
				return fs.SkipAll
			}
			return nil
		})
		if walkErr != nil {
			logger.G(ctx).WithError(walkErr).WithField("dir", srcDir).Debug("source scan interrupted")
		}
		if found {
			return true
		}
	}
	return false
}

func (l sourceLayout) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range l.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func isPlaceholder(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	limit := -1
	if scaffoldNames[strings.ToLower(filepath.Base(path))] {
		limit = scaffoldMaxLines
	}

	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		lines++
		if lines > limit {
			return false
		}
	}
	if scanner.Err() != nil {
		return false
	}
	return lines == 0 || lines <= limit
}
