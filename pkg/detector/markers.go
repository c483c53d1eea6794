package detector

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

const packageJSON = "package.json"

// DefaultMarkers maps manifest file names to the language they identify.
// package.json is handled separately since it may identify either
// JavaScript or TypeScript.
var DefaultMarkers = map[string]guide.LanguageTag{
	"tsconfig.json":    guide.LanguageTypeScript,
	"pyproject.toml":   guide.LanguagePython,
	"setup.py":         guide.LanguagePython,
	"setup.cfg":        guide.LanguagePython,
	"requirements.txt": guide.LanguagePython,
	"Pipfile":          guide.LanguagePython,
	"Cargo.toml":       guide.LanguageRust,
	"go.mod":           guide.LanguageGo,
}

type packageManifest struct {
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func (m packageManifest) declares(name string) bool {
	for _, deps := range []map[string]string{m.Dependencies, m.DevDependencies, m.PeerDependencies, m.OptionalDependencies} {
		if _, ok := deps[name]; ok {
			return true
		}
	}
	return false
}

// inspect returns the languages identified by the marker files among
// entries, and the names of those markers.
func (d *Detector) inspect(ctx context.Context, dir string, entries []os.DirEntry) ([]guide.LanguageTag, []string) {
	found := map[guide.LanguageTag]bool{}
	var markers []string
	hasPackageJSON := false

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == packageJSON {
			hasPackageJSON = true
			markers = append(markers, name)
			continue
		}
		if tag, ok := d.markers[name]; ok {
			found[tag] = true
			markers = append(markers, name)
		}
	}

	if hasPackageJSON && !found[guide.LanguageTypeScript] {
		if usesTypeScript(ctx, filepath.Join(dir, packageJSON)) {
			found[guide.LanguageTypeScript] = true
		} else {
			found[guide.LanguageJavaScript] = true
		}
	}

	langs := make([]guide.LanguageTag, 0, len(found))
	for tag := range found {
		langs = append(langs, tag)
	}
	return guide.SortLanguages(langs), markers
}

func usesTypeScript(ctx context.Context, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("path", path).Debug("cannot read package.json")
		return false
	}

	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		logger.G(ctx).WithError(err).WithField("path", path).Debug("package.json is not valid JSON, assuming JavaScript")
		return false
	}
	return manifest.declares("typescript")
}
