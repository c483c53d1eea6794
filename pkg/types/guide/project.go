package guide

import "path/filepath"

// Maturity classifies whether a project is being started or already has code.
type Maturity int

const (
	// MaturityExisting means the project already carries real source files
	MaturityExisting Maturity = iota
	// MaturityNew means the project has no source, or only scaffold files
	MaturityNew
)

// String returns the lowercase name of the maturity.
func (m Maturity) String() string {
	switch m {
	case MaturityNew:
		return "new"
	default:
		return "existing"
	}
}

// MarshalText encodes the maturity by name.
func (m Maturity) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ProjectDescriptor identifies one detected project directory.
type ProjectDescriptor struct {
	Path      string        `json:"path"`
	Languages []LanguageTag `json:"languages"`
	Maturity  Maturity      `json:"maturity"`
	Markers   []string      `json:"markers,omitempty"`
}

// NewProjectDescriptor normalizes the path and language set of a descriptor.
func NewProjectDescriptor(path string, languages []LanguageTag, maturity Maturity, markers ...string) ProjectDescriptor {
	return ProjectDescriptor{
		Path:      filepath.Clean(path),
		Languages: SortLanguages(languages),
		Maturity:  maturity,
		Markers:   markers,
	}
}

// HasLanguage reports whether the descriptor carries the tag.
func (p ProjectDescriptor) HasLanguage(tag LanguageTag) bool {
	for _, l := range p.Languages {
		if l == tag {
			return true
		}
	}
	return false
}
