// Package guide defines the values passed between the guidesync pipeline
// stages: project descriptors, document references, fetched documents,
// merged output and per-project outcomes.
package guide

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// LanguageTag identifies a language ecosystem that guidelines can target.
type LanguageTag string

const (
	// LanguageGo is the Go ecosystem (go.mod)
	LanguageGo LanguageTag = "go"
	// LanguageJavaScript is a Node project without TypeScript
	LanguageJavaScript LanguageTag = "javascript"
	// LanguagePython is the Python ecosystem
	LanguagePython LanguageTag = "python"
	// LanguageRust is the Rust ecosystem (Cargo.toml)
	LanguageRust LanguageTag = "rust"
	// LanguageTypeScript is a Node project using TypeScript
	LanguageTypeScript LanguageTag = "typescript"
)

// KnownLanguages lists every supported tag in lexicographic order.
var KnownLanguages = []LanguageTag{
	LanguageGo,
	LanguageJavaScript,
	LanguagePython,
	LanguageRust,
	LanguageTypeScript,
}

var languageAliases = map[string]LanguageTag{
	"go":         LanguageGo,
	"golang":     LanguageGo,
	"javascript": LanguageJavaScript,
	"js":         LanguageJavaScript,
	"node":       LanguageJavaScript,
	"python":     LanguagePython,
	"py":         LanguagePython,
	"rust":       LanguageRust,
	"rs":         LanguageRust,
	"typescript": LanguageTypeScript,
	"ts":         LanguageTypeScript,
}

var displayNames = map[LanguageTag]string{
	LanguageGo:         "Go",
	LanguageJavaScript: "JavaScript",
	LanguagePython:     "Python",
	LanguageRust:       "Rust",
	LanguageTypeScript: "TypeScript",
}

// ParseLanguage resolves a user-supplied name or alias to a LanguageTag.
func ParseLanguage(s string) (LanguageTag, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if tag, ok := languageAliases[key]; ok {
		return tag, nil
	}
	return "", errors.Errorf("unknown language %q", s)
}

// ParseLanguages parses a list of names, accepting comma separated entries.
func ParseLanguages(values []string) ([]LanguageTag, error) {
	var tags []LanguageTag
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			tag, err := ParseLanguage(part)
			if err != nil {
				return nil, err
			}
			tags = append(tags, tag)
		}
	}
	return SortLanguages(tags), nil
}

// DisplayName returns the human readable name of the language.
func (l LanguageTag) DisplayName() string {
	if name, ok := displayNames[l]; ok {
		return name
	}
	return string(l)
}

// SortLanguages returns a deduplicated copy of tags in lexicographic order.
func SortLanguages(tags []LanguageTag) []LanguageTag {
	seen := make(map[LanguageTag]bool, len(tags))
	out := make([]LanguageTag, 0, len(tags))
	for _, tag := range tags {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// JoinLanguages renders tags as a comma separated list of display names.
func JoinLanguages(tags []LanguageTag) string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.DisplayName())
	}
	return strings.Join(names, ", ")
}
