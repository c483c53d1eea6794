// Package selector computes which guideline documents apply to a project.
// Selection is a pure function of the descriptor and the catalog.
package selector

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

// LanguageDocuments holds the locations of one language's documents,
// relative to the catalog root unless absolute.
type LanguageDocuments struct {
	Guideline string
	Setup     string
}

// Catalog maps document kinds to locations under a source root. The root
// is either an http(s) URL or a local directory.
type Catalog struct {
	Root      string
	Base      string
	Languages map[guide.LanguageTag]LanguageDocuments
}

// Supports reports whether the catalog has a guideline for the language.
func (c Catalog) Supports(tag guide.LanguageTag) bool {
	docs, ok := c.Languages[tag]
	return ok && docs.Guideline != ""
}

// Resolve turns a catalog-relative location into a fetchable reference.
// Absolute URLs and absolute paths are returned unchanged.
func (c Catalog) Resolve(location string) string {
	if location == "" || isURL(location) || filepath.IsAbs(location) {
		return location
	}

	if isURL(c.Root) {
		u, err := url.Parse(c.Root)
		if err != nil {
			return location
		}
		rel, err := url.Parse(location)
		if err != nil {
			return location
		}
		u.Path = path.Join(u.Path, rel.Path)
		if rel.RawQuery != "" {
			u.RawQuery = rel.RawQuery
		}
		return u.String()
	}

	return filepath.Join(c.Root, filepath.FromSlash(location))
}

// Select returns the ordered references for a project: the base document
// first, then for every language in lexicographic order its setup prompt
// (new projects only) followed by its guideline. Languages the catalog does
// not cover are omitted; see Unsupported.
func Select(d guide.ProjectDescriptor, c Catalog) []guide.DocumentReference {
	refs := []guide.DocumentReference{{
		Kind:     guide.KindBase,
		Location: c.Resolve(c.Base),
	}}

	for _, tag := range guide.SortLanguages(d.Languages) {
		if !c.Supports(tag) {
			continue
		}
		docs := c.Languages[tag]

		if d.Maturity == guide.MaturityNew && docs.Setup != "" {
			refs = append(refs, guide.DocumentReference{
				Kind:     guide.KindSetupPrompt,
				Language: tag,
				Location: c.Resolve(docs.Setup),
			})
		}

		refs = append(refs, guide.DocumentReference{
			Kind:     guide.KindLanguageGuideline,
			Language: tag,
			Location: c.Resolve(docs.Guideline),
		})
	}

	return refs
}

// Unsupported lists the descriptor's languages that have no guideline in
// the catalog.
func Unsupported(d guide.ProjectDescriptor, c Catalog) []guide.LanguageTag {
	var out []guide.LanguageTag
	for _, tag := range guide.SortLanguages(d.Languages) {
		if !c.Supports(tag) {
			out = append(out, tag)
		}
	}
	return out
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "file://")
}
