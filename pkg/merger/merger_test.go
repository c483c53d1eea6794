package merger

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

var (
	day1 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	day2 = time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	baseDoc = guide.FetchedDocument{
		Reference: guide.DocumentReference{Kind: guide.KindBase, Location: "https://example.com/base.md"},
		Content:   "# Base\n\nWrite tests.\n",
	}
	tsDoc = guide.FetchedDocument{
		Reference: guide.DocumentReference{Kind: guide.KindLanguageGuideline, Language: guide.LanguageTypeScript, Location: "https://example.com/languages/typescript.md"},
		Content:   "# TypeScript\n\nUse strict mode.\n",
	}
	rustMissing = guide.FetchedDocument{
		Reference: guide.DocumentReference{Kind: guide.KindLanguageGuideline, Language: guide.LanguageRust, Location: "https://example.com/languages/rust.md"},
		ErrKind:   guide.FetchNotFound,
		Err:       errors.New("HTTP 404 from https://example.com/languages/rust.md"),
	}
	project = guide.ProjectDescriptor{
		Path:      "/work/web",
		Languages: []guide.LanguageTag{guide.LanguageTypeScript, guide.LanguageRust},
	}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMergeLayout(t *testing.T) {
	m := New(WithSource("https://example.com"), WithClock(fixedClock(day1)))

	out, err := m.Merge(project, []guide.FetchedDocument{baseDoc, tsDoc}, "")
	require.NoError(t, err)

	want := `<!-- guidesync:generated -->
# Coding Guidelines

Generated by guidesync from https://example.com. Only the Project-Specific Guidelines section below is preserved across syncs.

Last updated: 2026-05-01
Languages: Rust, TypeScript

---

<!-- Source: https://example.com/base.md -->

# Base

Write tests.

---

<!-- Source: https://example.com/languages/typescript.md -->

# TypeScript

Use strict mode.

---

## Project-Specific Guidelines

<!-- Add project-specific guidelines here. This section is preserved across syncs. -->
`
	assert.Equal(t, want, out.Body)
	assert.Equal(t, "/work/web", out.ProjectPath)
	assert.Empty(t, out.Missing)
	assert.Empty(t, out.PreservedCustomSection)
	assert.False(t, out.Reused)
}

func TestMergeMissingSectionPlaceholder(t *testing.T) {
	m := New(WithClock(fixedClock(day1)))

	out, err := m.Merge(project, []guide.FetchedDocument{baseDoc, rustMissing, tsDoc}, "")
	require.NoError(t, err)

	assert.Equal(t, []guide.DocumentReference{rustMissing.Reference}, out.Missing)
	assert.Contains(t, out.Body, "> **Missing section:** Rust guidelines could not be fetched (not found: HTTP 404 from https://example.com/languages/rust.md).")
	assert.Less(t, strings.Index(out.Body, "# Base"), strings.Index(out.Body, "Missing section"))
	assert.Less(t, strings.Index(out.Body, "Missing section"), strings.Index(out.Body, "# TypeScript"))
}

func TestMergePreservesCustomSection(t *testing.T) {
	custom := "- Use pnpm, never npm.\n\n### Deploys\n\nRun `make release` from main only."
	m := New(WithClock(fixedClock(day1)))

	previous, err := m.Merge(project, []guide.FetchedDocument{baseDoc, tsDoc}, "")
	require.NoError(t, err)
	existing := strings.Replace(previous.Body, DefaultCustomHint, custom, 1)

	handWritten := "# Our agent notes\n\n## Project-Specific Guidelines\n\n" + custom + "\n\n## Appendix\n\nOld stuff.\n"

	fetchSets := map[string][]guide.FetchedDocument{
		"all documents":     {baseDoc, tsDoc},
		"language missing":  {baseDoc, rustMissing},
		"only placeholders": {rustMissing},
		"nothing fetched":   nil,
	}

	for _, prior := range []string{existing, handWritten} {
		for name, docs := range fetchSets {
			t.Run(name, func(t *testing.T) {
				out, err := New(WithClock(fixedClock(day2))).Merge(project, docs, prior)
				require.NoError(t, err)
				assert.Equal(t, custom, out.PreservedCustomSection)
				assert.True(t, strings.HasSuffix(out.Body, "## Project-Specific Guidelines\n\n"+custom+"\n"))
				assert.NotContains(t, out.Body, "Old stuff.")
			})
		}
	}
}

func TestMergePreservesCRLFCustomSection(t *testing.T) {
	existing := "# Agents\r\n\r\n## Project-Specific Guidelines\r\n\r\nUse tabs.\r\nNo globals.\r\n"

	out, err := New(WithClock(fixedClock(day1))).Merge(project, []guide.FetchedDocument{baseDoc}, existing)
	require.NoError(t, err)
	assert.Contains(t, out.Body, "Use tabs.\r\nNo globals.")
}

func TestMergeDiscardCustomSection(t *testing.T) {
	existing := "## Project-Specific Guidelines\n\nKeep me?\n"
	out, err := New(WithDiscardCustomSection(true)).Merge(project, []guide.FetchedDocument{baseDoc}, existing)
	require.NoError(t, err)

	assert.Empty(t, out.PreservedCustomSection)
	assert.NotContains(t, out.Body, "Keep me?")
	assert.Contains(t, out.Body, DefaultCustomHint)
}

func TestMergeIsIdempotent(t *testing.T) {
	docs := []guide.FetchedDocument{baseDoc, rustMissing, tsDoc}

	first, err := New(WithClock(fixedClock(day1))).Merge(project, docs, "")
	require.NoError(t, err)

	withCustom := strings.Replace(first.Body, DefaultCustomHint, "Team rule: no default exports.", 1)
	second, err := New(WithClock(fixedClock(day2))).Merge(project, docs, withCustom)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, withCustom, second.Body)

	third, err := New(WithClock(fixedClock(day2))).Merge(project, docs, second.Body)
	require.NoError(t, err)
	assert.Equal(t, second.Body, third.Body)

	changed := []guide.FetchedDocument{baseDoc, tsDoc}
	updated, err := New(WithClock(fixedClock(day2))).Merge(project, changed, withCustom)
	require.NoError(t, err)
	assert.False(t, updated.Reused)
	assert.Contains(t, updated.Body, "Last updated: 2026-05-02")
	assert.Contains(t, updated.Body, "Team rule: no default exports.")
}

func TestMergeFrontmatter(t *testing.T) {
	doc := guide.FetchedDocument{
		Reference: guide.DocumentReference{Kind: guide.KindLanguageGuideline, Language: guide.LanguagePython, Location: "/srv/guides/python.md"},
		Content:   "---\ntitle: Python Guidelines\nversion: 2.1\n---\n\nPrefer pathlib.\n",
	}

	out, err := New(WithClock(fixedClock(day1))).Merge(project, []guide.FetchedDocument{doc}, "")
	require.NoError(t, err)

	assert.Contains(t, out.Body, "<!-- Source: /srv/guides/python.md (version 2.1) -->\n\n## Python Guidelines\n\nPrefer pathlib.\n")
	assert.NotContains(t, out.Body, "title:")
}

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Frontmatter
		body    string
	}{
		{"none", "# Title\n", Frontmatter{}, "# Title\n"},
		{"title and version", "---\ntitle: Rust\nversion: \"1.0\"\n---\n# Rust\n", Frontmatter{Title: "Rust", Version: "1.0"}, "# Rust\n"},
		{"crlf", "---\r\ntitle: Go\r\n---\r\nbody\r\n", Frontmatter{Title: "Go"}, "body\n"},
		{"thematic break is not frontmatter", "---\nJust a rule above.\n", Frontmatter{}, "---\nJust a rule above.\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body := splitFrontmatter(tt.content)
			assert.Equal(t, tt.want, fm)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestExtractCustomSection(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		want     string
		found    bool
	}{
		{
			name:     "empty file",
			existing: "",
		},
		{
			name:     "no section",
			existing: "# Notes\n\nNothing here.\n",
		},
		{
			name:     "hand written stops at next heading of same level",
			existing: "# Agents\n\n## Project-Specific Guidelines\n\nUse tabs.\n\n### Detail\n\nKeep me.\n\n## Other\n\nDrop me.\n",
			want:     "Use tabs.\n\n### Detail\n\nKeep me.",
			found:    true,
		},
		{
			name:     "setext heading",
			existing: "Project-Specific Guidelines\n---------------------------\n\nRun lint first.\n",
			want:     "Run lint first.",
			found:    true,
		},
		{
			name:     "heading inside code block ignored",
			existing: "# Doc\n\n```md\n## Project-Specific Guidelines\nfake\n```\n\n## Project-Specific Guidelines\n\nReal one.\n",
			want:     "Real one.",
			found:    true,
		},
		{
			name:     "case and punctuation insensitive",
			existing: "## project specific guidelines:\n\nlower.\n",
			want:     "lower.",
			found:    true,
		},
		{
			name:     "generated file runs to end",
			existing: GeneratedMarker + "\n# Coding Guidelines\n\n## Project-Specific Guidelines\n\nFirst.\n\n## Not a boundary\n\nStill custom.\n",
			want:     "First.\n\n## Not a boundary\n\nStill custom.",
			found:    true,
		},
		{
			name:     "generated file uses last matching heading",
			existing: GeneratedMarker + "\n---\n\n## Project-Specific Guidelines\n\nupstream text\n\n---\n\n## Project-Specific Guidelines\n\nmine\n",
			want:     "mine",
			found:    true,
		},
		{
			name:     "default hint is not custom content",
			existing: GeneratedMarker + "\n## Project-Specific Guidelines\n\n" + DefaultCustomHint + "\n",
		},
		{
			name:     "empty body",
			existing: "## Project-Specific Guidelines\n\n## Next\n",
		},
		{
			name:     "crlf line endings kept",
			existing: "# Agents\r\n\r\n## Project-Specific Guidelines\r\n\r\nUse tabs.\r\nNo globals.\r\n\r\n## Other\r\n\r\nDrop me.\r\n",
			want:     "Use tabs.\r\nNo globals.",
			found:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractCustomSection(tt.existing)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsGenerated(t *testing.T) {
	assert.True(t, IsGenerated("\n"+GeneratedMarker+"\n# Coding Guidelines\n"))
	assert.False(t, IsGenerated("# Coding Guidelines\n"+GeneratedMarker))
	assert.False(t, IsGenerated(""))
}
