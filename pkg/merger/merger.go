// Package merger renders fetched guideline documents into the primary output
// file of a project, carrying the Project-Specific Guidelines section of the
// previous output forward.
package merger

import (
	"bytes"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

// DateLayout is the format of the "Last updated" line.
const DateLayout = "2006-01-02"

const outputTemplate = `{{.Marker}}
# Coding Guidelines

Generated by guidesync from {{.Source}}. Only the Project-Specific Guidelines section below is preserved across syncs.

Last updated: {{.Date}}
Languages: {{.Languages}}
{{range .Sections}}
---

{{.}}
{{end}}
---

## Project-Specific Guidelines

{{.Custom}}
`

var (
	tmpl        = template.Must(template.New("output").Parse(outputTemplate))
	lastUpdated = regexp.MustCompile(`(?m)^Last updated: (\d{4}-\d{2}-\d{2})\s*$`)
)

type templateData struct {
	Marker    string
	Source    string
	Date      string
	Languages string
	Sections  []string
	Custom    string
}

// Merger renders MergedOutput values. It holds no per-project state and is
// safe for concurrent use.
type Merger struct {
	source        string
	now           func() time.Time
	discardCustom bool
}

// Option configures a Merger
type Option func(*Merger)

// WithSource names the guideline source in the attribution line.
func WithSource(source string) Option {
	return func(m *Merger) { m.source = source }
}

// WithClock sets the time source of the "Last updated" line.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) { m.now = now }
}

// WithDiscardCustomSection drops the previous Project-Specific Guidelines
// instead of preserving them.
func WithDiscardCustomSection(discard bool) Option {
	return func(m *Merger) { m.discardCustom = discard }
}

// New creates a Merger
func New(opts ...Option) *Merger {
	m := &Merger{source: "the configured guideline source", now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge concatenates the documents in order under the fixed header, inserts
// a visible placeholder for each failed document and appends the preserved
// custom section of existing. existing is the current content of the
// primary file, or "" when there is none.
//
// When rendering with the existing file's date reproduces it exactly, the
// existing content is returned with Reused set.
func (m *Merger) Merge(d guide.ProjectDescriptor, docs []guide.FetchedDocument, existing string) (guide.MergedOutput, error) {
	out := guide.MergedOutput{ProjectPath: d.Path}

	custom := ""
	if existing != "" && !m.discardCustom {
		if body, ok := ExtractCustomSection(existing); ok {
			custom = body
			out.PreservedCustomSection = body
		}
	}

	sections := make([]string, 0, len(docs))
	for _, doc := range docs {
		if !doc.OK() {
			out.Missing = append(out.Missing, doc.Reference)
			sections = append(sections, placeholder(doc))
			continue
		}
		sections = append(sections, renderSection(doc))
	}

	data := templateData{
		Marker:    GeneratedMarker,
		Source:    m.source,
		Date:      m.now().Format(DateLayout),
		Languages: languagesLine(d.Languages),
		Sections:  sections,
		Custom:    custom,
	}
	if data.Custom == "" {
		data.Custom = DefaultCustomHint
	}

	if match := lastUpdated.FindStringSubmatch(existing); match != nil && IsGenerated(existing) {
		previous := data
		previous.Date = match[1]
		body, err := render(previous)
		if err != nil {
			return out, err
		}
		if body == existing {
			out.Body = existing
			out.Reused = true
			return out, nil
		}
	}

	body, err := render(data)
	if err != nil {
		return out, err
	}
	out.Body = body
	return out, nil
}

func render(data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to render merged output")
	}
	return buf.String(), nil
}

func renderSection(doc guide.FetchedDocument) string {
	fm, body := splitFrontmatter(doc.Content)
	body = trimBlankLines(body)

	var sb strings.Builder
	sb.WriteString(sourceNote(doc.Reference, fm.Version))
	sb.WriteString("\n\n")
	if fm.Title != "" && !startsWithHeading(body) {
		sb.WriteString("## ")
		sb.WriteString(fm.Title)
		sb.WriteString("\n\n")
	}
	sb.WriteString(body)
	return strings.TrimRight(sb.String(), "\n")
}

func placeholder(doc guide.FetchedDocument) string {
	reason := doc.ErrKind.String()
	if doc.Err != nil {
		reason = doc.Failure()
	}
	return sourceNote(doc.Reference, "") + "\n\n" +
		"> **Missing section:** " + doc.Reference.Label() + " could not be fetched (" + oneLine(reason) + "). Run guidesync again to retry."
}

func sourceNote(ref guide.DocumentReference, version string) string {
	note := "<!-- Source: " + commentSafe(ref.Location)
	if version != "" {
		note += " (version " + commentSafe(version) + ")"
	}
	return note + " -->"
}

func languagesLine(tags []guide.LanguageTag) string {
	if len(tags) == 0 {
		return "none detected"
	}
	return guide.JoinLanguages(guide.SortLanguages(tags))
}

func startsWithHeading(body string) bool {
	return strings.HasPrefix(strings.TrimLeft(body, " "), "#")
}

// commentSafe keeps text from terminating an HTML comment early.
func commentSafe(s string) string {
	return strings.ReplaceAll(s, "--", "- -")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
