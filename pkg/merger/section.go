package merger

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CustomSectionHeading is the heading whose body survives every sync.
const CustomSectionHeading = "Project-Specific Guidelines"

// GeneratedMarker is the first line of every file guidesync writes.
const GeneratedMarker = "<!-- guidesync:generated -->"

// DefaultCustomHint fills the custom section when nothing is preserved.
const DefaultCustomHint = "<!-- Add project-specific guidelines here. This section is preserved across syncs. -->"

type heading struct {
	level     int
	text      string
	startLine int
	endLine   int
}

// IsGenerated reports whether content was written by guidesync.
func IsGenerated(content string) bool {
	for _, line := range strings.Split(normalizeNewlines(content), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		return strings.TrimSpace(line) == GeneratedMarker
	}
	return false
}

// ExtractCustomSection returns the body of the Project-Specific Guidelines
// section of an existing output file. Headings inside code blocks, block
// quotes and lists are not considered. In a generated file the section runs
// to the end of the file; in a hand-written one it ends at the next heading
// of the same or a higher level. An empty body or the default hint counts
// as no section. The body keeps the line endings of existing.
func ExtractCustomSection(existing string) (string, bool) {
	src := normalizeNewlines(existing)
	if strings.TrimSpace(src) == "" {
		return "", false
	}
	headings := topLevelHeadings(src)
	generated := IsGenerated(src)

	target := -1
	for i, h := range headings {
		if !isCustomHeading(h.text) {
			continue
		}
		target = i
		if !generated {
			break
		}
	}
	if target < 0 {
		return "", false
	}

	// dropping \r before \n keeps line numbers, so slice the original
	lines := strings.Split(existing, "\n")
	start := headings[target].endLine + 1
	end := len(lines)
	if !generated {
		for _, h := range headings[target+1:] {
			if h.level <= headings[target].level {
				end = h.startLine
				break
			}
		}
	}
	if start >= end {
		return "", false
	}

	body := strings.TrimSuffix(trimBlankLines(strings.Join(lines[start:end], "\n")), "\r")
	if body == "" || strings.TrimSpace(body) == DefaultCustomHint {
		return "", false
	}
	return body, true
}

func topLevelHeadings(src string) []heading {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var out []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		first := h.Lines().At(0)
		last := h.Lines().At(h.Lines().Len() - 1)
		startLine := lineOf(source, first.Start)
		endLine := lineOf(source, last.Start)
		if isSetext(source, h) {
			// the underline follows the last text line
			endLine++
		}
		out = append(out, heading{
			level:     h.Level,
			text:      inlineText(h, source),
			startLine: startLine,
			endLine:   endLine,
		})
	}
	return out
}

func isSetext(source []byte, h *ast.Heading) bool {
	first := h.Lines().At(0)
	lineStart := first.Start
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	return !strings.HasPrefix(strings.TrimLeft(string(source[lineStart:first.Start]), " "), "#")
}

func lineOf(source []byte, offset int) int {
	line := 0
	for _, b := range source[:offset] {
		if b == '\n' {
			line++
		}
	}
	return line
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func isCustomHeading(s string) bool {
	normalized := strings.ToLower(strings.Join(strings.Fields(s), " "))
	normalized = strings.TrimRight(normalized, ": ")
	return normalized == "project-specific guidelines" || normalized == "project specific guidelines"
}

func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
