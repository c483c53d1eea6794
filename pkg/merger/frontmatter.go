package merger

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Frontmatter holds the keys guidesync reads from a document's YAML header.
type Frontmatter struct {
	Title   string
	Version string
}

var markdown = goldmark.New(goldmark.WithExtensions(meta.Meta))

// splitFrontmatter parses an optional YAML frontmatter block and returns it
// along with the document body. Content that merely starts with a thematic
// break is returned unchanged.
func splitFrontmatter(content string) (Frontmatter, string) {
	content = normalizeNewlines(content)
	if !strings.HasPrefix(content, "---\n") {
		return Frontmatter{}, content
	}

	pctx := parser.NewContext()
	markdown.Parser().Parse(text.NewReader([]byte(content)), parser.WithContext(pctx))
	data, err := meta.TryGet(pctx)
	if err != nil || data == nil {
		return Frontmatter{}, content
	}

	fm := Frontmatter{
		Title:   stringValue(data["title"]),
		Version: stringValue(data["version"]),
	}
	return fm, stripFrontmatter(content)
}

func stripFrontmatter(content string) string {
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return content
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
