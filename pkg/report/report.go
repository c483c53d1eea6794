// Package report renders a RunResult as a plain-text session summary.
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

// statusOrder is the order in which groups appear.
var statusOrder = []guide.Status{
	guide.StatusCreated,
	guide.StatusUpdated,
	guide.StatusUnchanged,
	guide.StatusSkipped,
	guide.StatusUndetermined,
	guide.StatusFailed,
}

var statusTitles = map[guide.Status]string{
	guide.StatusCreated:      "Created",
	guide.StatusUpdated:      "Updated",
	guide.StatusUnchanged:    "Unchanged",
	guide.StatusSkipped:      "Skipped",
	guide.StatusUndetermined: "Language undetermined (choose with --language)",
	guide.StatusFailed:       "Failed",
}

// Summarize groups outcomes by status, lists each project's languages and
// sections, and collects every warning. It has no side effects.
func Summarize(r guide.RunResult) string {
	var sb strings.Builder

	if r.Root != "" {
		fmt.Fprintf(&sb, "Guideline sync for %s\n", r.Root)
	} else {
		sb.WriteString("Guideline sync\n")
	}

	if len(r.Projects) == 0 {
		sb.WriteString("\nNo projects found.\n")
		return sb.String()
	}

	for _, status := range statusOrder {
		group := r.ByStatus(status)
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s (%d)\n", statusTitles[status], len(group))
		for _, p := range group {
			sb.WriteString("  - ")
			sb.WriteString(displayPath(r.Root, p.Descriptor.Path))
			if len(p.Descriptor.Languages) > 0 {
				fmt.Fprintf(&sb, " [%s, %s]", guide.JoinLanguages(p.Descriptor.Languages), p.Descriptor.Maturity)
			}
			if p.Detail != "" {
				sb.WriteString(": ")
				sb.WriteString(p.Detail)
			}
			sb.WriteString("\n")
			if len(p.Sections) > 0 {
				fmt.Fprintf(&sb, "      sections: %s\n", sectionLabels(p.Sections))
			}
		}
	}

	var warnings []string
	for _, p := range r.Projects {
		for _, w := range p.Warnings {
			warnings = append(warnings, displayPath(r.Root, p.Descriptor.Path)+": "+w)
		}
	}
	if len(warnings) > 0 {
		fmt.Fprintf(&sb, "\nWarnings (%d)\n", len(warnings))
		for _, w := range warnings {
			fmt.Fprintf(&sb, "  - %s\n", w)
		}
	}

	fmt.Fprintf(&sb, "\n%s\n", Totals(r))
	return sb.String()
}

// Totals renders a one-line count per status, e.g.
// "3 projects: 1 created, 1 skipped, 1 undetermined".
func Totals(r guide.RunResult) string {
	var parts []string
	for _, status := range statusOrder {
		if n := r.Count(status); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	noun := "projects"
	if len(r.Projects) == 1 {
		noun = "project"
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d %s", len(r.Projects), noun)
	}
	return fmt.Sprintf("%d %s: %s", len(r.Projects), noun, strings.Join(parts, ", "))
}

func sectionLabels(refs []guide.DocumentReference) string {
	labels := make([]string, 0, len(refs))
	for _, ref := range refs {
		labels = append(labels, ref.Label())
	}
	return strings.Join(labels, ", ")
}

func displayPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
