package guide

import (
	"fmt"
	"time"
)

// DocumentKind is the role a document plays in the merged output.
type DocumentKind int

const (
	// KindBase is the language-agnostic guideline applied to every project
	KindBase DocumentKind = iota
	// KindSetupPrompt is the per-language setup prompt used by new projects
	KindSetupPrompt
	// KindLanguageGuideline is the standing per-language guideline
	KindLanguageGuideline
)

// String returns a short name for the kind.
func (k DocumentKind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindSetupPrompt:
		return "setup"
	case KindLanguageGuideline:
		return "guideline"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DocumentReference points at one document to fetch. Equal references are
// interchangeable.
type DocumentReference struct {
	Kind     DocumentKind `json:"kind"`
	Language LanguageTag  `json:"language,omitempty"`
	Location string       `json:"location"`
}

// Label describes the reference for reports and placeholders.
func (r DocumentReference) Label() string {
	switch r.Kind {
	case KindBase:
		return "base guidelines"
	case KindSetupPrompt:
		return r.Language.DisplayName() + " setup prompt"
	default:
		return r.Language.DisplayName() + " guidelines"
	}
}

// FetchErrorKind classifies why a document could not be fetched.
type FetchErrorKind int

const (
	// FetchOK means the document was retrieved
	FetchOK FetchErrorKind = iota
	// FetchUnreachable means a transport or file error persisted after retries
	FetchUnreachable
	// FetchNotFound means the reference resolved to nothing
	FetchNotFound
	// FetchInvalid means the reference is malformed or not allowed
	FetchInvalid
)

// String returns the kind as used in reports.
func (k FetchErrorKind) String() string {
	switch k {
	case FetchOK:
		return "ok"
	case FetchUnreachable:
		return "unreachable"
	case FetchNotFound:
		return "not found"
	case FetchInvalid:
		return "invalid reference"
	default:
		return fmt.Sprintf("fetch_error(%d)", int(k))
	}
}

// FetchedDocument is the outcome of fetching one reference. When ErrKind is
// not FetchOK, Content is empty and Err explains the failure.
type FetchedDocument struct {
	Reference DocumentReference
	Content   string
	FetchedAt time.Time
	ErrKind   FetchErrorKind
	Err       error
}

// OK reports whether the fetch succeeded.
func (d FetchedDocument) OK() bool {
	return d.ErrKind == FetchOK
}

// Failure renders the failure for reports, e.g. "not found: https://...".
func (d FetchedDocument) Failure() string {
	if d.OK() {
		return ""
	}
	if d.Err != nil {
		return fmt.Sprintf("%s: %v", d.ErrKind, d.Err)
	}
	return fmt.Sprintf("%s: %s", d.ErrKind, d.Reference.Location)
}

// MergedOutput is the rendered primary file for one project.
type MergedOutput struct {
	ProjectPath            string
	Body                   string
	PreservedCustomSection string
	Missing                []DocumentReference
	// Reused is set when the existing file content was reproduced exactly.
	Reused bool
}
