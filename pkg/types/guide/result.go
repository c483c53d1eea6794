package guide

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var (
	// ErrFetchUnreachable marks a document that stayed unreachable after retries
	ErrFetchUnreachable = errors.New("document unreachable")
	// ErrFetchNotFound marks a reference that resolved to nothing
	ErrFetchNotFound = errors.New("document not found")
	// ErrNoLanguageDetected marks a directory without any marker file
	ErrNoLanguageDetected = errors.New("no language detected")
	// ErrConfirmationDeclined marks a destructive action the operator refused
	ErrConfirmationDeclined = errors.New("confirmation declined")
	// ErrLinkUnsupported marks an environment that cannot create symlinks
	ErrLinkUnsupported = errors.New("symbolic links unsupported")
	// ErrWriteIO marks a filesystem failure while writing output
	ErrWriteIO = errors.New("write failed")
)

// Status is the final state of one project in a run.
type Status int

const (
	// StatusCreated means the primary file did not exist and was written
	StatusCreated Status = iota
	// StatusUpdated means an existing primary file was replaced
	StatusUpdated
	// StatusUnchanged means the merged output matched the existing file
	StatusUnchanged
	// StatusSkipped means the operator declined or the run was cancelled
	StatusSkipped
	// StatusFailed means a fatal fetch or I/O error stopped the project
	StatusFailed
	// StatusUndetermined means no language could be detected and none was chosen
	StatusUndetermined
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusUpdated:
		return "updated"
	case StatusUnchanged:
		return "unchanged"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	case StatusUndetermined:
		return "undetermined"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ProjectOutcome records what happened to one project.
type ProjectOutcome struct {
	Descriptor ProjectDescriptor
	Status     Status
	Detail     string
	Sections   []DocumentReference
	Warnings   []string
	Files      []string
	Err        error
}

// RunResult is the ordered set of per-project outcomes of one run.
type RunResult struct {
	RunID    string
	Root     string
	Projects []ProjectOutcome
}

// ByStatus returns the outcomes with the given status, in run order.
func (r RunResult) ByStatus(status Status) []ProjectOutcome {
	var out []ProjectOutcome
	for _, p := range r.Projects {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// Count returns how many outcomes carry the status.
func (r RunResult) Count(status Status) int {
	return len(r.ByStatus(status))
}

// WrittenFiles lists the files written or linked across all projects.
func (r RunResult) WrittenFiles() []string {
	var files []string
	for _, p := range r.Projects {
		files = append(files, p.Files...)
	}
	return files
}

// Err aggregates the errors of every failed project, or returns nil.
func (r RunResult) Err() error {
	var result *multierror.Error
	for _, p := range r.Projects {
		if p.Status != StatusFailed {
			continue
		}
		err := p.Err
		if err == nil {
			err = errors.New(p.Detail)
		}
		result = multierror.Append(result, errors.Wrapf(err, "project %s", p.Descriptor.Path))
	}
	return result.ErrorOrNil()
}
