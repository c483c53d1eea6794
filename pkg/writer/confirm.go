package writer

import (
	"context"
	"fmt"
)

// Action names a destructive operation that needs the operator's consent.
type Action int

const (
	// ActionOverwrite replaces an existing primary file
	ActionOverwrite Action = iota
	// ActionReplaceSecondary replaces a secondary file that is not a link to the primary
	ActionReplaceSecondary
	// ActionCommit commits the written files to git
	ActionCommit
)

// String returns a short name for the action.
func (a Action) String() string {
	switch a {
	case ActionOverwrite:
		return "overwrite"
	case ActionReplaceSecondary:
		return "replace secondary"
	case ActionCommit:
		return "commit"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ConfirmRequest describes one destructive action.
type ConfirmRequest struct {
	Action  Action
	Path    string
	Message string
	// Diff is a unified diff of the change, when one applies.
	Diff string
}

// Confirmer decides whether a destructive action may proceed. Implementations
// may block, e.g. on an interactive prompt.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, req ConfirmRequest) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	return f(ctx, req)
}

var (
	// AlwaysConfirm approves every action
	AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, ConfirmRequest) (bool, error) { return true, nil })
	// NeverConfirm declines every action
	NeverConfirm Confirmer = ConfirmFunc(func(context.Context, ConfirmRequest) (bool, error) { return false, nil })
)
