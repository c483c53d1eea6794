package pipeline

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/selector"
	"github.com/jingkaihe/guidesync/pkg/telemetry"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

// runProject walks one project from selection to its written files. It
// never returns an error; every failure ends up in the outcome.
func (p *Pipeline) runProject(ctx context.Context, j job) guide.ProjectOutcome {
	d := j.descriptor
	ctx = logger.WithProject(ctx, d.Path)
	outcome := guide.ProjectOutcome{Descriptor: d, Warnings: append([]string(nil), j.warnings...)}

	_ = telemetry.WithSpan(ctx, "pipeline.project", func(ctx context.Context) error {
		p.process(ctx, &outcome)
		telemetry.SetAttributes(ctx, attribute.String("project.status", outcome.Status.String()))
		return nil
	},
		attribute.String("project.path", d.Path),
		attribute.String("project.languages", guide.JoinLanguages(d.Languages)),
		attribute.String("project.maturity", d.Maturity.String()),
	)

	log := logger.G(ctx).WithField("status", outcome.Status.String())
	if outcome.Err != nil && outcome.Status == guide.StatusFailed {
		log.WithError(outcome.Err).Warn("project sync failed")
	} else {
		log.Info("project synced")
	}
	return outcome
}

func (p *Pipeline) process(ctx context.Context, outcome *guide.ProjectOutcome) {
	d := outcome.Descriptor
	p.transition(ctx, d.Path, StateDetected)

	p.transition(ctx, d.Path, StateSelecting)
	refs := selector.Select(d, p.catalog)
	for _, tag := range selector.Unsupported(d, p.catalog) {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("no guideline configured for %s", tag.DisplayName()))
	}

	p.transition(ctx, d.Path, StateFetching)
	docs := p.components.Fetcher.FetchAll(ctx, refs)
	if err := ctx.Err(); err != nil {
		p.skip(ctx, outcome, "run cancelled", err)
		return
	}

	for _, doc := range docs {
		if doc.OK() {
			outcome.Sections = append(outcome.Sections, doc.Reference)
			continue
		}
		if doc.Reference.Kind == guide.KindBase {
			p.fail(ctx, outcome, "base guidelines: "+doc.Failure(), errors.Wrap(doc.Err, "base guidelines"))
			return
		}
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("missing %s: %s", doc.Reference.Label(), doc.Failure()))
	}

	p.transition(ctx, d.Path, StateMerging)
	existing, err := p.components.Writer.Existing(d.Path)
	if err != nil {
		p.fail(ctx, outcome, "failed to read the existing guidelines", errors.Wrap(err, "failed to read the existing guidelines"))
		return
	}
	merged, err := p.components.Merger.Merge(d, docs, existing)
	if err != nil {
		p.fail(ctx, outcome, "failed to merge guidelines", errors.Wrap(err, "failed to merge guidelines"))
		return
	}

	p.transition(ctx, d.Path, StateAwaitingConfirmation)
	written, err := p.components.Writer.Write(ctx, d.Path, merged)
	outcome.Files = written.Files
	outcome.Warnings = append(outcome.Warnings, written.Warnings...)
	if err != nil {
		if ctx.Err() != nil {
			p.skip(ctx, outcome, "run cancelled", err)
			return
		}
		p.fail(ctx, outcome, err.Error(), errors.Wrap(err, "failed to write guidelines"))
		return
	}

	outcome.Status = written.Status
	outcome.Detail = written.Detail
	if written.Status == guide.StatusSkipped {
		outcome.Err = errors.Wrapf(guide.ErrConfirmationDeclined, "%s", written.PrimaryPath)
		p.transition(ctx, d.Path, StateSkipped)
		return
	}
	p.transition(ctx, d.Path, StateWritten)
}

func (p *Pipeline) fail(ctx context.Context, outcome *guide.ProjectOutcome, detail string, err error) {
	if err == nil {
		err = errors.New(detail)
	}
	outcome.Status = guide.StatusFailed
	outcome.Detail = detail
	outcome.Err = err
	p.transition(ctx, outcome.Descriptor.Path, StateFailed)
}

func (p *Pipeline) skip(ctx context.Context, outcome *guide.ProjectOutcome, detail string, err error) {
	outcome.Status = guide.StatusSkipped
	outcome.Detail = detail
	outcome.Err = err
	p.transition(ctx, outcome.Descriptor.Path, StateSkipped)
}
