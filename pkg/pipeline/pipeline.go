// Package pipeline drives one sync run: detection, then per project
// selection, fetching, merging and writing. Projects run concurrently and
// fail independently.
package pipeline

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/guidesync/pkg/detector"
	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/selector"
	"github.com/jingkaihe/guidesync/pkg/telemetry"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
	"github.com/jingkaihe/guidesync/pkg/writer"
)

// DefaultConcurrency is the number of projects processed at once.
const DefaultConcurrency = 4

// Detector finds projects under a root.
type Detector interface {
	Detect(ctx context.Context, root string) (detector.Detection, error)
	ClassifyMaturity(ctx context.Context, dir string, langs []guide.LanguageTag) guide.Maturity
}

// Fetcher retrieves documents; failures are carried in the results.
type Fetcher interface {
	FetchAll(ctx context.Context, refs []guide.DocumentReference) []guide.FetchedDocument
}

// Merger renders the primary file.
type Merger interface {
	Merge(d guide.ProjectDescriptor, docs []guide.FetchedDocument, existing string) (guide.MergedOutput, error)
}

// Writer persists the primary and secondary files.
type Writer interface {
	Existing(dir string) (string, error)
	Write(ctx context.Context, dir string, out guide.MergedOutput) (writer.WriteOutcome, error)
}

// Components are the stages the pipeline drives.
type Components struct {
	Detector Detector
	Fetcher  Fetcher
	Merger   Merger
	Writer   Writer
}

// Pipeline runs syncs. A Pipeline may be reused for several runs.
type Pipeline struct {
	catalog     selector.Catalog
	components  Components
	concurrency int
	chooser     LanguageChooser
	observer    func(path string, state State)
	runID       func() string
}

// Option configures a Pipeline
type Option func(*Pipeline) error

// WithConcurrency bounds how many projects are processed at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return errors.Errorf("concurrency must be at least 1: %d", n)
		}
		p.concurrency = n
		return nil
	}
}

// WithLanguageChooser sets who picks languages for directories without
// markers. Without one those directories stay undetermined.
func WithLanguageChooser(c LanguageChooser) Option {
	return func(p *Pipeline) error {
		p.chooser = c
		return nil
	}
}

// WithStateObserver registers a callback invoked on every state transition.
// It is called from several goroutines.
func WithStateObserver(fn func(path string, state State)) Option {
	return func(p *Pipeline) error {
		p.observer = fn
		return nil
	}
}

// WithRunID fixes the id attached to the run's log lines.
func WithRunID(id string) Option {
	return func(p *Pipeline) error {
		p.runID = func() string { return id }
		return nil
	}
}

// New creates a Pipeline over the catalog and components.
func New(catalog selector.Catalog, components Components, opts ...Option) (*Pipeline, error) {
	switch {
	case components.Detector == nil:
		return nil, errors.New("pipeline requires a detector")
	case components.Fetcher == nil:
		return nil, errors.New("pipeline requires a fetcher")
	case components.Merger == nil:
		return nil, errors.New("pipeline requires a merger")
	case components.Writer == nil:
		return nil, errors.New("pipeline requires a writer")
	}

	p := &Pipeline{
		catalog:     catalog,
		components:  components,
		concurrency: DefaultConcurrency,
		runID:       uuid.NewString,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.Wrap(err, "failed to apply pipeline option")
		}
	}
	return p, nil
}

type job struct {
	descriptor   guide.ProjectDescriptor
	undetermined bool
	detail       string
	warnings     []string
}

// Run syncs every project under root. The returned error covers detection
// only; per-project failures are recorded in the RunResult, see
// RunResult.Err.
func (p *Pipeline) Run(ctx context.Context, root string) (guide.RunResult, error) {
	runID := p.runID()
	ctx = logger.WithRun(ctx, runID)
	result := guide.RunResult{RunID: runID, Root: root}

	err := telemetry.WithSpan(ctx, "pipeline.run", func(ctx context.Context) error {
		detection, err := p.components.Detector.Detect(ctx, root)
		if err != nil {
			return errors.Wrap(err, "project detection failed")
		}
		result.Root = detection.Root

		jobs := p.plan(ctx, detection)
		result.Projects = p.execute(ctx, jobs)

		telemetry.SetAttributes(ctx,
			attribute.Int("run.projects", len(result.Projects)),
			attribute.Int("run.failed", result.Count(guide.StatusFailed)),
		)
		return nil
	}, attribute.String("run.id", runID), attribute.String("run.root", root))

	return result, err
}

// Plan returns the descriptors a run would process, including directories
// whose languages came from the chooser, and the directories that remain
// undetermined.
func (p *Pipeline) Plan(ctx context.Context, root string) ([]guide.ProjectDescriptor, []string, error) {
	detection, err := p.components.Detector.Detect(ctx, root)
	if err != nil {
		return nil, nil, errors.Wrap(err, "project detection failed")
	}

	var (
		projects     []guide.ProjectDescriptor
		undetermined []string
	)
	for _, j := range p.plan(ctx, detection) {
		if j.undetermined {
			undetermined = append(undetermined, j.descriptor.Path)
			continue
		}
		projects = append(projects, j.descriptor)
	}
	return projects, undetermined, nil
}

// Catalog returns the catalog selection runs against.
func (p *Pipeline) Catalog() selector.Catalog {
	return p.catalog
}

func (p *Pipeline) plan(ctx context.Context, detection detector.Detection) []job {
	jobs := make([]job, 0, len(detection.Projects)+len(detection.Undetermined))
	for _, d := range detection.Projects {
		jobs = append(jobs, job{descriptor: d})
	}

	for _, dir := range detection.Undetermined {
		j := job{
			descriptor:   guide.NewProjectDescriptor(dir, nil, guide.MaturityNew),
			undetermined: true,
			detail:       "no project markers found, choose a language with --language",
		}

		if p.chooser != nil {
			langs, err := p.chooser.ChooseLanguages(ctx, dir)
			switch {
			case err != nil:
				j.warnings = append(j.warnings, "language choice failed: "+err.Error())
			case len(langs) > 0:
				maturity := p.components.Detector.ClassifyMaturity(ctx, dir, langs)
				j = job{
					descriptor: guide.NewProjectDescriptor(dir, langs, maturity),
					warnings:   []string{"languages chosen by the operator: " + guide.JoinLanguages(guide.SortLanguages(langs))},
				}
			}
		}
		jobs = append(jobs, j)
	}

	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].descriptor.Path < jobs[j].descriptor.Path })
	return jobs
}

func (p *Pipeline) execute(ctx context.Context, jobs []job) []guide.ProjectOutcome {
	outcomes := make([]guide.ProjectOutcome, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for i, j := range jobs {
		if j.undetermined {
			p.transition(ctx, j.descriptor.Path, StateUndetermined)
			outcomes[i] = guide.ProjectOutcome{
				Descriptor: j.descriptor,
				Status:     guide.StatusUndetermined,
				Detail:     j.detail,
				Warnings:   j.warnings,
				Err:        errors.Wrapf(guide.ErrNoLanguageDetected, "%s", j.descriptor.Path),
			}
			continue
		}
		if ctx.Err() != nil {
			outcomes[i] = p.cancelled(ctx, j)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = p.cancelled(ctx, j)
				return nil
			}
			outcomes[i] = p.runProject(ctx, j)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) cancelled(ctx context.Context, j job) guide.ProjectOutcome {
	p.transition(ctx, j.descriptor.Path, StateSkipped)
	return guide.ProjectOutcome{
		Descriptor: j.descriptor,
		Status:     guide.StatusSkipped,
		Detail:     "run cancelled",
		Warnings:   j.warnings,
		Err:        ctx.Err(),
	}
}

func (p *Pipeline) transition(ctx context.Context, path string, state State) {
	logger.G(ctx).WithField("project", path).WithField("state", string(state)).Debug("project state changed")
	telemetry.AddEvent(ctx, "state."+string(state))
	if p.observer != nil {
		p.observer(path, state)
	}
}
