package main

import (
	"github.com/pkg/errors"

	"github.com/jingkaihe/guidesync/pkg/config"
	"github.com/jingkaihe/guidesync/pkg/detector"
	"github.com/jingkaihe/guidesync/pkg/fetcher"
	"github.com/jingkaihe/guidesync/pkg/merger"
	"github.com/jingkaihe/guidesync/pkg/pipeline"
	"github.com/jingkaihe/guidesync/pkg/writer"
)

// syncOptions are the per-invocation choices that are not configuration.
type syncOptions struct {
	Languages     []string
	DiscardCustom bool
	Commit        bool
}

func newDetector(cfg config.Config) (*detector.Detector, error) {
	return detector.New(
		detector.WithMaxDepth(cfg.Detect.MaxDepth),
		detector.WithExcludePatterns(cfg.Detect.Exclude...),
	)
}

// newPipeline assembles the stages from cfg. confirm answers every
// destructive action.
func newPipeline(cfg config.Config, opts syncOptions, confirm writer.Confirmer, chooser pipeline.LanguageChooser) (*pipeline.Pipeline, error) {
	d, err := newDetector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create detector")
	}

	f, err := fetcher.New(
		fetcher.WithTimeout(cfg.Fetch.Timeout),
		fetcher.WithRetries(cfg.Fetch.Retries),
		fetcher.WithRetryDelay(cfg.Fetch.RetryDelay),
		fetcher.WithAllowedHosts(cfg.Fetch.AllowedHosts...),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fetcher")
	}

	w, err := writer.New(
		writer.WithFileNames(cfg.Output.Primary, cfg.Output.Secondary),
		writer.WithBackup(cfg.Output.Backup),
		writer.WithConfirmer(confirm),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create writer")
	}

	m := merger.New(
		merger.WithSource(cfg.Source),
		merger.WithDiscardCustomSection(opts.DiscardCustom),
	)

	pipelineOpts := []pipeline.Option{pipeline.WithConcurrency(cfg.Concurrency)}
	if chooser != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithLanguageChooser(chooser))
	}
	return pipeline.New(cfg.Catalog(), pipeline.Components{
		Detector: d,
		Fetcher:  f,
		Merger:   m,
		Writer:   w,
	}, pipelineOpts...)
}
