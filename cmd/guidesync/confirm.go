package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/pipeline"
	"github.com/jingkaihe/guidesync/pkg/presenter"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
	"github.com/jingkaihe/guidesync/pkg/writer"
)

// interactive reports whether prompts can be answered on this terminal.
func interactive() bool {
	in, out := os.Stdin.Fd(), os.Stdout.Fd()
	return (isatty.IsTerminal(in) || isatty.IsCygwinTerminal(in)) &&
		(isatty.IsTerminal(out) || isatty.IsCygwinTerminal(out))
}

// terminalConfirmer asks the operator about destructive actions. With
// yes set every action is approved; without a terminal every action is
// declined.
type terminalConfirmer struct {
	presenter   presenter.Presenter
	interactive bool
	yes         bool
}

func (c *terminalConfirmer) Confirm(ctx context.Context, req writer.ConfirmRequest) (bool, error) {
	log := logger.G(ctx).WithField("action", req.Action.String()).WithField("path", req.Path)
	if c.yes {
		log.Debug("action approved by --yes")
		return true, nil
	}
	if !c.interactive {
		log.Info("action declined: no terminal to confirm on, pass --yes to approve")
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	return c.presenter.ConfirmWithDiff(req.Path, req.Diff, req.Message), nil
}

// promptChooser asks for the languages of a directory without markers.
type promptChooser struct {
	presenter presenter.Presenter
}

func (c *promptChooser) ChooseLanguages(ctx context.Context, dir string) ([]guide.LanguageTag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(guide.KnownLanguages))
	for _, tag := range guide.KnownLanguages {
		names = append(names, string(tag))
	}
	question := fmt.Sprintf("No project markers in %s. Languages (%s, empty to skip)", dir, strings.Join(names, ", "))

	for attempt := 0; attempt < 3; attempt++ {
		answer := c.presenter.Prompt(question)
		if answer == "" {
			return nil, nil
		}
		langs, err := guide.ParseLanguages([]string{answer})
		if err == nil {
			return langs, nil
		}
		c.presenter.Warning(err.Error())
	}
	return nil, nil
}

// languageChooser picks the chooser for undetermined directories: fixed
// languages from --language, a prompt on a terminal, or none.
func languageChooser(languages []string, p presenter.Presenter, tty bool) (pipeline.LanguageChooser, error) {
	if len(languages) > 0 {
		tags, err := guide.ParseLanguages(languages)
		if err != nil {
			return nil, err
		}
		return pipeline.FixedLanguages(tags...), nil
	}
	if tty {
		return &promptChooser{presenter: p}, nil
	}
	return nil, nil
}
