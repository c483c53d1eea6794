package pipeline

import (
	"context"

	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

// LanguageChooser picks languages for a directory that has no project
// markers. Returning no languages leaves the directory undetermined.
type LanguageChooser interface {
	ChooseLanguages(ctx context.Context, dir string) ([]guide.LanguageTag, error)
}

// ChooserFunc adapts a function to the LanguageChooser interface.
type ChooserFunc func(ctx context.Context, dir string) ([]guide.LanguageTag, error)

// ChooseLanguages calls f.
func (f ChooserFunc) ChooseLanguages(ctx context.Context, dir string) ([]guide.LanguageTag, error) {
	return f(ctx, dir)
}

// FixedLanguages returns a chooser that assigns the same languages to every
// undetermined directory.
func FixedLanguages(langs ...guide.LanguageTag) LanguageChooser {
	sorted := guide.SortLanguages(langs)
	return ChooserFunc(func(context.Context, string) ([]guide.LanguageTag, error) {
		return sorted, nil
	})
}
