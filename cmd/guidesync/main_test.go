package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/guidesync/pkg/config"
	"github.com/jingkaihe/guidesync/pkg/detector"
	"github.com/jingkaihe/guidesync/pkg/presenter"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
	"github.com/jingkaihe/guidesync/pkg/writer"
)

func testPresenter(input string) (*presenter.TerminalPresenter, *bytes.Buffer) {
	var out bytes.Buffer
	p := presenter.NewWithOptions(&out, &out, presenter.ColorNever)
	p.SetInput(strings.NewReader(input))
	return p, &out
}

func TestTerminalConfirmer(t *testing.T) {
	req := writer.ConfirmRequest{
		Action:  writer.ActionOverwrite,
		Path:    "/work/AGENTS.md",
		Message: "Overwrite /work/AGENTS.md with the merged guidelines?",
		Diff:    "--- a/AGENTS.md\n+++ b/AGENTS.md\n@@ -1 +1 @@\n-old\n+new\n",
	}

	tests := []struct {
		name        string
		interactive bool
		yes         bool
		input       string
		want        bool
		prompted    bool
	}{
		{name: "yes approves without prompting", yes: true, want: true},
		{name: "no terminal declines", want: false},
		{name: "operator accepts", interactive: true, input: "y\n", want: true, prompted: true},
		{name: "operator declines", interactive: true, input: "n\n", want: false, prompted: true},
		{name: "empty answer declines", interactive: true, input: "\n", want: false, prompted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, out := testPresenter(tt.input)
			c := &terminalConfirmer{presenter: p, interactive: tt.interactive, yes: tt.yes}

			ok, err := c.Confirm(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			if tt.prompted {
				assert.Contains(t, out.String(), "+new")
				assert.Contains(t, out.String(), req.Message+" [y/N]: ")
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestTerminalConfirmerShowsEachDiffWithItsPrompt(t *testing.T) {
	p, out := testPresenter("y\nn\n")
	c := &terminalConfirmer{presenter: p, interactive: true}

	paths := []string{"/a/AGENTS.md", "/b/AGENTS.md"}
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			_, err := c.Confirm(context.Background(), writer.ConfirmRequest{
				Action:  writer.ActionOverwrite,
				Path:    path,
				Message: "Overwrite " + path + "?",
				Diff:    "+DIFF-" + string(rune('A'+i)) + "\n",
			})
			assert.NoError(t, err)
		}(i, path)
	}
	wg.Wait()

	screen := out.String()
	assert.Contains(t, screen, "/a/AGENTS.md\n------------\n+DIFF-A\nOverwrite /a/AGENTS.md? [y/N]: ")
	assert.Contains(t, screen, "/b/AGENTS.md\n------------\n+DIFF-B\nOverwrite /b/AGENTS.md? [y/N]: ")
}

func TestTerminalConfirmerCancelled(t *testing.T) {
	p, _ := testPresenter("y\n")
	c := &terminalConfirmer{presenter: p, interactive: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := c.Confirm(ctx, writer.ConfirmRequest{Message: "Commit?"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLanguageChooser(t *testing.T) {
	p, _ := testPresenter("")

	chooser, err := languageChooser([]string{"ts,py"}, p, false)
	require.NoError(t, err)
	langs, err := chooser.ChooseLanguages(context.Background(), "/work/notes")
	require.NoError(t, err)
	assert.Equal(t, []guide.LanguageTag{guide.LanguagePython, guide.LanguageTypeScript}, langs)

	_, err = languageChooser([]string{"cobol"}, p, false)
	assert.Error(t, err)

	chooser, err = languageChooser(nil, p, false)
	require.NoError(t, err)
	assert.Nil(t, chooser)

	chooser, err = languageChooser(nil, p, true)
	require.NoError(t, err)
	assert.IsType(t, &promptChooser{}, chooser)
}

func TestPromptChooser(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []guide.LanguageTag
	}{
		{name: "answer", input: "rust\n", want: []guide.LanguageTag{guide.LanguageRust}},
		{name: "retry after unknown language", input: "cobol\ngo\n", want: []guide.LanguageTag{guide.LanguageGo}},
		{name: "empty skips", input: "\n", want: nil},
		{name: "gives up after three tries", input: "a\nb\nc\ngo\n", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := testPresenter(tt.input)
			c := &promptChooser{presenter: p}
			langs, err := c.ChooseLanguages(context.Background(), "/work/notes")
			require.NoError(t, err)
			assert.Equal(t, tt.want, langs)
		})
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "guidesync.yaml")

	written, err := writeDefaultConfig(path, "https://example.com/guidelines", false)
	require.NoError(t, err)
	assert.True(t, written)

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/guidelines", cfg.Source)
	assert.Equal(t, config.Default().Fetch.Timeout, cfg.Fetch.Timeout)
	assert.Equal(t, "AGENTS.md", cfg.Output.Primary)
	assert.Equal(t, "languages/typescript.md", cfg.Documents.Languages["typescript"].Guideline)

	require.NoError(t, os.WriteFile(path, []byte("source: keep\n"), 0o644))
	written, err = writeDefaultConfig(path, "other", false)
	require.NoError(t, err)
	assert.False(t, written)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "source: keep\n", string(data))

	written, err = writeDefaultConfig(path, "other", true)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestLocalSource(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "base.md")
	require.NoError(t, os.WriteFile(file, []byte("# Base\n"), 0o644))

	got, err := localSource(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	got, err = localSource("file://" + dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = localSource("https://example.com/guidelines")
	assert.ErrorContains(t, err, "local guideline source")

	_, err = localSource(file)
	assert.ErrorContains(t, err, "not a directory")

	_, err = localSource(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestDebounceCoalescesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan fsnotify.Event)
	output := debounce(ctx, input, 50*time.Millisecond)

	for i := 0; i < 5; i++ {
		input <- fsnotify.Event{Name: "base.md", Op: fsnotify.Write}
	}

	select {
	case <-output:
	case <-time.After(2 * time.Second):
		t.Fatal("no debounced event")
	}
	select {
	case <-output:
		t.Fatal("burst produced more than one event")
	case <-time.After(200 * time.Millisecond):
	}

	close(input)
	select {
	case _, ok := <-output:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("output not closed")
	}
}

func TestWatchSourceTriggersOnChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- watchSource(ctx, dir, 20*time.Millisecond, func(context.Context) { changed <- struct{}{} })
	}()

	// the watcher is registered asynchronously
	deadline := time.After(5 * time.Second)
	for triggered := false; !triggered; {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "base.md"), []byte(time.Now().String()), 0o644))
		select {
		case <-changed:
			triggered = true
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("no change observed")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWriteDetectionJSON(t *testing.T) {
	var buf bytes.Buffer
	err := writeDetectionJSON(&buf, detector.Detection{
		Root: "/work",
		Projects: []guide.ProjectDescriptor{
			guide.NewProjectDescriptor("/work/web", []guide.LanguageTag{guide.LanguageTypeScript}, guide.MaturityNew, "package.json"),
		},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/work", decoded["root"])
	assert.Equal(t, []any{}, decoded["undetermined"])
	projects := decoded["projects"].([]any)
	require.Len(t, projects, 1)
	project := projects[0].(map[string]any)
	assert.Equal(t, "/work/web", project["path"])
	assert.Equal(t, "new", project["maturity"])
	assert.Equal(t, []any{"typescript"}, project["languages"])
	assert.Equal(t, []any{"package.json"}, project["markers"])
}

func TestBindFlags(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Reset()
	config.SetDefaults(viper.GetViper())

	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	addDetectFlags(cmd)
	addOutputFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--max-depth", "5", "--no-backup", "--primary", "GUIDE.md"}))

	require.NoError(t, bindFlags(cmd))
	assert.Equal(t, 5, viper.GetInt("detect.max_depth"))
	assert.Equal(t, "GUIDE.md", viper.GetString("output.primary"))
	assert.False(t, viper.GetBool("output.backup"))
	assert.Equal(t, "CLAUDE.md", viper.GetString("output.secondary"))
	assert.Equal(t, config.DefaultExcludes, viper.GetStringSlice("detect.exclude"))

	opts := syncOptionsFromFlags(cmd)
	assert.False(t, opts.Commit)
	assert.Empty(t, opts.Languages)
}

func TestRootArg(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	got, err := rootArg(nil)
	require.NoError(t, err)
	assert.Equal(t, wd, got)

	got, err = rootArg([]string{"sub"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "sub"), got)
}
