package acceptance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guidelineSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"base.md":                 "# Base\n\nWrite tests.\n",
		"languages/typescript.md": "---\ntitle: TypeScript\nversion: 2\n---\nUse strict mode.\n",
		"setup/typescript.md":     "# TypeScript setup\n\nRun npm init.\n",
	})
	return dir
}

func TestSyncWritesGuidelines(t *testing.T) {
	source := guidelineSource(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"web/package.json": `{"devDependencies":{"typescript":"^5.4.0"}}`,
		"web/src/index.ts": "export const add = (a: number, b: number): number => a + b\n\nexport const sub = (a: number, b: number): number => a - b\n",
		"notes/README.md":  "# Notes\n",
	})

	out, code := runGuidesync(t, root, "sync", "--source", source)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Created (1)")
	assert.Contains(t, out, "Language undetermined")

	body, err := os.ReadFile(filepath.Join(root, "web", "AGENTS.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "<!-- guidesync:generated -->\n# Coding Guidelines\n"))
	assert.Contains(t, string(body), "## TypeScript")
	assert.Contains(t, string(body), "## Project-Specific Guidelines")

	target, err := os.Readlink(filepath.Join(root, "web", "CLAUDE.md"))
	require.NoError(t, err)
	assert.Equal(t, "AGENTS.md", target)
	assert.NoFileExists(t, filepath.Join(root, "notes", "AGENTS.md"))

	// custom section survives, and an unchanged run writes nothing
	custom := strings.Replace(string(body),
		"<!-- Add project-specific guidelines here. This section is preserved across syncs. -->",
		"Use pnpm.", 1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "web", "AGENTS.md"), []byte(custom), 0o644))

	out, code = runGuidesync(t, root, "sync", "--source", source)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Unchanged (1)")
	again, err := os.ReadFile(filepath.Join(root, "web", "AGENTS.md"))
	require.NoError(t, err)
	assert.Equal(t, custom, string(again))
}

func TestSyncChosenLanguage(t *testing.T) {
	source := guidelineSource(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"README.md": "# Empty\n"})

	out, code := runGuidesync(t, root, "sync", "--source", source, "--language", "ts")
	require.Equal(t, 0, code, out)

	body, err := os.ReadFile(filepath.Join(root, "AGENTS.md"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "Run npm init.")
}

func TestSyncFailsWithoutBase(t *testing.T) {
	source := t.TempDir()
	root := t.TempDir()
	writeTree(t, root, map[string]string{"go.mod": "module example.com/app\n"})

	out, code := runGuidesync(t, root, "sync", "--source", source)
	assert.Equal(t, 1, code, out)
	assert.Contains(t, out, "Failed (1)")
	assert.NoFileExists(t, filepath.Join(root, "AGENTS.md"))
}

func TestSyncDeclinesOverwriteWithoutTerminal(t *testing.T) {
	source := guidelineSource(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":    "module example.com/app\n",
		"AGENTS.md": "# Hand written\n",
	})

	out, code := runGuidesync(t, root, "sync", "--source", source)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Skipped (1)")
	body, err := os.ReadFile(filepath.Join(root, "AGENTS.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Hand written\n", string(body))

	out, code = runGuidesync(t, root, "sync", "--source", source, "--yes")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Updated (1)")
}

func TestSyncRequiresSource(t *testing.T) {
	out, code := runGuidesync(t, t.TempDir(), "sync")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "no guideline source configured")
}

func TestDetectJSON(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"api/pyproject.toml": "[project]\nname = \"api\"\n",
		"cli/Cargo.toml":     "[package]\nname = \"cli\"\n",
		"docs/index.md":      "# Docs\n",
	})

	out, code := runGuidesync(t, root, "detect", "--json")
	require.Equal(t, 0, code, out)

	var detection struct {
		Projects []struct {
			Path      string   `json:"path"`
			Languages []string `json:"languages"`
		} `json:"projects"`
		Undetermined []string `json:"undetermined"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &detection), out)
	require.Len(t, detection.Projects, 2)
	assert.Equal(t, []string{"python"}, detection.Projects[0].Languages)
	assert.Equal(t, []string{"rust"}, detection.Projects[1].Languages)
	require.Len(t, detection.Undetermined, 1)
	assert.Equal(t, "docs", filepath.Base(detection.Undetermined[0]))
}

func TestDetectAppliesProfile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"services/api/pyproject.toml": "[project]\nname = \"api\"\n",
		"tools/go.mod":                "module tools\n",
		"guidesync.yaml": `profiles:
  no-services:
    detect:
      exclude: ["services"]
`,
	})

	out, code := runGuidesync(t, root, "detect", "--json", "--profile", "no-services")
	require.Equal(t, 0, code, out)

	var detection struct {
		Projects []struct {
			Path      string   `json:"path"`
			Languages []string `json:"languages"`
		} `json:"projects"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &detection), out)
	require.Len(t, detection.Projects, 1)
	assert.Equal(t, []string{"go"}, detection.Projects[0].Languages)
}

func TestPlan(t *testing.T) {
	source := guidelineSource(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"tsconfig.json": "{}"})

	out, code := runGuidesync(t, root, "plan", "--source", source)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "1. base guidelines")
	assert.Contains(t, out, "2. TypeScript setup prompt")
	assert.Contains(t, out, "3. TypeScript guidelines")
	assert.NoFileExists(t, filepath.Join(root, "AGENTS.md"))
}

func TestInit(t *testing.T) {
	dir := t.TempDir()

	out, code := runGuidesync(t, dir, "init", "--source", "https://example.com/guidelines")
	require.Equal(t, 0, code, out)
	data, err := os.ReadFile(filepath.Join(dir, "guidesync.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "source: https://example.com/guidelines")

	out, code = runGuidesync(t, dir, "init")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "already exists")
}
