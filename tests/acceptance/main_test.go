package acceptance

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var binary string

// TestMain locates the built binary. Build it with
// `go build -o bin/guidesync ./cmd/guidesync`; without it the
// acceptance tests are skipped.
func TestMain(m *testing.M) {
	path, err := filepath.Abs("../../bin/guidesync")
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			binary = path
		}
	}
	if binary == "" {
		fmt.Println("skipping acceptance tests: ../../bin/guidesync not built")
	}
	os.Exit(m.Run())
}

func requireBinary(t *testing.T) {
	t.Helper()
	if binary == "" {
		t.Skip("guidesync binary not built")
	}
}

// runGuidesync runs the binary in dir with a clean environment and returns
// its combined output and exit code.
func runGuidesync(t *testing.T, dir string, args ...string) (string, int) {
	t.Helper()
	requireBinary(t)

	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	cmd.Env = []string{
		"HOME=" + t.TempDir(),
		"PATH=" + os.Getenv("PATH"),
		"NO_COLOR=1",
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exit *exec.ExitError
		require.ErrorAs(t, err, &exit, "guidesync did not run: %s", out)
		return string(out), exit.ExitCode()
	}
	return string(out), 0
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}
