package fetcher

import (
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

func readFileURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", permanentErr(guide.FetchInvalid, "malformed file URL %q: %v", rawURL, err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", permanentErr(guide.FetchInvalid, "file URL %q names a remote host", rawURL)
	}
	return readFile(filepath.FromSlash(u.Path))
}

// readFile reads a local document. Local reads are not retried: a missing
// file will not appear on its own.
func readFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", permanentErr(guide.FetchNotFound, "no such file %s", path)
		}
		return "", permanentErr(guide.FetchUnreachable, "failed to open %s: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", permanentErr(guide.FetchUnreachable, "failed to stat %s: %v", path, err)
	}
	if info.IsDir() {
		return "", permanentErr(guide.FetchInvalid, "%s is a directory", path)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxDocumentSize+1))
	if err != nil {
		return "", permanentErr(guide.FetchUnreachable, "failed to read %s: %v", path, err)
	}
	if len(data) > MaxDocumentSize {
		return "", permanentErr(guide.FetchInvalid, "document %s exceeds %d bytes", path, MaxDocumentSize)
	}
	return string(data), nil
}
