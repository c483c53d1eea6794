package writer

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

// Linker creates symbolic links. Supported probes whether links can be
// created in a directory; the answer may differ per filesystem.
type Linker interface {
	Supported(dir string) bool
	Symlink(target, link string) error
}

// OSLinker creates real symlinks and caches its capability probe per
// directory.
type OSLinker struct {
	probes sync.Map
}

// Supported creates and removes a throwaway link in dir.
func (l *OSLinker) Supported(dir string) bool {
	if v, ok := l.probes.Load(dir); ok {
		return v.(bool)
	}

	probe := filepath.Join(dir, ".guidesync-link-probe-"+uuid.NewString())
	err := os.Symlink("guidesync-probe-target", probe)
	if err == nil {
		_ = os.Remove(probe)
	}
	supported := err == nil
	l.probes.Store(dir, supported)
	return supported
}

// Symlink creates link pointing at target. Environments that refuse links
// yield an error matching guide.ErrLinkUnsupported.
func (l *OSLinker) Symlink(target, link string) error {
	if err := os.Symlink(target, link); err != nil {
		if isLinkUnsupported(err) {
			return errors.Wrapf(guide.ErrLinkUnsupported, "%s: %v", link, err)
		}
		return errors.Wrapf(err, "failed to link %s", link)
	}
	return nil
}

func isLinkUnsupported(err error) bool {
	return errors.Is(err, guide.ErrLinkUnsupported) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EOPNOTSUPP) ||
		errors.Is(err, syscall.ENOSYS)
}
