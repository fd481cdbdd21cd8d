// Package atomicfile provides crash-safe file replacement. Content is
// written to a temporary file in the destination directory, flushed to
// stable storage, and renamed over the destination, so no reader ever
// observes a partially written file.
package atomicfile

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// InvalidateFunc is called synchronously after a successful replace, before
// Write returns. Hooking the cache's invalidation here is what gives a
// writer read-after-write consistency on its own thread.
type InvalidateFunc func(path string)

// Writer atomically replaces files and triggers cache invalidation.
type Writer struct {
	invalidate InvalidateFunc
}

// NewWriter returns a Writer. invalidate may be nil.
func NewWriter(invalidate InvalidateFunc) *Writer {
	return &Writer{invalidate: invalidate}
}

// Write atomically replaces path with data. On any failure the destination
// is left untouched and the temporary file is removed.
func (w *Writer) Write(path string, data []byte) error {
	if err := Write(path, data); err != nil {
		return err
	}
	if w.invalidate != nil {
		w.invalidate(path)
	}
	return nil
}

// WriteText is Write for string content.
func (w *Writer) WriteText(path, content string) error {
	return w.Write(path, []byte(content))
}

// Write atomically replaces path with data without an invalidation hook.
func Write(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrapf(err, "atomicfile: create temp for %s", path)
	}

	// The temp file must not survive any exit path short of the rename.
	renamed := false
	defer func() {
		if !renamed {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return errors.Wrapf(err, "atomicfile: write %s", path)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "atomicfile: sync %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "atomicfile: close %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "atomicfile: rename %s", path)
	}
	renamed = true
	return nil
}
