package builder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/toastate/toastbuild/internal/beautify"
	"github.com/toastate/toastbuild/internal/tlogger"
)

const artifactCacheSize = 4096

// ArtifactWriter writes build outputs. It creates parent directories and
// skips writes whose content hash matches what it last wrote to the same
// path.
type ArtifactWriter struct {
	beautifier beautify.Beautifier
	hashes     *lru.Cache[string, uint64]
	log        *tlogger.Logger
}

// NewArtifactWriter returns a writer formatting through b.
func NewArtifactWriter(b beautify.Beautifier, lg *tlogger.Logger) *ArtifactWriter {
	if b == nil {
		b = beautify.NoOp{}
	}
	hashes, _ := lru.New[string, uint64](artifactCacheSize)
	return &ArtifactWriter{beautifier: b, hashes: hashes, log: lg}
}

// Write stores data at path as is.
func (w *ArtifactWriter) Write(path string, data []byte) error {
	_, err := w.write(path, data)
	return err
}

// WriteFormatted runs data through the beautifier before writing it.
func (w *ArtifactWriter) WriteFormatted(path string, data []byte) error {
	out, err := w.beautifier.Beautify(path, beautify.MediaType(path), data)
	if err != nil {
		return err
	}
	_, err = w.write(path, out)
	return err
}

// Indent returns the indentation configured for path.
func (w *ArtifactWriter) Indent(path string) string {
	if f, ok := w.beautifier.(*beautify.Formatter); ok {
		return f.StyleFor(path).Indent
	}
	return "  "
}

func (w *ArtifactWriter) write(path string, data []byte) (bool, error) {
	sum := xxhash.Sum64(data)
	if prev, ok := w.hashes.Get(path); ok && prev == sum {
		if _, err := os.Stat(path); err == nil {
			w.log.Debug("msg", "artifact unchanged", "file", path)
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("create output folder: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		w.hashes.Remove(path)
		return false, fmt.Errorf("write %s: %w", path, err)
	}

	w.hashes.Add(path, sum)
	return true, nil
}

// Copy copies src to dst verbatim.
func (w *ArtifactWriter) Copy(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}
	w.hashes.Remove(dst)
	_, err := copyFile(src, dst)
	return err
}

// Remove deletes an artifact and its source map. Missing files are fine.
func (w *ArtifactWriter) Remove(path string) error {
	w.hashes.Remove(path)
	w.hashes.Remove(path + ".map")

	for _, p := range []string{path, path + ".map"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// RemoveAll deletes an output directory and forgets everything below it.
func (w *ArtifactWriter) RemoveAll(dir string) error {
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	for _, k := range w.hashes.Keys() {
		if strings.HasPrefix(k, prefix) {
			w.hashes.Remove(k)
		}
	}
	return removeAllRetry(dir)
}

// Reset forgets every hash, used after the output root is wiped.
func (w *ArtifactWriter) Reset() {
	w.hashes.Purge()
}

// removeAllRetry retries a failing RemoveAll twice, which is usually enough
// for editors or servers briefly holding a file open.
func removeAllRetry(dir string) error {
	err := os.RemoveAll(dir)
	for i := 0; err != nil && i < 2; i++ {
		<-time.After(time.Millisecond * 20)
		err = os.RemoveAll(dir)
	}
	return err
}
