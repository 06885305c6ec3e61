package entry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrKeyCollision is returned when two source files resolve to the same
// logical key.
var ErrKeyCollision = errors.New("entry point key collision")

// CollisionError names the files sharing a key.
type CollisionError struct {
	Key   string
	Files []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("entry point %q is produced by both %s", e.Key, strings.Join(e.Files, " and "))
}

func (e *CollisionError) Unwrap() error {
	return ErrKeyCollision
}

// Set maps logical keys to source file paths.
type Set map[string]string

// Keys returns the keys in lexical order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Contains reports whether path is the source of one of the entries.
func (s Set) Contains(path string) bool {
	_, ok := s.KeyOf(path)
	return ok
}

// KeyOf returns the key whose source is path.
func (s Set) KeyOf(path string) (string, bool) {
	path = filepath.Clean(path)
	for k, v := range s {
		if filepath.Clean(v) == path {
			return k, true
		}
	}
	return "", false
}

// Under returns the keys of entries whose source lies below dir.
func (s Set) Under(dir string) []string {
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	var keys []string
	for k, v := range s {
		if strings.HasPrefix(filepath.Clean(v), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Key computes the logical key of a root-relative path.
func Key(rel string) string {
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

// Resolve walks every source root and returns the entry points allowed by r.
// A missing root contributes nothing.
func Resolve(r Rule) (Set, error) {
	out := Set{}

	for _, root := range r.SourceRoots {
		if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}

			if d.IsDir() {
				if r.IsExcludedDir(d.Name()) || r.IsIgnored(rel) {
					return fs.SkipDir
				}
				return nil
			}

			if !r.Includes(filepath.Ext(d.Name())) || r.IsExcludedFile(d.Name()) || r.IsIgnored(rel) {
				return nil
			}

			key := Key(rel)
			if prev, ok := out[key]; ok {
				return &CollisionError{Key: key, Files: []string{prev, path}}
			}
			out[key] = path
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}
