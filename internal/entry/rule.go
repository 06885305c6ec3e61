// Package entry discovers build entry points in a source tree and maps them
// to their output locations.
package entry

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is the immutable inclusion/exclusion configuration of one builder.
type Rule struct {
	SourceRoots []string
	OutputRoot  string

	IncludeExtensions []string
	WatchExtensions   []string

	ExcludeFilePrefix string
	ExcludeFileSuffix string

	ExcludeDirPrefix string
	ExcludeDirSuffix string
	ExcludeDirNames  []string

	// IgnoreGlobs are doublestar patterns matched against root-relative
	// slash paths.
	IgnoreGlobs []string

	OutputExtension string
}

// NormalizeExt returns ext with exactly one leading dot.
func NormalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ""
	}
	return "." + strings.TrimLeft(ext, ".")
}

func stripExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// IsExcludedFile reports whether a file name, extension stripped, matches
// the file prefix or suffix rule.
func (r Rule) IsExcludedFile(name string) bool {
	base := stripExt(name)
	if r.ExcludeFilePrefix != "" && strings.HasPrefix(base, r.ExcludeFilePrefix) {
		return true
	}
	if r.ExcludeFileSuffix != "" && strings.HasSuffix(base, r.ExcludeFileSuffix) {
		return true
	}
	return false
}

// IsExcludedDir reports whether a directory name matches the directory rules.
func (r Rule) IsExcludedDir(name string) bool {
	if r.ExcludeDirPrefix != "" && strings.HasPrefix(name, r.ExcludeDirPrefix) {
		return true
	}
	if r.ExcludeDirSuffix != "" && strings.HasSuffix(name, r.ExcludeDirSuffix) {
		return true
	}
	for _, n := range r.ExcludeDirNames {
		if n == name {
			return true
		}
	}
	return false
}

// IsIgnored reports whether the root-relative path rel matches an ignore glob.
func (r Rule) IsIgnored(rel string) bool {
	if len(r.IgnoreGlobs) == 0 {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range r.IgnoreGlobs {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
		// "**/.git/**" should also prune the ".git" directory itself
		if strings.HasSuffix(pat, "/**") {
			if ok, err := doublestar.Match(strings.TrimSuffix(pat, "/**"), rel); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// Includes reports whether ext (with dot) is an entry point extension.
func (r Rule) Includes(ext string) bool {
	return containsExt(r.IncludeExtensions, ext)
}

// Watches reports whether ext is either an entry point or a watched module
// extension.
func (r Rule) Watches(ext string) bool {
	return containsExt(r.IncludeExtensions, ext) || containsExt(r.WatchExtensions, ext)
}

func containsExt(list []string, ext string) bool {
	ext = NormalizeExt(ext)
	if ext == "" {
		return false
	}
	for _, e := range list {
		if strings.EqualFold(NormalizeExt(e), ext) {
			return true
		}
	}
	return false
}

// RootOf returns the source root containing path and path relative to it.
// ok is false when path is outside every root.
func (r Rule) RootOf(path string) (root, rel string, ok bool) {
	for _, root := range r.SourceRoots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return root, rel, true
	}
	return "", "", false
}

// IsRoot reports whether dir is one of the source roots.
func (r Rule) IsRoot(dir string) bool {
	dir = filepath.Clean(dir)
	for _, root := range r.SourceRoots {
		if filepath.Clean(root) == dir {
			return true
		}
	}
	return false
}

// IsUnderExcludedDir reports whether any directory between the containing
// root and path is excluded or ignored.
func (r Rule) IsUnderExcludedDir(path string) bool {
	_, rel, ok := r.RootOf(path)
	if !ok {
		return false
	}
	parts := strings.Split(filepath.Dir(rel), string(filepath.Separator))
	for i, p := range parts {
		if p == "." {
			continue
		}
		if r.IsExcludedDir(p) || r.IsIgnored(filepath.Join(parts[:i+1]...)) {
			return true
		}
	}
	return false
}
