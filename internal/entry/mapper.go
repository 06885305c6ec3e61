package entry

import (
	"path/filepath"
	"strings"
)

// Mapper turns source paths into output paths. It holds no state besides its
// configuration, so a build and a later deletion always agree on a path.
type Mapper struct {
	SourceRoots     []string
	OutputRoot      string
	OutputExtension string
}

// NewMapper returns the mapper matching r.
func NewMapper(r Rule) Mapper {
	return Mapper{
		SourceRoots:     r.SourceRoots,
		OutputRoot:      r.OutputRoot,
		OutputExtension: r.OutputExtension,
	}
}

// ToOutputPath maps src below the output root. File extensions of one to four
// characters are replaced by the output extension; directories and other
// names are kept as is.
func (m Mapper) ToOutputPath(src string, isDir bool) string {
	rel := filepath.Base(src)
	if _, r, ok := (Rule{SourceRoots: m.SourceRoots}).RootOf(src); ok {
		rel = r
	}
	if rel == "." {
		return filepath.Clean(m.OutputRoot)
	}

	dir, base := filepath.Split(rel)
	if !isDir {
		ext := filepath.Ext(base)
		if n := len(ext) - 1; n >= 1 && n <= 4 && m.OutputExtension != "" {
			base = strings.TrimSuffix(base, ext) + NormalizeExt(m.OutputExtension)
		}
	}

	return filepath.Join(m.OutputRoot, dir, base)
}

// ToKeyPath returns the output path of a logical key.
func (m Mapper) ToKeyPath(key string) string {
	return filepath.Join(m.OutputRoot, filepath.FromSlash(key)+NormalizeExt(m.OutputExtension))
}
