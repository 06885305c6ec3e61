package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// maxImportDepth bounds include recursion, deeper chains are import loops.
const maxImportDepth = 5

var windowCRregexp = regexp.MustCompile(`\r?\n`)

func replaceWindowsCarriageReturn(b []byte) []byte {
	return windowCRregexp.ReplaceAll(b, []byte("\n"))
}

func copyFile(src, dst string) (int64, error) {
	sourceFileStat, err := os.Stat(src)
	if err != nil {
		return 0, err
	}

	if !sourceFileStat.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", src)
	}

	source, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer destination.Close()
	return io.Copy(destination, source)
}

// decodeOptions strictly decodes a compile_option object into v.
func decodeOptions(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("compile_option: %w", err)
	}
	return nil
}

// loadVars merges the variables files found from the source root down to
// dir, deeper files overriding shallower ones.
func loadVars(root, dir, name string) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if name == "" {
		return out, nil
	}

	rel, err := filepath.Rel(root, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = "."
	}

	dirs := []string{root}
	if rel != "." {
		cur := root
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			cur = filepath.Join(cur, part)
			dirs = append(dirs, cur)
		}
	}

	for _, d := range dirs {
		varsFile := filepath.Join(d, name)
		f, err := os.Open(varsFile)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		layer := make(map[string]interface{})
		err = json.NewDecoder(f).Decode(&layer)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("can't decode vars file %s: %w", varsFile, err)
		}
		for k, v := range layer {
			out[k] = v
		}
	}

	return out, nil
}

// environ returns the process environment as a map.
func environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			out[k] = v
		}
	}
	return out
}

// findInclude resolves an include reference. Candidates are tried relative to
// the including file first, then to each root. name may omit the extension
// and the partial prefix.
func findInclude(from, ref string, roots, exts []string, partialPrefix string) (string, bool) {
	ref = filepath.FromSlash(strings.TrimPrefix(ref, "/"))
	dir, base := filepath.Split(ref)

	names := []string{base}
	if partialPrefix != "" && !strings.HasPrefix(base, partialPrefix) {
		names = append(names, partialPrefix+base)
	}

	var candidates []string
	for _, n := range names {
		if filepath.Ext(n) != "" {
			candidates = append(candidates, filepath.Join(dir, n))
		}
		for _, ext := range exts {
			candidates = append(candidates, filepath.Join(dir, n+ext))
		}
	}

	bases := append([]string{filepath.Dir(from)}, roots...)
	for _, b := range bases {
		for _, c := range candidates {
			p := filepath.Join(b, c)
			if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
				return p, true
			}
		}
	}
	return "", false
}
