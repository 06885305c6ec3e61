package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/toastate/toastbuild/internal/entry"
)

var PageImportRegexp = regexp.MustCompile(`(?m)<!--\s*#import\s+(\S+)\s*-->`)

// PageOptions is the page compile_option.
type PageOptions struct {
	VarsFile   string `json:"vars_file"`
	CopyAssets *bool  `json:"copy_assets"`
	Env        bool   `json:"env"`
}

// PageCompiler renders html templates. Includes use <!-- #import path -->,
// template actions use <!--# ... --> and read the variables files found from
// the source root down to the page. Broken pages render an error page.
type PageCompiler struct {
	env  *Env
	opts PageOptions
}

func NewPageCompiler(env *Env, raw json.RawMessage) (*PageCompiler, error) {
	pc := &PageCompiler{env: env, opts: PageOptions{VarsFile: "vars.json"}}
	if err := decodeOptions(raw, &pc.opts); err != nil {
		return nil, err
	}
	env.Log.Debug("msg", "init", "vars_file", pc.opts.VarsFile)
	return pc, nil
}

func (pc *PageCompiler) Name() string { return "page" }

func (pc *PageCompiler) OutputExtension() string { return "html" }

func (pc *PageCompiler) IsSpecialFile(path string) bool {
	return pc.opts.VarsFile != "" && filepath.Base(path) == pc.opts.VarsFile
}

func (pc *PageCompiler) CopyAssets() bool {
	return pc.opts.CopyAssets == nil || *pc.opts.CopyAssets
}

func (pc *PageCompiler) CompileFile(ctx context.Context, src, dst string) error {
	out, err := pc.render(src)
	if err != nil {
		ce, ok := err.(*CompileError)
		if !ok {
			return err
		}
		pc.env.Log.Error("msg", "templater", "file", src, "err", ce)
		return pc.env.Writer.Write(dst, pagePlaceholder(ce))
	}
	return pc.env.Writer.WriteFormatted(dst, out)
}

// PathData returns the template data of the page at src.
func (pc *PageCompiler) PathData(src string) (map[string]interface{}, error) {
	root, rel, ok := pc.env.Rule.RootOf(src)
	if !ok {
		root, rel = filepath.Dir(src), filepath.Base(src)
	}

	data, err := loadVars(root, filepath.Dir(src), pc.opts.VarsFile)
	if err != nil {
		return nil, err
	}
	if pc.opts.Env {
		data["env"] = environ()
	}

	key := entry.Key(rel)
	data["page"] = map[string]interface{}{
		"key":  key,
		"path": "/" + strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel)) + ".html",
	}
	return data, nil
}

func (pc *PageCompiler) render(src string) ([]byte, error) {
	f, err := pc.processAsByte(src, 0)
	if err != nil {
		return nil, err
	}

	t, err := template.New(filepath.Base(src)).Delims(`<!--#`, `-->`).Parse(string(f))
	if err != nil {
		return nil, &CompileError{Builder: pc.Name(), File: src, Err: err}
	}

	data, err := pc.PathData(src)
	if err != nil {
		return nil, &CompileError{Builder: pc.Name(), File: src, Err: err}
	}

	buf := &bytes.Buffer{}
	if err := t.Execute(buf, data); err != nil {
		return nil, &CompileError{Builder: pc.Name(), File: src, Err: err}
	}
	return buf.Bytes(), nil
}

func (pc *PageCompiler) processAsByte(path string, depth int) ([]byte, error) {
	if depth > maxImportDepth {
		return nil, &CompileError{Builder: pc.Name(), File: path, Messages: []string{"reached max recursion depth of 5, import loop ?"}}
	}

	f, err := os.ReadFile(path)
	if err != nil {
		if depth == 0 {
			return nil, err
		}
		return nil, &CompileError{Builder: pc.Name(), File: path, Err: err}
	}

	f = replaceWindowsCarriageReturn(f)

	var importErr error
	f = PageImportRegexp.ReplaceAllFunc(f, func(match []byte) []byte {
		if importErr != nil {
			return match
		}

		ref := string(PageImportRegexp.FindSubmatch(match)[1])
		p, ok := findInclude(path, ref, pc.env.Rule.SourceRoots, pc.env.Rule.IncludeExtensions, "")
		if !ok {
			importErr = &CompileError{Builder: pc.Name(), File: path, Messages: []string{"cannot find import " + strconv.Quote(ref)}}
			return match
		}

		c, err := pc.processAsByte(p, depth+1)
		if err != nil {
			importErr = err
			return match
		}
		return bytes.TrimRight(c, "\n")
	})
	if importErr != nil {
		return nil, importErr
	}

	return f, nil
}

func pagePlaceholder(ce *CompileError) []byte {
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Build error</title></head>
<body style="font:14px/1.4 monospace;color:#fff;background:#c0392b;padding:1em">
<h1>Build error</h1>
<p>%s</p>
<pre>%s</pre>
</body>
</html>
`, html.EscapeString(ce.File), html.EscapeString(ce.Detail())))
}
