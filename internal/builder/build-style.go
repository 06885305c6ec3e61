package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"
)

var StyleImportRegexp = regexp.MustCompile(`(?m)^[ \t]*@(?:import|use)[ \t]+["']([^"']+)["'][^;\n]*;[ \t]*$`)

// StyleOptions is the style compile_option.
type StyleOptions struct {
	VarsFile string `json:"vars_file"`
	// Env exposes the process environment to templates as .env.
	Env bool `json:"env"`
}

// StyleCompiler inlines local stylesheet imports and fills "{{ }}" template
// values from the variables files. Malformed sources produce a visible error
// stylesheet instead of failing the build.
type StyleCompiler struct {
	env  *Env
	opts StyleOptions
}

func NewStyleCompiler(env *Env, raw json.RawMessage) (*StyleCompiler, error) {
	sc := &StyleCompiler{env: env, opts: StyleOptions{VarsFile: "vars.json"}}
	if err := decodeOptions(raw, &sc.opts); err != nil {
		return nil, err
	}
	env.Log.Debug("msg", "init", "vars_file", sc.opts.VarsFile)
	return sc, nil
}

func (sc *StyleCompiler) Name() string { return "style" }

func (sc *StyleCompiler) OutputExtension() string { return "css" }

func (sc *StyleCompiler) IsSpecialFile(path string) bool {
	return sc.opts.VarsFile != "" && filepath.Base(path) == sc.opts.VarsFile
}

func (sc *StyleCompiler) CompileFile(ctx context.Context, src, dst string) error {
	out, err := sc.render(src)
	if err != nil {
		ce, ok := err.(*CompileError)
		if !ok {
			return err
		}
		sc.env.Log.Error("msg", "compile error", "file", src, "err", ce)
		return sc.env.Writer.Write(dst, stylePlaceholder(ce))
	}
	return sc.env.Writer.WriteFormatted(dst, out)
}

func (sc *StyleCompiler) render(src string) ([]byte, error) {
	f, err := sc.processAsByte(src, 0)
	if err != nil {
		return nil, err
	}

	root, _, ok := sc.env.Rule.RootOf(src)
	if !ok {
		root = filepath.Dir(src)
	}
	data, err := loadVars(root, filepath.Dir(src), sc.opts.VarsFile)
	if err != nil {
		return nil, &CompileError{Builder: sc.Name(), File: src, Err: err}
	}
	if sc.opts.Env {
		data["env"] = environ()
	}

	t, err := template.New(filepath.Base(src)).Delims(`"{{`, `}}"`).Option("missingkey=error").Parse(string(f))
	if err != nil {
		return nil, &CompileError{Builder: sc.Name(), File: src, Err: err}
	}

	buf := &bytes.Buffer{}
	if err := t.Execute(buf, data); err != nil {
		return nil, &CompileError{Builder: sc.Name(), File: src, Err: err}
	}
	return buf.Bytes(), nil
}

func (sc *StyleCompiler) processAsByte(path string, depth int) ([]byte, error) {
	if depth > maxImportDepth {
		return nil, &CompileError{Builder: sc.Name(), File: path, Messages: []string{"reached max import depth of 5, import loop ?"}}
	}

	f, err := os.ReadFile(path)
	if err != nil {
		if depth == 0 {
			return nil, err
		}
		return nil, &CompileError{Builder: sc.Name(), File: path, Err: err}
	}

	f = replaceWindowsCarriageReturn(f)

	var importErr error
	f = StyleImportRegexp.ReplaceAllFunc(f, func(match []byte) []byte {
		if importErr != nil {
			return match
		}

		ref := string(StyleImportRegexp.FindSubmatch(match)[1])
		// remote urls and built-in modules stay for the browser
		if strings.Contains(ref, ":") {
			return match
		}

		p, ok := findInclude(path, ref, sc.env.Rule.SourceRoots, sc.env.Rule.IncludeExtensions, sc.env.Rule.ExcludeFilePrefix)
		if !ok {
			importErr = &CompileError{Builder: sc.Name(), File: path, Messages: []string{"cannot find import " + strconv.Quote(ref)}}
			return match
		}

		c, err := sc.processAsByte(p, depth+1)
		if err != nil {
			importErr = err
			return match
		}
		if len(c) == 0 || c[len(c)-1] != '\n' {
			c = append(c, '\n')
		}
		return c
	})
	if importErr != nil {
		return nil, importErr
	}

	return f, nil
}

// stylePlaceholder renders a compile error so it shows on top of the page.
func stylePlaceholder(ce *CompileError) []byte {
	msg := fmt.Sprintf("%s\n%s", ce.File, ce.Detail())
	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\A `, "*/", "* /").Replace(msg)
	return []byte(fmt.Sprintf(`/* toastbuild error: %s */
body::before {
  content: "%s";
  display: block;
  white-space: pre-wrap;
  padding: 1em;
  color: #fff;
  background: #c0392b;
  font: 14px/1.4 monospace;
}
`, strings.ReplaceAll(msg, "*/", "* /"), quoted))
}
