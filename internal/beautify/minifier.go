// Package beautify post-processes generated artifacts: line ending and
// whitespace normalization driven by .editorconfig, or minification.
package beautify

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/editorconfig/editorconfig-core-go/v2"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/json"

	"github.com/toastate/toastbuild/pkg/config"
)

var jsMediatype = regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$")

// Beautifier formats an artifact before it is written.
type Beautifier interface {
	Beautify(path, mediatype string, in []byte) ([]byte, error)
}

// Style is the resolved formatting of one output file.
type Style struct {
	Indent                 string
	EndOfLine              string
	InsertFinalNewline     bool
	TrimTrailingWhitespace bool
}

// Formatter implements Beautifier from BeautifyOptions and .editorconfig.
type Formatter struct {
	opts     config.BeautifyOptions
	minifier *minify.M
}

// NoOp leaves every artifact untouched.
type NoOp struct{}

func (NoOp) Beautify(_, _ string, in []byte) ([]byte, error) {
	return in, nil
}

// New returns the beautifier described by opts. A nil or disabled opts gives
// NoOp.
func New(opts *config.BeautifyOptions) Beautifier {
	if opts == nil || !config.BoolValue(opts.Enabled, false) {
		return NoOp{}
	}

	minifier := minify.New()
	minifier.AddFunc("text/css", css.Minify)
	minifier.Add("text/html", &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
	})
	minifier.AddFuncRegexp(jsMediatype, js.Minify)
	minifier.AddFunc("application/json", json.Minify)

	return &Formatter{opts: *opts, minifier: minifier}
}

// MediaType guesses the media type of an artifact from its extension.
func MediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".css":
		return "text/css"
	case ".html", ".htm":
		return "text/html"
	case ".js", ".mjs", ".cjs":
		return "application/javascript"
	case ".json", ".code-snippets", ".map":
		return "application/json"
	}
	return "text/plain"
}

func (f *Formatter) Beautify(path, mediatype string, in []byte) ([]byte, error) {
	if config.BoolValue(f.opts.Minify, false) && mediatype != "text/plain" {
		out, err := f.minifier.Bytes(mediatype, in)
		if err != nil {
			return nil, fmt.Errorf("minify %s: %w", path, err)
		}
		return out, nil
	}

	return Apply(f.StyleFor(path), in), nil
}

// StyleFor merges explicit options over the .editorconfig of path.
func (f *Formatter) StyleFor(path string) Style {
	st := Style{
		Indent:             "  ",
		EndOfLine:          "\n",
		InsertFinalNewline: true,
	}

	if config.BoolValue(f.opts.EditorConfig, true) {
		if def, err := editorconfig.GetDefinitionForFilename(path); err == nil && def != nil {
			st = mergeDefinition(st, def)
		}
	}

	o := f.opts
	size := len(st.Indent)
	if st.Indent == "\t" {
		size = 2
	}
	if o.IndentSize != nil {
		size = *o.IndentSize
	}
	if o.IndentStyle != nil {
		if *o.IndentStyle == "tab" {
			st.Indent = "\t"
		} else {
			st.Indent = strings.Repeat(" ", size)
		}
	} else if o.IndentSize != nil && st.Indent != "\t" {
		st.Indent = strings.Repeat(" ", size)
	}
	if o.EndOfLine != nil {
		st.EndOfLine = eol(*o.EndOfLine)
	}
	if o.InsertFinalNewline != nil {
		st.InsertFinalNewline = *o.InsertFinalNewline
	}
	if o.TrimTrailingWhitespace != nil {
		st.TrimTrailingWhitespace = *o.TrimTrailingWhitespace
	}

	return st
}

func mergeDefinition(st Style, def *editorconfig.Definition) Style {
	switch def.IndentStyle {
	case editorconfig.IndentStyleTab:
		st.Indent = "\t"
	case editorconfig.IndentStyleSpaces:
		n := 2
		fmt.Sscanf(def.IndentSize, "%d", &n)
		st.Indent = strings.Repeat(" ", n)
	}
	if def.EndOfLine != "" {
		st.EndOfLine = eol(def.EndOfLine)
	}
	if def.InsertFinalNewline != nil {
		st.InsertFinalNewline = *def.InsertFinalNewline
	}
	if def.TrimTrailingWhitespace != nil {
		st.TrimTrailingWhitespace = *def.TrimTrailingWhitespace
	}
	return st
}

func eol(v string) string {
	switch strings.ToLower(v) {
	case "crlf":
		return "\r\n"
	case "cr":
		return "\r"
	}
	return "\n"
}

var windowCRregexp = regexp.MustCompile(`\r\n?`)

// Apply rewrites in according to st.
func Apply(st Style, in []byte) []byte {
	in = windowCRregexp.ReplaceAll(in, []byte("\n"))

	lines := bytes.Split(in, []byte("\n"))
	if st.TrimTrailingWhitespace {
		for i, l := range lines {
			lines[i] = bytes.TrimRight(l, " \t")
		}
	}

	// drop the empty element produced by a trailing newline
	for len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}

	out := bytes.Join(lines, []byte(st.EndOfLine))
	if st.InsertFinalNewline && len(out) > 0 {
		out = append(out, st.EndOfLine...)
	}
	return out
}
