package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/toastate/toastbuild/internal/helpers"
)

// SnippetOptions is the snippet compile_option.
type SnippetOptions struct {
	// Extension of the generated files, code-snippets is what the editor
	// picks up from a project .vscode folder.
	Extension string `json:"extension"`
	// Scope applies to snippets whose code block names no language.
	Scope string `json:"scope"`
}

// Snippet is one editor snippet.
type Snippet struct {
	Prefix      string   `json:"prefix"`
	Body        []string `json:"body"`
	Description string   `json:"description,omitempty"`
	Scope       string   `json:"scope,omitempty"`
}

// SnippetCompiler turns markdown cheatsheets into editor snippet files. Each
// heading followed by a fenced code block is a snippet: the first code span
// of the heading is its prefix, the rest of the heading its name, the
// paragraphs in between its description.
type SnippetCompiler struct {
	env  *Env
	opts SnippetOptions
	md   goldmark.Markdown
}

func NewSnippetCompiler(env *Env, raw json.RawMessage) (*SnippetCompiler, error) {
	sc := &SnippetCompiler{env: env, opts: SnippetOptions{Extension: "code-snippets"}, md: goldmark.New()}
	if err := decodeOptions(raw, &sc.opts); err != nil {
		return nil, err
	}
	sc.opts.Extension = strings.TrimLeft(sc.opts.Extension, ".")
	env.Log.Debug("msg", "init", "extension", sc.opts.Extension)
	return sc, nil
}

func (sc *SnippetCompiler) Name() string { return "snippet" }

func (sc *SnippetCompiler) OutputExtension() string { return sc.opts.Extension }

func (sc *SnippetCompiler) CompileFile(ctx context.Context, src, dst string) error {
	f, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	snippets, err := sc.Parse(src, replaceWindowsCarriageReturn(f))
	if err != nil {
		return err
	}
	if len(snippets) == 0 {
		sc.env.Log.Warn("msg", "No snippet found", "file", src)
	}

	out, err := helpers.MarshalJsonIndent(snippets, sc.env.Writer.Indent(dst))
	if err != nil {
		return err
	}
	return sc.env.Writer.WriteFormatted(dst, out)
}

// Parse extracts the snippets of a cheatsheet, keyed by name.
func (sc *SnippetCompiler) Parse(src string, source []byte) (map[string]Snippet, error) {
	doc := sc.md.Parser().Parse(text.NewReader(source))

	snippets := make(map[string]Snippet)
	var (
		name, prefix string
		description  []string
		open         bool
	)

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			name, prefix = headingParts(node, source)
			description = nil
			open = name != ""

		case *ast.Paragraph:
			if open {
				lines := blockLines(node, source)
				for i := range lines {
					lines[i] = strings.TrimSpace(lines[i])
				}
				description = append(description, strings.Join(lines, " "))
			}

		case *ast.FencedCodeBlock:
			if !open {
				continue
			}
			open = false

			if _, dup := snippets[name]; dup {
				return nil, &CompileError{Builder: sc.Name(), File: src, Messages: []string{"duplicate snippet " + name}}
			}

			scope := string(node.Language(source))
			if scope == "" {
				scope = sc.opts.Scope
			}
			body := blockLines(node, source)
			if len(body) == 0 {
				return nil, &CompileError{Builder: sc.Name(), File: src, Messages: []string{"empty snippet " + name}}
			}

			snippets[name] = Snippet{
				Prefix:      prefix,
				Body:        body,
				Description: strings.Join(description, "\n"),
				Scope:       scope,
			}
		}
	}

	return snippets, nil
}

// headingParts splits a heading into its name and its prefix.
func headingParts(h *ast.Heading, source []byte) (string, string) {
	var name, prefix bytes.Buffer
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if _, ok := c.(*ast.CodeSpan); ok {
			if prefix.Len() == 0 {
				inlineText(c, source, &prefix)
			}
			continue
		}
		inlineText(c, source, &name)
	}

	n := strings.TrimSpace(name.String())
	p := strings.TrimSpace(prefix.String())
	if n == "" {
		n = p
	}
	if p == "" {
		p = slug(n)
	}
	return n, p
}

func inlineText(n ast.Node, source []byte, buf *bytes.Buffer) {
	if t, ok := n.(*ast.Text); ok {
		buf.Write(t.Segment.Value(source))
		if t.SoftLineBreak() {
			buf.WriteByte(' ')
		}
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		inlineText(c, source, buf)
	}
}

func blockLines(n ast.Node, source []byte) []string {
	lines := n.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, strings.TrimRight(string(seg.Value(source)), "\n"))
	}
	return out
}

func slug(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
