package beautify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toastate/toastbuild/pkg/config"
)

func TestNewDisabledIsNoOp(t *testing.T) {
	in := []byte("a  \r\nb")

	for _, opts := range []*config.BeautifyOptions{nil, {Enabled: config.Bool(false)}} {
		out, err := New(opts).Beautify("x.css", "text/css", in)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestApply(t *testing.T) {
	st := Style{EndOfLine: "\n", InsertFinalNewline: true, TrimTrailingWhitespace: true}
	assert.Equal(t, "a\nb\n", string(Apply(st, []byte("a  \r\nb\t\n\n"))))

	st = Style{EndOfLine: "\r\n"}
	assert.Equal(t, "a\r\nb", string(Apply(st, []byte("a\nb\n"))))

	assert.Empty(t, Apply(Style{EndOfLine: "\n", InsertFinalNewline: true}, nil))
}

func TestFormatterMinifies(t *testing.T) {
	b := New(&config.BeautifyOptions{Enabled: config.Bool(true), Minify: config.Bool(true)})

	out, err := b.Beautify("a.css", "text/css", []byte("body {\n  color : red;\n}\n"))
	require.NoError(t, err)
	assert.Equal(t, "body{color:red}", string(out))
}

func TestStyleForReadsEditorConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".editorconfig"), []byte(
		"root = true\n\n[*.json]\nindent_style = tab\nend_of_line = crlf\ntrim_trailing_whitespace = true\n"), 0644))

	f := New(&config.BeautifyOptions{Enabled: config.Bool(true)}).(*Formatter)

	st := f.StyleFor(filepath.Join(dir, "out", "a.json"))
	assert.Equal(t, "\t", st.Indent)
	assert.Equal(t, "\r\n", st.EndOfLine)
	assert.True(t, st.TrimTrailingWhitespace)
	assert.True(t, st.InsertFinalNewline)

	st = f.StyleFor(filepath.Join(dir, "out", "a.css"))
	assert.Equal(t, "  ", st.Indent)
	assert.Equal(t, "\n", st.EndOfLine)
}

func TestStyleForExplicitOptionsWin(t *testing.T) {
	size := 4
	f := New(&config.BeautifyOptions{
		Enabled:      config.Bool(true),
		EditorConfig: config.Bool(false),
		IndentSize:   &size,
		EndOfLine:    config.String("crlf"),
	}).(*Formatter)

	st := f.StyleFor("whatever.json")
	assert.Equal(t, "    ", st.Indent)
	assert.Equal(t, "\r\n", st.EndOfLine)
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "text/css", MediaType("a.CSS"))
	assert.Equal(t, "text/html", MediaType("index.html"))
	assert.Equal(t, "application/javascript", MediaType("a.js"))
	assert.Equal(t, "application/json", MediaType("x.code-snippets"))
	assert.Equal(t, "text/plain", MediaType("README"))
}
