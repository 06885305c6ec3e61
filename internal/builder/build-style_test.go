package builder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toastate/toastbuild/pkg/config"
)

func TestStyleInlinesImportsAndVars(t *testing.T) {
	e, root := newTargetProject(t, config.TargetStyle, map[string]string{
		"src/style/vars.json":            `{"color": "red", "pad": "4px"}`,
		"src/style/_colors.scss":         "$main: \"{{ .color }}\";\n",
		"src/style/main.scss":            "@import \"colors\";\n@use 'mixins/spacing';\nbody { color: $main; }\n",
		"src/style/mixins/_spacing.scss": "$pad: \"{{ .pad }}\";\n",
		"src/style/blog/vars.json":       `{"color": "blue"}`,
		"src/style/blog/post.scss":       "a { color: \"{{ .color }}\"; padding: \"{{ .pad }}\"; }\n",
	})

	require.NoError(t, e.Build(context.Background(), true))

	main := readFile(t, filepath.Join(root, "public", "css", "main.css"))
	assert.Contains(t, main, "$main: red;")
	assert.Contains(t, main, "$pad: 4px;")
	assert.Contains(t, main, "body { color: $main; }")
	assert.NotContains(t, main, "@import")
	assert.NotContains(t, main, "@use")

	post := readFile(t, filepath.Join(root, "public", "css", "blog", "post.css"))
	assert.Equal(t, "a { color: blue; padding: 4px; }\n", post)

	assert.NoFileExists(t, filepath.Join(root, "public", "css", "_colors.css"))
}

func TestStyleKeepsRemoteImports(t *testing.T) {
	e, root := newTargetProject(t, config.TargetStyle, map[string]string{
		"src/style/main.css": "@import \"https://fonts.example.com/inter.css\";\nbody {}\n",
	})

	require.NoError(t, e.Build(context.Background(), false))

	out := readFile(t, filepath.Join(root, "public", "css", "main.css"))
	assert.Contains(t, out, `@import "https://fonts.example.com/inter.css";`)
}

func TestStyleErrorsBecomePlaceholders(t *testing.T) {
	testCases := []struct {
		name     string
		files    map[string]string
		expected string
	}{
		{
			name:     "missing import",
			files:    map[string]string{"src/style/main.scss": "@import \"nowhere\";\n"},
			expected: `cannot find import \"nowhere\"`,
		},
		{
			name: "import loop",
			files: map[string]string{
				"src/style/main.scss": "@import \"a\";\n",
				"src/style/_a.scss":   "@import \"b\";\n",
				"src/style/_b.scss":   "@import \"a\";\n",
			},
			expected: "max import depth",
		},
		{
			name:     "missing variable",
			files:    map[string]string{"src/style/main.scss": "a { color: \"{{ .nope }}\"; }\n"},
			expected: "nope",
		},
		{
			name: "broken vars file",
			files: map[string]string{
				"src/style/vars.json": `{"color":`,
				"src/style/main.scss": "a {}\n",
			},
			expected: "vars.json",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, root := newTargetProject(t, config.TargetStyle, tc.files)

			require.NoError(t, e.Build(context.Background(), false))

			out := readFile(t, filepath.Join(root, "public", "css", "main.css"))
			assert.Contains(t, out, "body::before")
			assert.Contains(t, out, tc.expected)
		})
	}
}

func TestStyleSpecialFile(t *testing.T) {
	e, _ := newTargetProject(t, config.TargetStyle, nil)
	sc, ok := e.compile.(*StyleCompiler)
	require.True(t, ok)

	assert.True(t, sc.IsSpecialFile(filepath.Join("src", "style", "vars.json")))
	assert.False(t, sc.IsSpecialFile(filepath.Join("src", "style", "other.json")))
	assert.Equal(t, "css", sc.OutputExtension())
}

func TestStylePlaceholderEscapesMessage(t *testing.T) {
	out := string(stylePlaceholder(&CompileError{File: "a.scss", Messages: []string{`say "hi" */`}}))

	assert.Contains(t, out, `say \"hi\" * /`)
	assert.NotContains(t, out, `"hi" */`)
}
