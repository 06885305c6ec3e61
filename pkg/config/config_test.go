package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Root = t.TempDir()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingDefaultFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "public/css", StringValue(cfg.Style.OutputRoot))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(`{
		"style": {"output_root": "dist/css", "ignore": {"file_suffix": ".draft"}},
		"script": {"source_root": "app"},
		"serve": {"port": 9000}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, "dist/css", StringValue(cfg.Style.OutputRoot))
	assert.Equal(t, StringList{"src/style"}, cfg.Style.SourceRoot)
	assert.Equal(t, "_", StringValue(cfg.Style.Ignore.FilePrefix))
	assert.Equal(t, ".draft", StringValue(cfg.Style.Ignore.FileSuffix))
	assert.Equal(t, StringList{"app"}, cfg.Script.SourceRoot)
	assert.Equal(t, 9000, cfg.Serve.Port)

	// defaults are not shared between loads
	assert.Equal(t, "public/css", StringValue(Default().Style.OutputRoot))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"style": {"sourceRoot": "x"}}`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidateRootEscapes(t *testing.T) {
	cfg := Default()
	cfg.Root = t.TempDir()
	cfg.Style.SourceRoot = StringList{"../elsewhere"}
	cfg.Page.OutputRoot = String("/tmp/../../outside")
	cfg.Script.OutputRoot = String(".")

	err := cfg.Validate()
	require.Error(t, err)

	var ce *InvalidConfigError
	require.True(t, errors.As(err, &ce))
	assert.Len(t, ce.FieldErrors, 3)
	assert.Contains(t, err.Error(), "style.source_root")
	assert.Contains(t, err.Error(), "script.output_root: must not be the project root")
}

func TestValidateOverlap(t *testing.T) {
	cfg := Default()
	cfg.Root = t.TempDir()
	cfg.Page.OutputRoot = String("src/page/build")

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlaps")
}

func TestValidateFields(t *testing.T) {
	cfg := Default()
	cfg.Root = t.TempDir()
	cfg.Style.FileExtensions = nil
	cfg.Style.Ignore.Globs = []string{"[broken"}
	cfg.Style.CompileOption = json.RawMessage(`[1,2]`)
	cfg.Style.BeautifyOption = &BeautifyOptions{IndentStyle: String("both"), EndOfLine: String("nl")}
	cfg.Serve.Port = 70000

	err := cfg.Validate()
	require.Error(t, err)

	var ce *InvalidConfigError
	require.True(t, errors.As(err, &ce))
	assert.Len(t, ce.FieldErrors, 6)
}

func TestApplyKeepsUnsetFields(t *testing.T) {
	opts := Default().Style

	opts.Apply(Options{
		OutputRoot:    String("out"),
		Ignore:        &IgnoreOptions{DirNames: []string{"vendor"}},
		CompileOption: json.RawMessage(`{"minify":true}`),
	})

	assert.Equal(t, "out", StringValue(opts.OutputRoot))
	assert.Equal(t, StringList{"src/style"}, opts.SourceRoot)
	assert.Equal(t, "_", StringValue(opts.Ignore.FilePrefix))
	assert.Equal(t, []string{"vendor"}, opts.Ignore.DirNames)

	var co map[string]interface{}
	require.NoError(t, json.Unmarshal(opts.CompileOption, &co))
	assert.Equal(t, "vars.json", co["vars_file"])
	assert.Equal(t, true, co["minify"])
}

func TestStringListAcceptsBothForms(t *testing.T) {
	var s struct {
		A StringList `json:"a"`
		B StringList `json:"b"`
	}
	require.NoError(t, json.NewDecoder(strings.NewReader(`{"a":"x","b":["y","z"]}`)).Decode(&s))
	assert.Equal(t, StringList{"x"}, s.A)
	assert.Equal(t, StringList{"y", "z"}, s.B)
}
