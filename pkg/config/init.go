package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFile is the configuration looked up when none is given.
const DefaultFile = "toastbuild.json"

// Target names, in build order.
const (
	TargetStyle   = "style"
	TargetScript  = "script"
	TargetPage    = "page"
	TargetSnippet = "snippet"
)

// Targets lists every builder target.
var Targets = []string{TargetStyle, TargetScript, TargetPage, TargetSnippet}

type Configuration struct {
	Root    string             `json:"root,omitempty"`
	Style   Options            `json:"style"`
	Script  Options            `json:"script"`
	Page    Options            `json:"page"`
	Snippet Options            `json:"snippet"`
	Serve   ServeConfiguration `json:"serve"`
}

type ServeConfiguration struct {
	Redirect404 string `json:"redirect_404"`
	Port        int    `json:"port"`
	// Dir is the served directory, the page output root when empty.
	Dir string `json:"dir,omitempty"`
}

var defaultGlobs = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.DS_Store",
	"**/*.swp",
	"**/*~",
}

// Default returns a fresh default configuration.
func Default() *Configuration {
	return &Configuration{
		Root: ".",
		Style: Options{
			SourceRoot:     StringList{"src/style"},
			OutputRoot:     String("public/css"),
			FileExtensions: []string{".scss", ".sass", ".css"},
			Ignore: &IgnoreOptions{
				FilePrefix: String("_"),
				DirPrefix:  String("_"),
				Globs:      append([]string(nil), defaultGlobs...),
			},
			CompileOption: json.RawMessage(`{"vars_file":"vars.json"}`),
		},
		Script: Options{
			SourceRoot:       StringList{"src/script"},
			OutputRoot:       String("public/js"),
			FileExtensions:   []string{".ts", ".js"},
			ModuleExtensions: []string{".tsx", ".jsx", ".mjs", ".cjs", ".json"},
			Ignore: &IgnoreOptions{
				FilePrefix: String("_"),
				FileSuffix: String(".d"),
				DirPrefix:  String("_"),
				DirNames:   []string{"node_modules", "vendor"},
				Globs:      append([]string(nil), defaultGlobs...),
			},
			CompileOption: json.RawMessage(`{"target":"es2017","format":"iife","sourcemap":true}`),
		},
		Page: Options{
			SourceRoot:     StringList{"src/page"},
			OutputRoot:     String("public"),
			FileExtensions: []string{".html", ".njk"},
			Ignore: &IgnoreOptions{
				FilePrefix: String("_"),
				DirPrefix:  String("_"),
				DirNames:   []string{"includes"},
				Globs:      append([]string(nil), defaultGlobs...),
			},
			CompileOption: json.RawMessage(`{"vars_file":"vars.json"}`),
		},
		Snippet: Options{
			SourceRoot:     StringList{"cheatsheet"},
			OutputRoot:     String(".vscode"),
			FileExtensions: []string{".md"},
			Ignore: &IgnoreOptions{
				FilePrefix: String("_"),
				Globs:      append([]string(nil), defaultGlobs...),
			},
			BeautifyOption: &BeautifyOptions{
				Enabled:      Bool(true),
				EditorConfig: Bool(true),
			},
		},
		Serve: ServeConfiguration{
			Port: 8100,
		},
	}
}

// Target returns the options of a named target.
func (c *Configuration) Target(name string) (*Options, error) {
	switch name {
	case TargetStyle:
		return &c.Style, nil
	case TargetScript:
		return &c.Script, nil
	case TargetPage:
		return &c.Page, nil
	case TargetSnippet:
		return &c.Snippet, nil
	}
	return nil, fmt.Errorf("unknown target %q", name)
}

// Load reads path over the defaults. A missing file is not an error when
// path is the default file name.
func Load(path string) (*Configuration, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultFile
	}

	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("could not access configuration file %s: %w", path, err)
	}
	defer f.Close()

	if err := Decode(f, cfg); err != nil {
		return nil, fmt.Errorf("configuration file %s: %w", path, err)
	}

	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}

	return cfg, cfg.Validate()
}

// Decode decodes a JSON configuration over cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Configuration) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return &InvalidConfigError{FieldErrors: []error{err}}
	}
	return nil
}
