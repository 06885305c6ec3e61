package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// InvalidConfigError collects every problem found in a configuration.
type InvalidConfigError struct {
	FieldErrors []error
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func (e *InvalidConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Abs resolves p against the project root.
func (c *Configuration) Abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	root, err := filepath.Abs(c.Root)
	if err != nil {
		root = c.Root
	}
	return filepath.Join(root, p)
}

// Validate checks every target and the serve section.
func (c *Configuration) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Root) == "" {
		errs = append(errs, errors.New("root: must not be empty"))
	}

	for _, name := range Targets {
		opts, _ := c.Target(name)
		errs = append(errs, c.validateTarget(name, opts)...)
	}

	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		errs = append(errs, fmt.Errorf("serve.port: %d out of range", c.Serve.Port))
	}
	if c.Serve.Dir != "" && !c.inside(c.Abs(c.Serve.Dir)) {
		errs = append(errs, fmt.Errorf("serve.dir: %s escapes the project root", c.Serve.Dir))
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

func (c *Configuration) validateTarget(name string, o *Options) []error {
	var errs []error
	fail := func(field, format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%s.%s: %s", name, field, fmt.Sprintf(format, args...)))
	}

	root := c.Abs(".")

	if len(o.SourceRoot) == 0 {
		fail("source_root", "must not be empty")
	}
	for _, src := range o.SourceRoot {
		if strings.TrimSpace(src) == "" {
			fail("source_root", "empty path")
			continue
		}
		if !c.inside(c.Abs(src)) {
			fail("source_root", "%s escapes the project root", src)
		}
	}

	out := StringValue(o.OutputRoot)
	switch {
	case strings.TrimSpace(out) == "":
		fail("output_root", "must not be empty")
	case !c.inside(c.Abs(out)):
		fail("output_root", "%s escapes the project root", out)
	case c.Abs(out) == root:
		fail("output_root", "must not be the project root")
	default:
		for _, src := range o.SourceRoot {
			if strings.TrimSpace(src) == "" {
				continue
			}
			a, b := c.Abs(src), c.Abs(out)
			if within(a, b) || within(b, a) {
				fail("output_root", "%s overlaps source root %s", out, src)
			}
		}
	}

	if len(o.FileExtensions) == 0 {
		fail("file_extensions", "must not be empty")
	}
	for _, ext := range append(append([]string(nil), o.FileExtensions...), o.ModuleExtensions...) {
		if strings.Trim(ext, ". ") == "" {
			fail("file_extensions", "empty extension")
		}
	}

	if o.Ignore != nil {
		for _, g := range o.Ignore.Globs {
			if g == "" || !doublestar.ValidatePattern(g) {
				fail("ignore.globs", "invalid pattern %q", g)
			}
		}
	}

	if len(o.CompileOption) > 0 {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(o.CompileOption, &m); err != nil {
			fail("compile_option", "must be an object: %v", err)
		}
	}

	if b := o.BeautifyOption; b != nil {
		if b.IndentStyle != nil && *b.IndentStyle != "space" && *b.IndentStyle != "tab" {
			fail("beautify_option.indent_style", "must be space or tab, got %q", *b.IndentStyle)
		}
		if b.IndentSize != nil && *b.IndentSize < 0 {
			fail("beautify_option.indent_size", "must not be negative")
		}
		if b.EndOfLine != nil {
			switch strings.ToLower(*b.EndOfLine) {
			case "lf", "crlf", "cr":
			default:
				fail("beautify_option.end_of_line", "must be lf, crlf or cr, got %q", *b.EndOfLine)
			}
		}
	}

	return errs
}

func (c *Configuration) inside(p string) bool {
	return within(c.Abs("."), p)
}

// within reports whether p is parent or below it.
func within(parent, p string) bool {
	rel, err := filepath.Rel(parent, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
