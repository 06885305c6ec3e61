package config

import (
	"bytes"
	"encoding/json"
)

// Options configures one builder. Unset fields (nil pointers and nil slices)
// mean "keep the current value".
type Options struct {
	SourceRoot       StringList       `json:"source_root,omitempty"`
	OutputRoot       *string          `json:"output_root,omitempty"`
	FileExtensions   []string         `json:"file_extensions,omitempty"`
	ModuleExtensions []string         `json:"module_extensions,omitempty"`
	Ignore           *IgnoreOptions   `json:"ignore,omitempty"`
	CompileOption    json.RawMessage  `json:"compile_option,omitempty"`
	BeautifyOption   *BeautifyOptions `json:"beautify_option,omitempty"`
}

// IgnoreOptions lists the entry point exclusion rules.
type IgnoreOptions struct {
	FilePrefix *string  `json:"file_prefix,omitempty"`
	FileSuffix *string  `json:"file_suffix,omitempty"`
	DirPrefix  *string  `json:"dir_prefix,omitempty"`
	DirSuffix  *string  `json:"dir_suffix,omitempty"`
	DirNames   []string `json:"dir_names,omitempty"`
	Globs      []string `json:"globs,omitempty"`
}

// BeautifyOptions drives output formatting. Values left unset fall back to
// the .editorconfig of the output file when EditorConfig is true.
type BeautifyOptions struct {
	Enabled                *bool   `json:"enabled,omitempty"`
	Minify                 *bool   `json:"minify,omitempty"`
	EditorConfig           *bool   `json:"editorconfig,omitempty"`
	IndentStyle            *string `json:"indent_style,omitempty"`
	IndentSize             *int    `json:"indent_size,omitempty"`
	EndOfLine              *string `json:"end_of_line,omitempty"`
	InsertFinalNewline     *bool   `json:"insert_final_newline,omitempty"`
	TrimTrailingWhitespace *bool   `json:"trim_trailing_whitespace,omitempty"`
}

// StringList decodes either a JSON string or an array of strings.
type StringList []string

func (s *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// Apply copies every field set in o onto opts. Nested records are copied,
// never modified in place, so opts may share them with another Options.
func (opts *Options) Apply(o Options) {
	if o.SourceRoot != nil {
		opts.SourceRoot = append(StringList(nil), o.SourceRoot...)
	}
	if o.OutputRoot != nil {
		opts.OutputRoot = String(*o.OutputRoot)
	}
	if o.FileExtensions != nil {
		opts.FileExtensions = append([]string(nil), o.FileExtensions...)
	}
	if o.ModuleExtensions != nil {
		opts.ModuleExtensions = append([]string(nil), o.ModuleExtensions...)
	}
	if o.Ignore != nil {
		var ig IgnoreOptions
		if opts.Ignore != nil {
			ig = *opts.Ignore
		}
		ig.apply(*o.Ignore)
		opts.Ignore = &ig
	}
	if o.CompileOption != nil {
		opts.CompileOption = mergeRaw(opts.CompileOption, o.CompileOption)
	}
	if o.BeautifyOption != nil {
		var b BeautifyOptions
		if opts.BeautifyOption != nil {
			b = *opts.BeautifyOption
		}
		b.apply(*o.BeautifyOption)
		opts.BeautifyOption = &b
	}
}

func (i *IgnoreOptions) apply(o IgnoreOptions) {
	if o.FilePrefix != nil {
		i.FilePrefix = String(*o.FilePrefix)
	}
	if o.FileSuffix != nil {
		i.FileSuffix = String(*o.FileSuffix)
	}
	if o.DirPrefix != nil {
		i.DirPrefix = String(*o.DirPrefix)
	}
	if o.DirSuffix != nil {
		i.DirSuffix = String(*o.DirSuffix)
	}
	if o.DirNames != nil {
		i.DirNames = append([]string(nil), o.DirNames...)
	}
	if o.Globs != nil {
		i.Globs = append([]string(nil), o.Globs...)
	}
}

func (b *BeautifyOptions) apply(o BeautifyOptions) {
	if o.Enabled != nil {
		b.Enabled = Bool(*o.Enabled)
	}
	if o.Minify != nil {
		b.Minify = Bool(*o.Minify)
	}
	if o.EditorConfig != nil {
		b.EditorConfig = Bool(*o.EditorConfig)
	}
	if o.IndentStyle != nil {
		b.IndentStyle = String(*o.IndentStyle)
	}
	if o.IndentSize != nil {
		v := *o.IndentSize
		b.IndentSize = &v
	}
	if o.EndOfLine != nil {
		b.EndOfLine = String(*o.EndOfLine)
	}
	if o.InsertFinalNewline != nil {
		b.InsertFinalNewline = Bool(*o.InsertFinalNewline)
	}
	if o.TrimTrailingWhitespace != nil {
		b.TrimTrailingWhitespace = Bool(*o.TrimTrailingWhitespace)
	}
}

// mergeRaw merges two JSON objects key by key, over winning. Anything that is
// not a pair of objects is replaced by over.
func mergeRaw(base, over json.RawMessage) json.RawMessage {
	var b, o map[string]json.RawMessage
	if json.Unmarshal(base, &b) != nil || json.Unmarshal(over, &o) != nil || b == nil {
		return append(json.RawMessage(nil), over...)
	}
	for k, v := range o {
		b[k] = v
	}
	out, err := json.Marshal(b)
	if err != nil {
		return append(json.RawMessage(nil), over...)
	}
	return out
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// BoolValue dereferences p, returning def for nil.
func BoolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
