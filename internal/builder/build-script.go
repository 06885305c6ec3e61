package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/toastate/toastbuild/internal/entry"
)

// ScriptOptions is the script compile_option.
type ScriptOptions struct {
	Target    string            `json:"target"`
	Format    string            `json:"format"`
	Platform  string            `json:"platform"`
	Minify    bool              `json:"minify"`
	Sourcemap bool              `json:"sourcemap"`
	Define    map[string]string `json:"define"`
	External  []string          `json:"external"`
}

// ScriptCompiler bundles every entry point in a single esbuild run, so
// modules shared by several entries are parsed once. Any bundler error fails
// the build.
type ScriptCompiler struct {
	env  *Env
	opts ScriptOptions

	target   api.Target
	format   api.Format
	platform api.Platform
}

var scriptTargets = map[string]api.Target{
	"esnext": api.ESNext,
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es6":    api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

var scriptFormats = map[string]api.Format{
	"iife": api.FormatIIFE,
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
}

var scriptPlatforms = map[string]api.Platform{
	"browser": api.PlatformBrowser,
	"node":    api.PlatformNode,
	"neutral": api.PlatformNeutral,
}

func NewScriptCompiler(env *Env, raw json.RawMessage) (*ScriptCompiler, error) {
	sc := &ScriptCompiler{env: env, opts: ScriptOptions{Target: "es2017", Format: "iife", Platform: "browser"}}
	if err := decodeOptions(raw, &sc.opts); err != nil {
		return nil, err
	}

	var ok bool
	if sc.target, ok = scriptTargets[strings.ToLower(sc.opts.Target)]; !ok {
		return nil, fmt.Errorf("compile_option.target: unknown target %q", sc.opts.Target)
	}
	if sc.format, ok = scriptFormats[strings.ToLower(sc.opts.Format)]; !ok {
		return nil, fmt.Errorf("compile_option.format: unknown format %q", sc.opts.Format)
	}
	if sc.platform, ok = scriptPlatforms[strings.ToLower(sc.opts.Platform)]; !ok {
		return nil, fmt.Errorf("compile_option.platform: unknown platform %q", sc.opts.Platform)
	}

	env.Log.Debug("msg", "init", "target", sc.opts.Target, "format", sc.opts.Format)
	return sc, nil
}

func (sc *ScriptCompiler) Name() string { return "script" }

func (sc *ScriptCompiler) OutputExtension() string { return "js" }

func (sc *ScriptCompiler) options() api.BuildOptions {
	o := api.BuildOptions{
		Bundle:            true,
		Write:             false,
		LogLevel:          api.LogLevelSilent,
		AbsWorkingDir:     sc.env.Root,
		Target:            sc.target,
		Format:            sc.format,
		Platform:          sc.platform,
		MinifyWhitespace:  sc.opts.Minify,
		MinifyIdentifiers: sc.opts.Minify,
		MinifySyntax:      sc.opts.Minify,
		Define:            sc.opts.Define,
		External:          sc.opts.External,
	}
	if sc.opts.Sourcemap {
		o.Sourcemap = api.SourceMapLinked
	}
	return o
}

// CompileAll bundles the whole set into the mapper's output root, each entry
// written under its logical key.
func (sc *ScriptCompiler) CompileAll(ctx context.Context, entries entry.Set, mapper entry.Mapper) error {
	if len(entries) == 0 {
		return nil
	}

	o := sc.options()
	o.Outdir = mapper.OutputRoot
	if ext := entry.NormalizeExt(mapper.OutputExtension); ext != "" && ext != ".js" {
		o.OutExtension = map[string]string{".js": ext}
	}
	for _, key := range entries.Keys() {
		o.EntryPointsAdvanced = append(o.EntryPointsAdvanced, api.EntryPoint{
			InputPath:  entries[key],
			OutputPath: key,
		})
	}

	written, err := sc.run(ctx, o, mapper.OutputRoot)
	if err != nil {
		return err
	}

	// every entry must land where a later unlink will look for it
	for _, key := range entries.Keys() {
		if p := mapper.ToKeyPath(key); !written[p] {
			return fmt.Errorf("script: no bundle written for %s at %s", key, p)
		}
	}
	return nil
}

// CompileFile bundles a single entry into dst.
func (sc *ScriptCompiler) CompileFile(ctx context.Context, src, dst string) error {
	o := sc.options()
	o.EntryPoints = []string{src}
	o.Outfile = dst
	_, err := sc.run(ctx, o, src)
	return err
}

// run builds o and writes the outputs, returning the set of written paths.
func (sc *ScriptCompiler) run(ctx context.Context, o api.BuildOptions, subject string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := api.Build(o)

	for _, w := range result.Warnings {
		sc.env.Log.Warn("msg", "esbuild", "warning", formatMessage(w))
	}

	if len(result.Errors) > 0 {
		ce := &CompileError{Builder: sc.Name(), File: subject}
		for _, m := range result.Errors {
			ce.Messages = append(ce.Messages, formatMessage(m))
		}
		if loc := result.Errors[0].Location; loc != nil && loc.File != "" {
			ce.File = loc.File
		}
		return nil, ce
	}

	sort.Slice(result.OutputFiles, func(i, j int) bool {
		return result.OutputFiles[i].Path < result.OutputFiles[j].Path
	})
	written := make(map[string]bool, len(result.OutputFiles))
	for _, of := range result.OutputFiles {
		p := filepath.Clean(of.Path)
		sc.env.Log.Debug("msg", "writing bundle", "file", p)
		if err := sc.env.Writer.Write(p, of.Contents); err != nil {
			return nil, err
		}
		written[p] = true
	}
	return written, nil
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}
