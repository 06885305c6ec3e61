package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/toastate/toastbuild/internal/beautify"
	"github.com/toastate/toastbuild/internal/entry"
	"github.com/toastate/toastbuild/internal/tlogger"
	"github.com/toastate/toastbuild/internal/watcher"
	"github.com/toastate/toastbuild/pkg/config"
)

// NewEngine returns the engine of a configured target.
func NewEngine(target string, cfg *config.Configuration, lg *tlogger.Logger) (*Engine, error) {
	opts, err := cfg.Target(target)
	if err != nil {
		return nil, err
	}
	if lg == nil {
		lg = tlogger.Nop()
	}

	e := &Engine{
		target: target,
		cfg:    cfg,
		opts:   *opts,
		log:    lg.With("builder", target),
		exit:   os.Exit,
		newSource: func(roots []string, skip func(string) bool) (EventSource, error) {
			return watcher.New(roots, skip, lg.With("builder", target))
		},
	}

	if err := e.init(); err != nil {
		return nil, err
	}
	return e, nil
}

// SetOption applies every field set in o and reinitializes the engine.
// Unset fields keep their current value. On error the engine is unchanged.
func (e *Engine) SetOption(o config.Options) error {
	opts := e.opts
	opts.Apply(o)
	return e.configure(opts)
}

func (e *Engine) init() error {
	return e.configure(e.opts)
}

// configure validates opts and builds every derived component before
// touching the engine, so a rejected configuration leaves it as it was.
func (e *Engine) configure(opts config.Options) error {
	cfg := *e.cfg
	switch e.target {
	case config.TargetStyle:
		cfg.Style = opts
	case config.TargetScript:
		cfg.Script = opts
	case config.TargetPage:
		cfg.Page = opts
	case config.TargetSnippet:
		cfg.Snippet = opts
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	root, err := filepath.Abs(e.cfg.Root)
	if err != nil {
		return fmt.Errorf("project root: %w", err)
	}

	rule := buildRule(&cfg, opts)
	writer := NewArtifactWriter(beautify.New(opts.BeautifyOption), e.log)
	env := &Env{Rule: rule, Writer: writer, Log: e.log, Root: root}

	compiler, err := newCompiler(e.target, env, opts.CompileOption)
	if err != nil {
		return &config.InvalidConfigError{FieldErrors: []error{fmt.Errorf("%s.%w", e.target, err)}}
	}

	rule.OutputExtension = compiler.OutputExtension()
	mapper := entry.NewMapper(rule)
	env.Rule = rule
	env.Mapper = mapper

	e.opts = opts
	e.rule = rule
	e.mapper = mapper
	e.writer = writer
	e.env = env
	e.compile = compiler
	e.entries = nil
	return nil
}

func newCompiler(target string, env *Env, raw []byte) (Compiler, error) {
	switch target {
	case config.TargetStyle:
		return NewStyleCompiler(env, raw)
	case config.TargetScript:
		return NewScriptCompiler(env, raw)
	case config.TargetPage:
		return NewPageCompiler(env, raw)
	case config.TargetSnippet:
		return NewSnippetCompiler(env, raw)
	}
	return nil, fmt.Errorf("unknown target %q", target)
}

func buildRule(cfg *config.Configuration, o config.Options) entry.Rule {
	r := entry.Rule{
		OutputRoot: cfg.Abs(config.StringValue(o.OutputRoot)),
	}
	for _, src := range o.SourceRoot {
		r.SourceRoots = append(r.SourceRoots, cfg.Abs(src))
	}
	for _, ext := range o.FileExtensions {
		r.IncludeExtensions = append(r.IncludeExtensions, entry.NormalizeExt(ext))
	}
	for _, ext := range o.ModuleExtensions {
		r.WatchExtensions = append(r.WatchExtensions, entry.NormalizeExt(ext))
	}
	if ig := o.Ignore; ig != nil {
		r.ExcludeFilePrefix = config.StringValue(ig.FilePrefix)
		r.ExcludeFileSuffix = config.StringValue(ig.FileSuffix)
		r.ExcludeDirPrefix = config.StringValue(ig.DirPrefix)
		r.ExcludeDirSuffix = config.StringValue(ig.DirSuffix)
		r.ExcludeDirNames = append([]string(nil), ig.DirNames...)
		r.IgnoreGlobs = append([]string(nil), ig.Globs...)
	}
	return r
}

// Target returns the target name.
func (e *Engine) Target() string {
	return e.target
}

// Rule returns the resolved inclusion rule.
func (e *Engine) Rule() entry.Rule {
	return e.rule
}

// Mapper returns the output path mapper.
func (e *Engine) Mapper() entry.Mapper {
	return e.mapper
}

// Entries returns the last resolved entry point set.
func (e *Engine) Entries() entry.Set {
	return e.entries
}

// HasSources reports whether at least one source root exists.
func (e *Engine) HasSources() bool {
	for _, root := range e.rule.SourceRoots {
		if st, err := os.Stat(root); err == nil && st.IsDir() {
			return true
		}
	}
	return false
}

// OnBuild registers fn to be called after every successful watch rebuild.
func (e *Engine) OnBuild(fn func()) {
	e.onBuild = fn
}

// Build is the one-shot build. With cleanup the output root is wiped first.
func (e *Engine) Build(ctx context.Context, cleanup bool) error {
	if cleanup {
		if err := e.Clean(); err != nil {
			return err
		}
	}
	return e.BuildAll(ctx)
}

// Clean removes and recreates the output root.
func (e *Engine) Clean() error {
	out := e.rule.OutputRoot

	if err := removeAllRetry(out); err != nil {
		e.log.Error("msg", "Failed to remove build folder", "path", out, "err", err)
		return err
	}
	e.writer.Reset()

	if err := os.MkdirAll(out, 0755); err != nil {
		e.log.Error("msg", "Failed to create build folder", "path", out, "err", err)
		return err
	}
	return nil
}

// BuildAll resolves the entry point set and builds all of it.
func (e *Engine) BuildAll(ctx context.Context) error {
	set, err := entry.Resolve(e.rule)
	if err != nil {
		e.log.Error("msg", "Failed to resolve entry points", "err", err)
		return err
	}
	e.entries = set

	if err := e.copyAllAssets(); err != nil {
		return err
	}

	if len(set) == 0 {
		e.log.Info("msg", "No entry points, skipping build", "path", e.rule.SourceRoots)
		return nil
	}

	e.log.Info("msg", "Building started", "entries", len(set))
	defer e.log.Info("msg", "Building finished")

	if bulk, ok := e.compile.(BulkCompiler); ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := bulk.CompileAll(ctx, set, e.mapper); err != nil {
			e.log.Error("msg", "Error processing entries", "err", err)
			return err
		}
		return nil
	}

	for _, key := range set.Keys() {
		src := set[key]
		if err := e.BuildFile(ctx, src, e.mapper.ToOutputPath(src, false)); err != nil {
			return err
		}
	}
	return nil
}

// BuildFile compiles src into dst.
func (e *Engine) BuildFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.log.Debug("msg", "processing", "file", src, "output", dst)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		e.log.Error("msg", "Failed to create folder", "file", dst, "err", err)
		return err
	}

	if err := e.compile.CompileFile(ctx, src, dst); err != nil {
		e.log.Error("msg", "Error processing file", "file", src, "err", err)
		return err
	}
	return nil
}

func (e *Engine) isSpecial(path string) bool {
	sf, ok := e.compile.(SpecialFiler)
	return ok && sf.IsSpecialFile(path)
}

func (e *Engine) copiesAssets() bool {
	ac, ok := e.compile.(AssetCopier)
	return ok && ac.CopyAssets()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
