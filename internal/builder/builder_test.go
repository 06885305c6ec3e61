package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toastate/toastbuild/internal/tlogger"
	"github.com/toastate/toastbuild/pkg/config"
)

func TestNewEngineUnknownTarget(t *testing.T) {
	_, err := NewEngine("images", config.Default(), tlogger.Nop())
	assert.Error(t, err)
}

func TestNewEngineBuildsRule(t *testing.T) {
	cfg := config.Default()
	cfg.Root = t.TempDir()

	e, err := NewEngine(config.TargetScript, cfg, nil)
	require.NoError(t, err)

	r := e.Rule()
	assert.Equal(t, []string{filepath.Join(cfg.Root, "src", "script")}, r.SourceRoots)
	assert.Equal(t, filepath.Join(cfg.Root, "public", "js"), r.OutputRoot)
	assert.Equal(t, []string{".ts", ".js"}, r.IncludeExtensions)
	assert.Contains(t, r.WatchExtensions, ".tsx")
	assert.Equal(t, ".d", r.ExcludeFileSuffix)
	assert.Equal(t, "js", r.OutputExtension)
	assert.Equal(t, "js", e.Mapper().OutputExtension)
	assert.Equal(t, config.TargetScript, e.Target())
	assert.False(t, e.HasSources())
}

func TestBuildAllBuildsEveryEntryInKeyOrder(t *testing.T) {
	p := newTestProject(t, "b.scss", "a.scss", "blog/post.scss", "_partial.scss", "_drafts/x.scss")

	require.NoError(t, p.engine.BuildAll(context.Background()))

	assert.Equal(t, []build{
		{src: p.path("a.scss"), dst: p.output("a.css")},
		{src: p.path("b.scss"), dst: p.output("b.css")},
		{src: p.path("blog/post.scss"), dst: p.output("blog/post.css")},
	}, p.compiler.calls())
	assert.FileExists(t, p.output("blog/post.css"))
	assert.Equal(t, []string{"a", "b", "blog/post"}, p.engine.Entries().Keys())
}

func TestBuildAllEmptySetSkipsCompiler(t *testing.T) {
	p := newTestProject(t, "_only-partial.scss")

	require.NoError(t, p.engine.BuildAll(context.Background()))

	assert.Empty(t, p.compiler.calls())
	assert.Empty(t, p.engine.Entries())
}

func TestBuildAllMissingSourceRoot(t *testing.T) {
	p := newTestProject(t)
	require.NoError(t, os.RemoveAll(p.src))

	assert.False(t, p.engine.HasSources())
	require.NoError(t, p.engine.BuildAll(context.Background()))
	assert.Empty(t, p.compiler.calls())
}

func TestBuildAllCollisionFails(t *testing.T) {
	p := newTestProject(t, "x.scss", "x.sass")

	err := p.engine.BuildAll(context.Background())
	require.Error(t, err)
	assert.Empty(t, p.compiler.calls())
}

func TestBuildAllUsesBulkCompiler(t *testing.T) {
	p := newTestProject(t, "a.scss", "nested/b.scss")
	bulk := &bulkCompiler{}
	p.engine.compile = bulk

	require.NoError(t, p.engine.BuildAll(context.Background()))

	require.Len(t, bulk.sets, 1)
	assert.Equal(t, []string{"a", "nested/b"}, bulk.sets[0].Keys())
	assert.FileExists(t, p.output("nested/b.css"))
}

func TestBuildAllPropagatesCompilerError(t *testing.T) {
	p := newTestProject(t, "a.scss")
	boom := errors.New("boom")
	p.compiler.fail = boom

	err := p.engine.BuildAll(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestBuildAllHonorsCancelledContext(t *testing.T) {
	p := newTestProject(t, "a.scss")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.engine.BuildAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.compiler.calls())
}

func TestBuildCleanupRemovesStaleOutputs(t *testing.T) {
	p := newTestProject(t, "a.scss")
	stale := p.output("old/gone.css")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))

	require.NoError(t, p.engine.Build(context.Background(), true))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, p.output("a.css"))
}

func TestBuildWithoutCleanupKeepsOutputs(t *testing.T) {
	p := newTestProject(t, "a.scss")
	other := p.output("keep.css")
	require.NoError(t, os.MkdirAll(p.out, 0755))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))

	require.NoError(t, p.engine.Build(context.Background(), false))

	assert.FileExists(t, other)
}

func TestBuildCopiesAssets(t *testing.T) {
	p := newTestProject(t, "a.scss", "img/logo.png", "_private/secret.png", "vars.json")
	p.compiler.assets = true

	require.NoError(t, p.engine.BuildAll(context.Background()))

	assert.FileExists(t, p.output("img/logo.png"))
	assert.NoFileExists(t, p.output("_private/secret.png"))
	assert.NoFileExists(t, p.output("vars.json"))
	assert.NoFileExists(t, p.output("a.scss"))
}

func TestSetOptionOverridesRoots(t *testing.T) {
	p := newTestProject(t)
	other := filepath.Join(p.root, "assets", "css")

	require.NoError(t, p.engine.SetOption(config.Options{
		SourceRoot: config.StringList{other},
		OutputRoot: config.String("dist"),
	}))

	r := p.engine.Rule()
	assert.Equal(t, []string{other}, r.SourceRoots)
	assert.Equal(t, filepath.Join(p.root, "dist"), r.OutputRoot)
	// untouched fields keep their defaults
	assert.Equal(t, []string{".scss", ".sass", ".css"}, r.IncludeExtensions)
	assert.Equal(t, "_", r.ExcludeFilePrefix)
}

func TestSetOptionRejectsInvalidAndKeepsState(t *testing.T) {
	p := newTestProject(t)
	before := p.engine.Rule()

	err := p.engine.SetOption(config.Options{FileExtensions: []string{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	assert.Equal(t, before, p.engine.Rule())
}

func TestSetOptionRejectsUnknownCompileOption(t *testing.T) {
	e, root := newTargetProject(t, config.TargetStyle, map[string]string{
		"src/style/blog/post.css": "a {}\n",
		"assets/deep/blog/x.css":  "b {}\n",
	})
	rule, mapper := e.Rule(), e.Mapper()

	err := e.SetOption(config.Options{
		SourceRoot:    config.StringList{filepath.Join(root, "assets", "deep")},
		CompileOption: []byte(`{"nope":1}`),
	})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	assert.Equal(t, rule, e.Rule())
	assert.Equal(t, mapper, e.Mapper())
	assert.Equal(t, "css", e.Rule().OutputExtension)

	require.NoError(t, e.Build(context.Background(), false))
	assert.FileExists(t, filepath.Join(root, "public", "css", "blog", "post.css"))
	assert.NoFileExists(t, filepath.Join(root, "public", "css", "post.css"))
	assert.NoFileExists(t, filepath.Join(root, "public", "css", "blog", "x.css"))
}

func TestCompileErrorUnwrap(t *testing.T) {
	cause := errors.New("bad token")
	ce := &CompileError{Builder: "style", File: "a.scss", Messages: []string{"line 2"}, Err: cause}

	assert.ErrorIs(t, ce, ErrCompile)
	assert.ErrorIs(t, ce, cause)
	assert.Equal(t, "style: a.scss: line 2: bad token", ce.Error())
	assert.Equal(t, "line 2\nbad token", ce.Detail())
}
