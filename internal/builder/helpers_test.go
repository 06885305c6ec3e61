package builder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toastate/toastbuild/internal/entry"
	"github.com/toastate/toastbuild/internal/tlogger"
	"github.com/toastate/toastbuild/internal/watcher"
	"github.com/toastate/toastbuild/pkg/config"
)

type build struct {
	src, dst string
}

// recordingCompiler writes "built <src>" into every output and remembers the
// calls it got.
type recordingCompiler struct {
	mu      sync.Mutex
	special string
	assets  bool
	fail    error
	builds  []build
}

func (rc *recordingCompiler) Name() string { return "recording" }

func (rc *recordingCompiler) OutputExtension() string { return "css" }

func (rc *recordingCompiler) IsSpecialFile(path string) bool {
	return rc.special != "" && filepath.Base(path) == rc.special
}

func (rc *recordingCompiler) CopyAssets() bool { return rc.assets }

func (rc *recordingCompiler) CompileFile(ctx context.Context, src, dst string) error {
	rc.mu.Lock()
	rc.builds = append(rc.builds, build{src: src, dst: dst})
	fail := rc.fail
	rc.mu.Unlock()

	if fail != nil {
		return fail
	}
	return os.WriteFile(dst, []byte("built "+src), 0644)
}

func (rc *recordingCompiler) calls() []build {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]build(nil), rc.builds...)
}

func (rc *recordingCompiler) reset() {
	rc.mu.Lock()
	rc.builds = nil
	rc.mu.Unlock()
}

// bulkCompiler records CompileAll calls on top of recordingCompiler.
type bulkCompiler struct {
	recordingCompiler
	sets []entry.Set
}

func (bc *bulkCompiler) CompileAll(ctx context.Context, entries entry.Set, mapper entry.Mapper) error {
	bc.sets = append(bc.sets, entries)
	for _, key := range entries.Keys() {
		dst := mapper.ToKeyPath(key)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := bc.CompileFile(ctx, entries[key], dst); err != nil {
			return err
		}
	}
	return nil
}

// fakeSource replays events pushed by the test.
type fakeSource struct {
	ch chan watcher.Event
}

func (s *fakeSource) Events() <-chan watcher.Event { return s.ch }

func (s *fakeSource) Close() error { return nil }

type testProject struct {
	root string
	src  string
	out  string

	engine   *Engine
	compiler *recordingCompiler
	exitCode int
}

// newTestProject creates a style project holding files (slash paths below the
// source root) with a recording compiler in place of the real one.
func newTestProject(t *testing.T, files ...string) *testProject {
	t.Helper()

	root := t.TempDir()
	p := &testProject{
		root:     root,
		src:      filepath.Join(root, "src", "style"),
		out:      filepath.Join(root, "public", "css"),
		compiler: &recordingCompiler{special: "vars.json"},
		exitCode: -1,
	}
	require.NoError(t, os.MkdirAll(p.src, 0755))
	p.write(t, files...)

	cfg := config.Default()
	cfg.Root = root

	e, err := NewEngine(config.TargetStyle, cfg, tlogger.Nop())
	require.NoError(t, err)
	e.compile = p.compiler
	e.exit = func(code int) { p.exitCode = code }
	p.engine = e

	return p
}

func (p *testProject) write(t *testing.T, files ...string) {
	t.Helper()
	for _, f := range files {
		path := p.path(f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("/* "+f+" */\n"), 0644))
	}
}

// path returns the absolute path of a source file.
func (p *testProject) path(rel string) string {
	return filepath.Join(p.src, filepath.FromSlash(rel))
}

// output returns the absolute path of an output file.
func (p *testProject) output(rel string) string {
	return filepath.Join(p.out, filepath.FromSlash(rel))
}

func (p *testProject) event(t *testing.T, op watcher.Op, rel string) {
	t.Helper()
	require.NoError(t, p.engine.HandleEvent(context.Background(), watcher.Event{Op: op, Path: p.path(rel)}))
}

// newTargetProject writes files (slash paths below the project root) and
// returns the real engine of target over them.
func newTargetProject(t *testing.T, target string, files map[string]string, mutate ...func(*config.Configuration)) (*Engine, string) {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	cfg := config.Default()
	cfg.Root = root
	for _, m := range mutate {
		m(cfg)
	}

	e, err := NewEngine(target, cfg, tlogger.Nop())
	require.NoError(t, err)
	return e, root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}
