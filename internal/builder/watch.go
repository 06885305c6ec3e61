package builder

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/toastate/toastbuild/internal/entry"
	"github.com/toastate/toastbuild/internal/watcher"
)

// Watch builds everything once, then rebuilds on every filesystem event until
// ctx is done. Events are handled strictly one after another. A failing build
// is fatal: it is logged and the process exits with status 1.
func (e *Engine) Watch(ctx context.Context) error {
	src, err := e.newSource(e.rule.SourceRoots, e.ignored)
	if err != nil {
		e.log.Error("msg", "Failed to start watcher", "err", err)
		return err
	}
	defer src.Close()

	if err := e.BuildAll(ctx); err != nil {
		return e.fatal(ctx, err)
	}
	e.notify()

	e.log.Info("msg", "Watching for changes", "path", e.rule.SourceRoots)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-src.Events():
			if !ok {
				return nil
			}
			if err := e.HandleEvent(ctx, ev); err != nil {
				return e.fatal(ctx, err)
			}
		}
	}
}

// fatal stops the session on a build error. An interrupted session is not a
// failure: the caller owns the cancellation cause.
func (e *Engine) fatal(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		e.log.Debug("msg", "Watch interrupted", "err", err)
		return nil
	}
	e.log.Error("msg", "Build failed, stopping watch", "err", err)
	e.exit(1)
	return err
}

func (e *Engine) notify() {
	if e.onBuild != nil {
		e.onBuild()
	}
}

// ignored drops events under ignore globs.
func (e *Engine) ignored(path string) bool {
	_, rel, ok := e.rule.RootOf(path)
	return ok && rel != "." && e.rule.IsIgnored(rel)
}

// HandleEvent applies one filesystem event to the session state and runs the
// narrowest rebuild that keeps outputs correct.
func (e *Engine) HandleEvent(ctx context.Context, ev watcher.Event) error {
	switch ev.Op {
	case watcher.Error:
		e.log.Warn("msg", "Watcher error", "err", ev.Err)
		return nil
	case watcher.AddDir:
		e.log.Debug("msg", "Directory added", "path", ev.Path)
		return nil
	case watcher.UnlinkDir:
		return e.removeDir(ev.Path)
	}

	path := filepath.Clean(ev.Path)
	if _, _, ok := e.rule.RootOf(path); !ok || e.ignored(path) {
		return nil
	}

	if e.isAsset(path) {
		return e.handleAsset(ev.Op, path)
	}

	special := e.isSpecial(path)
	if !special && !e.rule.Watches(filepath.Ext(path)) {
		return nil
	}

	e.log.Info("msg", "Detected change", "op", ev.Op, "path", path)

	var err error
	switch ev.Op {
	case watcher.Add:
		err = e.onAdd(ctx, path, special)
	case watcher.Change:
		err = e.onChange(ctx, path, special)
	case watcher.Unlink:
		err = e.onUnlink(ctx, path, special)
	default:
		return fmt.Errorf("unexpected watch event %v", ev.Op)
	}
	if err != nil {
		return err
	}

	e.notify()
	return nil
}

func (e *Engine) onAdd(ctx context.Context, path string, special bool) error {
	if special {
		return e.BuildAll(ctx)
	}

	set, err := entry.Resolve(e.rule)
	if err != nil {
		return err
	}
	e.entries = set

	if set.Contains(path) {
		return e.BuildFile(ctx, path, e.mapper.ToOutputPath(path, false))
	}
	// a new partial may be imported anywhere
	return e.BuildAll(ctx)
}

func (e *Engine) onChange(ctx context.Context, path string, special bool) error {
	if special {
		return e.rebuildScope(ctx, filepath.Dir(path))
	}

	if e.entries.Contains(path) {
		return e.BuildFile(ctx, path, e.mapper.ToOutputPath(path, false))
	}
	return e.BuildAll(ctx)
}

func (e *Engine) onUnlink(ctx context.Context, path string, special bool) error {
	if special {
		return e.rebuildScope(ctx, filepath.Dir(path))
	}

	key, ok := e.entries.KeyOf(path)
	if !ok {
		e.log.Debug("msg", "Removed file was not an entry point", "path", path)
		return nil
	}

	out := e.mapper.ToOutputPath(path, false)
	if err := e.writer.Remove(out); err != nil {
		return err
	}
	delete(e.entries, key)
	e.log.Info("msg", "Removed output", "file", out)
	return nil
}

// rebuildScope rebuilds the entries governed by a special file in dir: all of
// them at a source root, only the nested ones in a subdirectory.
func (e *Engine) rebuildScope(ctx context.Context, dir string) error {
	if e.rule.IsRoot(dir) {
		return e.BuildAll(ctx)
	}

	for _, key := range e.entries.Under(dir) {
		src := e.entries[key]
		if err := e.BuildFile(ctx, src, e.mapper.ToOutputPath(src, false)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) removeDir(dir string) error {
	dir = filepath.Clean(dir)
	if _, _, ok := e.rule.RootOf(dir); !ok {
		return nil
	}

	for _, key := range e.entries.Under(dir) {
		delete(e.entries, key)
	}

	out := e.mapper.ToOutputPath(dir, true)
	if filepath.Clean(out) == filepath.Clean(e.rule.OutputRoot) {
		// a source root itself went away, keep the output root
		return nil
	}
	if err := e.writer.RemoveAll(out); err != nil {
		return err
	}
	e.log.Info("msg", "Removed output folder", "path", out)
	e.notify()
	return nil
}

func (e *Engine) handleAsset(op watcher.Op, path string) error {
	switch op {
	case watcher.Add, watcher.Change:
		if err := e.copyAsset(path); err != nil {
			return err
		}
	case watcher.Unlink:
		if err := e.writer.Remove(e.assetOutput(path)); err != nil {
			return err
		}
	}
	e.notify()
	return nil
}
