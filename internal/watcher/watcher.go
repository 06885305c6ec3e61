package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/toastate/toastbuild/internal/tlogger"
)

// Op is the kind of a filesystem event.
type Op int

const (
	Add Op = iota
	Change
	Unlink
	AddDir
	UnlinkDir
	Error
)

func (o Op) String() string {
	switch o {
	case Add:
		return "add"
	case Change:
		return "change"
	case Unlink:
		return "unlink"
	case AddDir:
		return "addDir"
	case UnlinkDir:
		return "unlinkDir"
	case Error:
		return "error"
	}
	return "unknown"
}

// Event is a filesystem change below a watched root. Err is only set for
// Error events.
type Event struct {
	Op   Op
	Path string
	Err  error
}

// Watcher watches directory trees recursively. A single goroutine produces
// events, so they arrive in the order they were observed.
type Watcher struct {
	fsw  *fsnotify.Watcher
	out  chan Event
	done chan struct{}
	skip func(string) bool
	log  *tlogger.Logger

	// dirs holds every watched directory, so removals can be told apart.
	dirs map[string]struct{}

	closeOnce sync.Once
}

// New starts watching every existing root. skip, when set, drops paths and
// prunes directories it returns true for.
func New(roots []string, skip func(string) bool, lg *tlogger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if skip == nil {
		skip = func(string) bool { return false }
	}
	if lg == nil {
		lg = tlogger.Nop()
	}

	w := &Watcher{
		fsw:  fsw,
		out:  make(chan Event, 100),
		done: make(chan struct{}),
		skip: skip,
		log:  lg,
		dirs: make(map[string]struct{}),
	}

	for _, root := range roots {
		if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
			w.log.Warn("msg", "Source folder not found, not watching it", "path", root)
			continue
		}
		if err := w.addTree(filepath.Clean(root), false); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	go w.loop()

	return w, nil
}

// Events returns the event stream. It is closed after Close.
func (w *Watcher) Events() <-chan Event {
	return w.out
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.out)

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.log.Debug("msg", "fs event", "event", event.String())
			w.translate(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emit(Event{Op: Error, Err: err})
		}
	}
}

func (w *Watcher) emit(ev Event) bool {
	select {
	case w.out <- ev:
		return true
	case <-w.done:
		return false
	}
}

func (w *Watcher) translate(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if w.skip(path) {
		return
	}

	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		fi, err := os.Stat(path)
		if err != nil {
			// already gone again
			return
		}
		if fi.IsDir() {
			if err := w.addTree(path, true); err != nil {
				w.emit(Event{Op: Error, Path: path, Err: err})
			}
			return
		}
		w.emit(Event{Op: Add, Path: path})

	case event.Op&fsnotify.Write == fsnotify.Write:
		if _, isDir := w.dirs[path]; isDir {
			return
		}
		w.emit(Event{Op: Change, Path: path})

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if _, isDir := w.dirs[path]; isDir {
			w.forgetTree(path)
			w.emit(Event{Op: UnlinkDir, Path: path})
			return
		}
		w.emit(Event{Op: Unlink, Path: path})
	}
}

// addTree watches dir and every directory below it. When replay is set, the
// tree is new: an AddDir is emitted for each directory and an Add for each
// file, since their own creation happened before the watch existed.
func (w *Watcher) addTree(dir string, replay bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path != dir && w.skip(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			w.dirs[path] = struct{}{}
			if replay {
				w.emit(Event{Op: AddDir, Path: path})
			}
			return nil
		}

		if replay && d.Type().IsRegular() {
			w.emit(Event{Op: Add, Path: path})
		}
		return nil
	})
}

func (w *Watcher) forgetTree(dir string) {
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
			// fsnotify drops removed directories itself, renamed ones linger
			_ = w.fsw.Remove(d)
		}
	}
}
