package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/toastate/toastbuild/internal/entry"
	"github.com/toastate/toastbuild/internal/tlogger"
	"github.com/toastate/toastbuild/internal/watcher"
	"github.com/toastate/toastbuild/pkg/config"
)

// Compiler turns one entry point into one artifact.
type Compiler interface {
	Name() string
	OutputExtension() string
	CompileFile(ctx context.Context, src, dst string) error
}

// BulkCompiler compiles the whole entry point set in one invocation, e.g. a
// bundler sharing a module graph between entries.
type BulkCompiler interface {
	Compiler
	CompileAll(ctx context.Context, entries entry.Set, mapper entry.Mapper) error
}

// SpecialFiler is implemented by compilers owning shared files, such as
// variables files, whose change affects every entry below their directory.
type SpecialFiler interface {
	IsSpecialFile(path string) bool
}

// AssetCopier is implemented by compilers that also mirror the non-source
// files of their tree into the output.
type AssetCopier interface {
	CopyAssets() bool
}

// Env is what a compiler gets from its engine.
type Env struct {
	Rule   entry.Rule
	Mapper entry.Mapper
	Writer *ArtifactWriter
	Log    *tlogger.Logger
	// Root is the absolute project root.
	Root string
}

// EventSource delivers filesystem events one at a time.
type EventSource interface {
	Events() <-chan watcher.Event
	Close() error
}

// Engine is the entry point discovery and incremental build engine shared by
// every target.
type Engine struct {
	target  string
	cfg     *config.Configuration
	opts    config.Options
	rule    entry.Rule
	mapper  entry.Mapper
	env     *Env
	log     *tlogger.Logger
	writer  *ArtifactWriter
	compile Compiler

	// entries is the current entry point set. It is only touched by the
	// goroutine running Build or Watch.
	entries entry.Set

	onBuild   func()
	exit      func(int)
	newSource func(roots []string, skip func(string) bool) (EventSource, error)
}

// ErrCompile is wrapped by every CompileError.
var ErrCompile = errors.New("compile error")

// CompileError is returned by compilers for malformed sources.
type CompileError struct {
	Builder  string
	File     string
	Messages []string
	Err      error
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", e.Builder, e.File)
	for _, m := range e.Messages {
		sb.WriteString(": ")
		sb.WriteString(m)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *CompileError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCompile, e.Err}
	}
	return []error{ErrCompile}
}

// Detail is the human readable part of the error, without the file name.
func (e *CompileError) Detail() string {
	parts := append([]string(nil), e.Messages...)
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, "\n")
}
