// Package builder is the public entry point to the incremental builders.
package builder

import (
	"context"

	"github.com/toastate/toastbuild/internal/builder"
	"github.com/toastate/toastbuild/internal/tlogger"
	"github.com/toastate/toastbuild/pkg/config"
)

// Builder builds one target of a project.
type Builder interface {
	// SetOption overrides the target options. Unset fields are kept.
	SetOption(o config.Options) error
	// Build compiles every entry point once, wiping the output root first
	// when cleanup is set.
	Build(ctx context.Context, cleanup bool) error
	// Watch builds, then rebuilds on source changes until ctx is done.
	Watch(ctx context.Context) error
}

// New returns the builder of target, one of config.Targets.
func New(target string, cfg *config.Configuration, lg *tlogger.Logger) (Builder, error) {
	return builder.NewEngine(target, cfg, lg)
}
