package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/davecgh/go-spew/spew"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/toastate/toastbuild/internal/builder"
	"github.com/toastate/toastbuild/internal/server"
	"github.com/toastate/toastbuild/internal/tlogger"
	"github.com/toastate/toastbuild/pkg/config"
)

var CLI struct {
	Build  CommandBuild  `cmd:"" aliases:"b" help:"Builds or rebuilds the project."`
	Watch  CommandWatch  `cmd:"" aliases:"w" help:"Builds, then rebuilds on every source change."`
	Serve  CommandServe  `cmd:"" aliases:"s" help:"Run a live dev server."`
	Config CommandConfig `cmd:"" help:"Print the resolved configuration."`

	ConfigFile string `short:"c" help:"configuration file path (optional)"`
}

type CommandBuild struct {
	Targets  []string `arg:"" optional:"" help:"Targets to build: style, script, page, snippet. Every target with sources when empty."`
	SrcDir   string   `help:"Source directory, single target only." type:"existingdir"`
	BuildDir string   `help:"Build output, single target only."`
	Cleanup  bool     `help:"Remove the output folders before building."`

	Verbose int `short:"v" help:"Print verbose output." type:"counter"`
}

type CommandWatch struct {
	Targets  []string `arg:"" optional:"" help:"Targets to watch: style, script, page, snippet. Every target with sources when empty."`
	SrcDir   string   `help:"Source directory, single target only." type:"existingdir"`
	BuildDir string   `help:"Build output, single target only."`

	Verbose int `short:"v" help:"Print verbose output." type:"counter"`
}

type CommandServe struct {
	Targets []string `arg:"" optional:"" help:"Targets to watch: style, script, page, snippet. Every target with sources when empty."`
	Build   bool     `negatable:"" default:"true" help:"Build and watch the sources."`

	Port int `short:"p" help:"Listener port"`

	Verbose int `short:"v" help:"Print verbose output." type:"counter"`
}

type CommandConfig struct{}

func main() {
	// a .env file is optional, templates may read it through env vars
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI, kong.UsageOnError())

	err := ctx.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "toastbuild:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Configuration, error) {
	cfg, err := config.Load(CLI.ConfigFile)
	if err != nil {
		var ice *config.InvalidConfigError
		if errors.As(err, &ice) {
			for _, fe := range ice.FieldErrors {
				fmt.Fprintln(os.Stderr, "  -", fe)
			}
		}
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// selectEngines returns the builders of the selected targets. With no target named,
// every target of config.Targets whose sources exist is used.
func selectEngines(targets []string, srcDir, buildDir string, cfg *config.Configuration, lg *tlogger.Logger) ([]*builder.Engine, error) {
	explicit := len(targets) > 0
	names := targets
	if !explicit {
		names = config.Targets
	}

	if (srcDir != "" || buildDir != "") && len(names) != 1 {
		return nil, errors.New("--src-dir and --build-dir need exactly one target")
	}

	var out []*builder.Engine
	for _, name := range names {
		e, err := builder.NewEngine(name, cfg, lg)
		if err != nil {
			return nil, err
		}

		var o config.Options
		if srcDir != "" {
			abs, err := filepath.Abs(srcDir)
			if err != nil {
				return nil, err
			}
			o.SourceRoot = config.StringList{abs}
		}
		if buildDir != "" {
			abs, err := filepath.Abs(buildDir)
			if err != nil {
				return nil, err
			}
			o.OutputRoot = config.String(abs)
		}
		if err := e.SetOption(o); err != nil {
			return nil, err
		}

		if !explicit && !e.HasSources() {
			lg.Debug("msg", "No sources, skipping target", "builder", name)
			continue
		}
		out = append(out, e)
	}

	if len(out) == 0 {
		lg.Warn("msg", "Nothing to build, no source folder found")
	}
	return out, nil
}

func (r *CommandBuild) Run(ctx *kong.Context) error {
	lg := tlogger.New(os.Stderr, tlogger.LevelFromVerbosity(r.Verbose))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engines, err := selectEngines(r.Targets, r.SrcDir, r.BuildDir, cfg, lg)
	if err != nil {
		return err
	}

	// output roots may nest, so every target is wiped before any is built
	if r.Cleanup {
		for _, e := range engines {
			if err := e.Clean(); err != nil {
				return err
			}
		}
	}

	sigCtx, cancel := signalContext()
	defer cancel()

	for _, e := range engines {
		if err := e.Build(sigCtx, false); err != nil {
			return fmt.Errorf("%s: %w", e.Target(), err)
		}
	}
	return nil
}

func (r *CommandWatch) Run(ctx *kong.Context) error {
	lg := tlogger.New(os.Stderr, tlogger.LevelFromVerbosity(r.Verbose))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engines, err := selectEngines(r.Targets, r.SrcDir, r.BuildDir, cfg, lg)
	if err != nil {
		return err
	}

	sigCtx, cancel := signalContext()
	defer cancel()

	return watchAll(sigCtx, engines, nil)
}

func watchAll(ctx context.Context, engines []*builder.Engine, onBuild func()) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range engines {
		e := e
		if onBuild != nil {
			e.OnBuild(onBuild)
		}
		g.Go(func() error {
			return e.Watch(gctx)
		})
	}
	return g.Wait()
}

func (r *CommandServe) Run(ctx *kong.Context) error {
	lg := tlogger.New(os.Stderr, tlogger.LevelFromVerbosity(r.Verbose))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if r.Port <= 0 {
		r.Port = cfg.Serve.Port
	}

	dir := cfg.Serve.Dir
	if dir == "" {
		dir = config.StringValue(cfg.Page.OutputRoot)
	}
	dir = cfg.Abs(dir)

	serv := server.NewServer(dir, r.Port, cfg.Serve.Redirect404, lg)

	sigCtx, cancel := signalContext()
	defer cancel()

	if !r.Build {
		return serv.Start(sigCtx)
	}

	engines, err := selectEngines(r.Targets, "", "", cfg, lg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return watchAll(gctx, engines, serv.TriggerReload)
	})
	g.Go(func() error {
		return serv.Start(gctx)
	})
	return g.Wait()
}

func (r *CommandConfig) Run(ctx *kong.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Print(spew.Sdump(cfg))
	return nil
}
