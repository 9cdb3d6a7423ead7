// Package main runs vimsync in a terminal: an in-memory editor host driven
// by tcell, a Lua-scripted mode engine and the input router between them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dshills/vimsync/internal/config"
	"github.com/dshills/vimsync/internal/engine/script"
	"github.com/dshills/vimsync/internal/logging"
	"github.com/dshills/vimsync/internal/memhost"
	"github.com/dshills/vimsync/internal/router"
	"github.com/dshills/vimsync/internal/termhost"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	ConfigPath string
	ScriptPath string
	LogFile    string
	LogLevel   string
	Watch      bool
	Files      []string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logger, closeLog, err := openLogger(opts.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open log: %v\n", err)
		return 1
	}
	defer closeLog()

	bindings := config.DefaultKeybindings()
	if cfg.Keybindings != "" {
		if bindings, err = config.LoadKeybindings(cfg.Keybindings); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	src := script.DefaultScript
	if opts.ScriptPath != "" {
		data, err := os.ReadFile(opts.ScriptPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read script: %v\n", err)
			return 1
		}
		src = string(data)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := memhost.New()
	if err := openFiles(h, opts.Files); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	store := config.NewStore(cfg)
	r := router.New(h, script.Factory(h, src, logger),
		router.WithLogger(logger),
		router.WithConfig(store),
		router.WithKeybindings(bindings),
	)
	if err := r.Activate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to activate: %v\n", err)
		return 1
	}
	defer func() {
		if err := r.Deactivate(context.Background()); err != nil {
			logger.Warn("deactivate: %v", err)
		}
	}()

	if opts.Watch && opts.ConfigPath != "" {
		w, err := config.NewWatcher(opts.ConfigPath, store, func(c *config.Config) {
			r.Reconfigure(ctx, c)
		}, config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("config watch disabled: %v", err)
		} else {
			defer w.Close()
		}
	}

	screen, err := termhost.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create terminal: %v\n", err)
		return 1
	}
	term := termhost.New(screen, h, bindings,
		termhost.WithLogger(logger),
		termhost.WithCommand("<C-t>", router.CommandToggleVim),
		termhost.WithStatus(func() string { return status(h, r) }),
	)
	if err := term.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize terminal: %v\n", err)
		return 1
	}
	defer term.Shutdown()

	if err := r.Flush(ctx); err != nil {
		logger.Warn("startup: %v", err)
	}
	if err := term.Run(ctx, r.Flush); err != nil && !errors.Is(err, context.Canceled) {
		term.Shutdown()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.ScriptPath, "script", "", "Lua key script replacing the built-in one")
	flag.StringVar(&opts.LogFile, "log-file", "", "Write logs to this file")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flag.BoolVar(&opts.Watch, "watch", true, "Reload the configuration file when it changes")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "vimsync - modal input router\n\n")
		fmt.Fprintf(os.Stderr, "Usage: vimsync [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCtrl-T toggles vimsync, Ctrl-Q quits.\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("vimsync %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be trace, debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	opts.Files = flag.Args()
	return opts
}

// openLogger writes to path, or discards output when path is empty; the
// terminal owns stdout and stderr while running.
func openLogger(path, level string) (*logging.Logger, func(), error) {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(level)
	cfg.Output = io.Discard
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		cfg.Output = f
		closeFn = func() { _ = f.Close() }
	}
	return logging.New(cfg), closeFn, nil
}

// openFiles loads each file into the host and focuses the first one. With
// no files an untitled buffer is opened.
func openFiles(h *memhost.Host, files []string) error {
	if len(files) == 0 {
		h.Focus(h.Open("untitled:Untitled-1", ""))
		return nil
	}
	var first *memhost.Editor
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(abs)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("open %s: %w", f, err)
		}
		ed := h.Open("file://"+filepath.ToSlash(abs), string(data))
		if first == nil {
			first = ed
		}
	}
	h.Focus(first)
	return nil
}

func status(h *memhost.Host, r *router.Router) string {
	ed := h.Active()
	if ed == nil {
		return ""
	}
	doc := ed.Doc()
	mode := "-"
	if r.Disabled() {
		mode = "off"
	} else if mh, ok := r.Handlers().Get(doc.URI()); ok {
		mode = mh.Mode().String()
	}
	return fmt.Sprintf(" %s  %s", strings.ToUpper(mode), doc.FileName())
}
