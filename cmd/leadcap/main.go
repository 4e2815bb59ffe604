package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/logger"
	"github.com/hpungsan/leadcap/internal/mcp"
	"github.com/hpungsan/leadcap/internal/observability"
)

// Version is set via -ldflags at build time.
var Version = "dev"

type runMode int

const (
	modeMCP runMode = iota
	modeBanner
	modeHelp
	modeCLI
	modeUnknown
)

var subcommands = []string{"turn", "serve", "leads", "transcript"}

// detectMode picks what to run. With no arguments an interactive terminal
// gets the banner and piped stdin gets the MCP server. Help and version
// flags are handled before any state is opened.
func detectMode(args []string, interactive bool) runMode {
	if len(args) < 2 {
		if interactive {
			return modeBanner
		}
		return modeMCP
	}
	switch arg := args[1]; {
	case arg == "help" || arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v":
		return modeHelp
	case slices.Contains(subcommands, arg):
		return modeCLI
	case interactive:
		return modeUnknown
	default:
		return modeMCP
	}
}

// isTerminal reports whether stdin is a terminal rather than a pipe.
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _                _
  | | ___  __ _  __| | ___ __ _ _ __
  | |/ _ \/ _' |/ _' |/ __/ _' | '_ \
  | |  __/ (_| | (_| | (_| (_| | |_) |
  |_|\___|\__,_|\__,_|\___\__,_| .__/
                               |_|
  Conversational lead capture

  Usage: leadcap <command> [options]
         leadcap --help

  MCP server mode requires piped input.`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	mode := detectMode(os.Args, isTerminal())
	switch mode {
	case modeBanner:
		printBanner()
		return
	case modeHelp:
		if err := newCLIApp(nil, nil, nil, nil).Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	case modeUnknown:
		fail("unknown command %q\nRun 'leadcap --help' for usage.", os.Args[1])
	}

	home, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(home, ".leadcap")
	cwd, err := os.Getwd()
	if err != nil {
		fail("could not determine working directory: %v", err)
	}

	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	resolved, err := config.Resolve(cfg, os.Getenv)
	if err != nil {
		fail("invalid configuration: %v", err)
	}
	cfg = resolved.Config

	log, err := logger.New(logger.Options{
		Mode:     cfg.LogMode,
		Level:    cfg.LogLevel,
		Redact:   !cfg.DisableLogRedaction,
		HashSalt: cfg.LogHashSalt,
	})
	if err != nil {
		fail("failed to init logger: %v", err)
	}
	defer log.Sync()

	ctx := context.Background()
	shutdown, err := observability.Init(ctx, log, observability.Config{
		Enabled:     cfg.TracingEnabled,
		ServiceName: "leadcap",
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		fail("failed to init tracing: %v", err)
	}
	defer func() { _ = shutdown(ctx) }()

	database, err := db.Init(baseDir)
	if err != nil {
		fail("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	eng, closeEngine, err := newEngine(database, resolved, log)
	if err != nil {
		fail("failed to build engine: %v", err)
	}
	defer closeEngine()

	if mode == modeCLI {
		err = newCLIApp(database, cfg, eng, log).Run(os.Args)
	} else {
		if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
			log.Warn("unknown tools in disabled_tools", "tools", unknown)
		}
		if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
			log.Warn("unknown types in disabled_types", "types", unknown)
		}
		err = mcp.Run(database, cfg, eng, Version)
	}
	if err != nil {
		// os.Exit skips deferred calls.
		closeEngine()
		database.Close()
		log.Sync()
		fail("%v", err)
	}
}
