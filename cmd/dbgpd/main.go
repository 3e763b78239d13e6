// dbgpd runs a Go program under Delve and exposes it to a DBGP IDE.
//
// The program is stopped on entry while dbgpd connects to the IDE and
// negotiates breakpoints; once the IDE requests the stack the program runs
// and pauses at every armed line, reconnecting to the IDE for inspection.
// With --mcp the session status and breakpoints are also served as MCP tools
// on stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ctagard/dbgpd/internal/adapters"
	"github.com/ctagard/dbgpd/internal/config"
	"github.com/ctagard/dbgpd/internal/dap"
	"github.com/ctagard/dbgpd/internal/launchconfig"
	"github.com/ctagard/dbgpd/internal/mcp"
	"github.com/ctagard/dbgpd/internal/session"
	"github.com/ctagard/dbgpd/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("dbgpd", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a YAML or JSON configuration file")
	ideHost := flagSet.String("ide-host", "", "host of the IDE listening for DBGP connections")
	idePort := flagSet.Int("ide-port", 0, "port of the IDE")
	ideKey := flagSet.String("idekey", "", "IDE key presented in the handshake")
	logLevel := flagSet.String("log-level", "", "log level: debug, info, warn or error")
	serveMCP := flagSet.Bool("mcp", false, "serve status and breakpoint tools over MCP on stdio")
	launchJSON := flagSet.String("launch-config", "", "path to launch.json (discovered from the working directory if empty)")
	launchName := flagSet.String("launch-name", "", "launch.json configuration to debug (first Go launch configuration if empty)")
	program := flagSet.String("program", "", "Go package or file to debug, instead of a launch.json configuration")
	cwd := flagSet.String("cwd", "", "working directory of the debugged program")
	dlvPath := flagSet.String("dlv", "", "path to the dlv binary")
	buildFlags := flagSet.String("build-flags", "", "build flags passed to dlv")
	maxDepth := flagSet.Int("max-depth", 0, "how deep variables are expanded")
	showVersion := flagSet.Bool("version", false, "show version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if *showVersion {
		fmt.Println(version.String())
		return nil
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flags override the file and the environment.
	set := func(name string, apply func()) {
		if flagSet.Changed(name) {
			apply()
		}
	}
	set("ide-host", func() { cfg.IDE.Host = *ideHost })
	set("ide-port", func() { cfg.IDE.Port = *idePort })
	set("idekey", func() { cfg.IDE.Key = *ideKey })
	set("log-level", func() { cfg.LogLevel = *logLevel })
	set("mcp", func() { cfg.MCP = *serveMCP })
	set("launch-config", func() { cfg.Launch.ConfigPath = *launchJSON })
	set("launch-name", func() { cfg.Launch.Name = *launchName })
	set("program", func() { cfg.Launch.Program = *program })
	set("cwd", func() { cfg.Launch.Cwd = *cwd })
	set("dlv", func() { cfg.Adapter.Path = *dlvPath })
	set("build-flags", func() { cfg.Adapter.BuildFlags = *buildFlags })
	set("max-depth", func() { cfg.Variables.MaxDepth = *maxDepth })
	if args := flagSet.Args(); len(args) > 0 {
		cfg.Launch.Args = args
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target, err := debugConfiguration(cfg)
	if err != nil {
		return err
	}

	return serve(ctx, cfg, target, logger)
}

// debugConfiguration returns the resolved program to debug: the configured
// program if set, otherwise a launch.json configuration.
func debugConfiguration(cfg *config.Config) (*launchconfig.DebugConfiguration, error) {
	if cfg.Launch.Program != "" {
		return &launchconfig.DebugConfiguration{
			Type:    "go",
			Request: "launch",
			Name:    cfg.Launch.Program,
			Program: cfg.Launch.Program,
			Args:    cfg.Launch.Args,
			Cwd:     cfg.Launch.Cwd,
		}, nil
	}

	lj, path, err := launchconfig.Load(cfg.Launch.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("no --program given and no launch.json: %w", err)
	}
	dc, err := launchconfig.FindConfiguration(lj, cfg.Launch.Name)
	if err != nil {
		return nil, err
	}
	if err := launchconfig.ValidateConfiguration(dc); err != nil {
		return nil, err
	}

	resolved, err := launchconfig.ResolveConfiguration(dc, &launchconfig.ResolutionContext{
		WorkspaceFolder: launchconfig.GetWorkspaceFolder(path),
	})
	if err != nil {
		return nil, err
	}
	if len(cfg.Launch.Args) > 0 {
		resolved.Args = cfg.Launch.Args
	}
	if cfg.Launch.Cwd != "" {
		resolved.Cwd = cfg.Launch.Cwd
	}
	return resolved, nil
}

func serve(ctx context.Context, cfg *config.Config, dc *launchconfig.DebugConfiguration, logger *slog.Logger) error {
	adapter := adapters.NewDelveAdapter(cfg.Adapter)
	target, err := adapters.SpawnAndConnect(ctx, adapter, dc.Cwd, cfg.Adapter.ConnectRetries, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := target.Close(); err != nil {
			logger.Warn("failed to stop debug adapter", "err", err)
		}
	}()

	if err := target.Client.Launch(adapter.BuildLaunchArgs(dc)); err != nil {
		return err
	}
	logger.Info("debug target launched", "program", dc.Program, "pid", target.PID())

	provider := dap.NewProvider(target.Client, dap.ProviderOptions{
		MaxDepth: cfg.Variables.MaxDepth,
		Logger:   logger,
	})

	engine := session.New(provider, session.Options{
		Address:  cfg.Address(),
		IDEKey:   cfg.IDE.Key,
		Language: cfg.Language,
		Logger:   logger,
	})
	defer engine.Close()

	if cfg.MCP {
		srv := mcp.NewServer(engine, logger)
		go func() {
			if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				logger.Error("MCP server stopped", "err", err)
			}
		}()
	}

	if err := engine.Start(ctx); err != nil {
		logger.Warn("no IDE session, running the target without breakpoints", "address", cfg.Address(), "err", err)
	}

	err = provider.Run(ctx)
	logger.Info("debug session ended", "info", engine.Info())
	if err == context.Canceled {
		return nil
	}
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `%s: a DBGP debugger engine for Go programs.

Runs the program under Delve (dlv dap) and connects to an IDE listening for
DBGP connections (Xdebug-compatible clients, port 9003 by default). The
program is selected with --program or from a .vscode/launch.json Go launch
configuration. Arguments after -- are passed to the program.

Usage:
  dbgpd [flags] [-- program args...]

Flags:
%s
Environment:
  DBGP_IDE_HOST, DBGP_IDE_PORT, DBGP_IDEKEY, DBGP_LOG_LEVEL, DBGP_MCP,
  DBGP_DLV_PATH, DBGP_DLV_BUILD_FLAGS, DBGP_LAUNCH_CONFIG, DBGP_LAUNCH_NAME,
  DBGP_PROGRAM, DBGP_MAX_DEPTH, DBGP_LANGUAGE
`, version.String(), flagSet.FlagUsages())
}
