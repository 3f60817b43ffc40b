package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/pastewire/connectivity"
	"github.com/hazyhaar/pastewire/orchestrator"
)

const version = "0.1.0"

var serveFlags struct {
	config   string
	db       string
	listen   string
	remote   string
	headless bool
	stealth  bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pastewire daemon",
	Long: `Run the pastewire daemon.

The daemon drives Chrome (launched locally or reached over --remote),
attaches a probe to every page, keeps the paste-target menu in sync with
the focused page and serves:
  - the REST API under /api
  - the configuration page at /config
  - MCP over streamable HTTP at /mcp`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.config, "config", "c", "", "path to pastewire.yaml")
	f.StringVar(&serveFlags.db, "db", "", "SQLite database path (default pastewire.db)")
	f.StringVar(&serveFlags.listen, "listen", "", "HTTP listen address (default 127.0.0.1:8791)")
	f.StringVar(&serveFlags.remote, "remote", "", "DevTools URL of a running Chrome")
	f.BoolVar(&serveFlags.headless, "headless", false, "launch Chrome headless")
	f.BoolVar(&serveFlags.stealth, "stealth", false, "apply stealth evasions to opened pages")
}

func loadConfig(cmd *cobra.Command) (*orchestrator.Config, error) {
	cfg := &orchestrator.Config{}
	if serveFlags.config != "" {
		loaded, err := orchestrator.LoadConfigFile(serveFlags.config)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	f := cmd.Flags()
	if f.Changed("db") {
		cfg.DBPath = serveFlags.db
	}
	if f.Changed("listen") {
		cfg.Listen = serveFlags.listen
	}
	if f.Changed("remote") {
		cfg.Browser.RemoteURL = serveFlags.remote
	}
	if f.Changed("headless") {
		cfg.Browser.Headless = serveFlags.headless
	}
	if f.Changed("stealth") {
		cfg.Browser.Stealth = serveFlags.stealth
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	b, err := orchestrator.StartBrowser(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer b.Close()

	o, err := orchestrator.New(cfg, b, logger)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	defer o.Close()

	// Capture waits on the user's answer, so calls may run as long as the
	// prompt does.
	router := connectivity.New(
		connectivity.WithLogger(logger),
		connectivity.WithMiddleware(
			connectivity.Recovery(logger),
			connectivity.Logging(logger),
			connectivity.Timeout(cfg.Capture.PromptTimeout+cfg.Browser.LoadTimeout),
		),
	)
	o.RegisterConnectivity(router)

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "pastewire", Version: version}, nil)
	o.RegisterMCP(mcpSrv)

	if err := o.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.Run(gctx) })
	g.Go(func() error { return o.Serve(gctx, o.Handler(router, mcpSrv)) })

	err = g.Wait()
	logger.Info("pastewire: stopped", "error", err)
	return err
}
