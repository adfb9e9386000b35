package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/tracecode/internal/config"
	"github.com/sakif/tracecode/internal/server"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the TraceCode HTTP server.

TRACECODE_AUTH_JWT_SECRET must be set. GitHub login is enabled when
TRACECODE_AUTH_GITHUB_CLIENT_ID and TRACECODE_AUTH_GITHUB_CLIENT_SECRET
are both set.

Examples:
  tracecode serve
  tracecode serve --addr :9090
  tracecode serve --config /etc/tracecode/tracecode.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}

	logger := newLogger(cfg.Logging, os.Stdout)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
