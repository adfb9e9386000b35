// Command tracecode serves the code execution API and can run a single
// program through the sandbox from the command line.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/tracecode/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tracecode",
	Short: "TraceCode - run untrusted Python in a sandbox",
	Long: `TraceCode runs short, untrusted Python programs as confined child
processes with a wall-clock deadline and reports one of four outcomes:
success, compilation_error, runtime_error or timeout.

Configuration comes from tracecode.yaml (in the working directory or
/etc/tracecode) and TRACECODE_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tracecode.yaml)")
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// exitError ends the process with code and no message.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
