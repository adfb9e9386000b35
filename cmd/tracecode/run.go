package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/tracecode/internal/config"
	"github.com/sakif/tracecode/internal/executor"
	"github.com/sakif/tracecode/internal/executor/sandbox"
	"github.com/sakif/tracecode/internal/hints"
)

var (
	runLanguage string
	runStdin    string
	runTimeout  time.Duration
	runJSON     bool
	runHints    bool
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run one program through the sandbox",
	Long: `Run a program in-process through the same sandbox the server uses.

The program is read from file, or from standard input when file is "-"
or omitted. Its output goes to stdout and the diagnostic to stderr. The
command exits 0 on success and 1 for any other outcome.

Examples:
  tracecode run hello.py
  echo 'print(input()[::-1])' | tracecode run --stdin abc
  tracecode run --json --timeout 2s loop.py`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runLanguage, "language", "l", "python", "language of the program")
	runCmd.Flags().StringVar(&runStdin, "stdin", "", "text fed to the program's standard input")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "wall-clock deadline (overrides sandbox.deadline)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full result as JSON")
	runCmd.Flags().BoolVar(&runHints, "hints", false, "print debugging hints when the run fails")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadLocal(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if runTimeout > 0 {
		cfg.Sandbox.Deadline = runTimeout
	}

	code, err := readProgram(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging, cmd.ErrOrStderr())
	sb, err := sandbox.New(cfg.Sandbox, logger)
	if err != nil {
		return fmt.Errorf("creating sandbox: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := runOptions{json: runJSON}
	if runHints {
		opts.hints = hints.NewKeywordGenerator()
	}
	req := executor.ExecutionRequest{Code: code, Language: runLanguage, Stdin: runStdin}
	return runProgram(ctx, sb, req, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func readProgram(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading program from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading program: %w", err)
	}
	return string(data), nil
}

type runOptions struct {
	json  bool
	hints *hints.KeywordGenerator
}

// runProgram executes req and reports the result. A non-success outcome
// comes back as exitError{1}; a sandbox fault as a plain error.
func runProgram(ctx context.Context, exec executor.Executor, req executor.ExecutionRequest, opts runOptions, stdout, stderr io.Writer) error {
	res, err := exec.Execute(ctx, req)
	if err != nil {
		return err
	}

	var hint *hints.Result
	if opts.hints != nil && !res.Success {
		hint, err = opts.hints.Generate(ctx, hints.Request{
			Code:     req.Code,
			Language: req.Language,
			Error:    res.Diagnostic,
		})
		if err != nil {
			return err
		}
	}

	if opts.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		out := struct {
			*executor.ExecutionResult
			Hints *hints.Result `json:"hints,omitempty"`
		}{res, hint}
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		fmt.Fprint(stdout, res.Output)
		if !res.Success {
			fmt.Fprintln(stderr, res.Diagnostic)
		}
		fmt.Fprintf(stderr, "[%s in %.3fs]\n", res.Status, res.ElapsedSeconds)
		if hint != nil {
			fmt.Fprintf(stderr, "\nlikely a %s error\n", hint.ErrorType)
			for _, h := range hint.Hints {
				fmt.Fprintf(stderr, "  - %s\n", h)
			}
		}
	}

	if !res.Success {
		return exitError{code: 1}
	}
	return nil
}
