package sandbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/sakif/tracecode/internal/executor"
)

const msgSuccess = "Execution successful"

// Classify maps what the runner observed to an outcome. The checks run in a
// fixed priority order: spawn failure, timeout, nonzero exit, success.
func Classify(raw RawResult, desc Descriptor, deadline time.Duration) *executor.ExecutionResult {
	switch {
	case raw.SpawnFailed:
		return &executor.ExecutionResult{
			Status:      executor.StatusRuntimeError,
			Diagnostic:  fmt.Sprintf("%s interpreter not found on the system", desc.DisplayName),
			SpawnFailed: true,
		}

	case raw.TimedOut:
		// Partial output is dropped on purpose; the fixed message is the
		// whole report.
		return &executor.ExecutionResult{
			Status:         executor.StatusTimeout,
			Diagnostic:     fmt.Sprintf("Execution timeout (%s limit exceeded). Check for infinite loops.", deadline),
			ElapsedSeconds: executor.RoundSeconds(deadline.Seconds()),
		}

	case raw.ExitCode != 0:
		diag := raw.Stderr
		if diag == "" {
			diag = raw.Stdout
		}
		if diag == "" {
			diag = exitDescription(raw)
		}
		return &executor.ExecutionResult{
			Status:         executor.StatusRuntimeError,
			Output:         raw.Stdout,
			Diagnostic:     diag,
			ElapsedSeconds: executor.RoundSeconds(raw.Elapsed.Seconds()),
			Truncated:      raw.Truncated,
		}
	}

	return &executor.ExecutionResult{
		Success:        true,
		Status:         executor.StatusSuccess,
		Output:         raw.Stdout,
		Diagnostic:     msgSuccess,
		ElapsedSeconds: executor.RoundSeconds(raw.Elapsed.Seconds()),
		Truncated:      raw.Truncated,
	}
}

// Unsupported is the outcome for a language outside the registry. No
// workspace or process exists for it.
func Unsupported(language string) *executor.ExecutionResult {
	return &executor.ExecutionResult{
		Status: executor.StatusCompilationError,
		Diagnostic: fmt.Sprintf("Language '%s' is not yet supported. Currently only %s %s available.",
			language, availableNames(), pluralBe(len(registry))),
	}
}

func exitDescription(raw RawResult) string {
	if raw.Signal != "" {
		return fmt.Sprintf("Process terminated by signal: %s", raw.Signal)
	}
	return fmt.Sprintf("Process exited with code %d", raw.ExitCode)
}

func availableNames() string {
	names := Supported()
	display := make([]string, 0, len(names))
	for _, n := range names {
		display = append(display, registry[Language(n)].DisplayName)
	}
	return strings.Join(display, ", ")
}

func pluralBe(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}
