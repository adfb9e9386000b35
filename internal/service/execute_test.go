package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tracecode/internal/apperror"
	"github.com/sakif/tracecode/internal/executor"
	"github.com/sakif/tracecode/internal/hints"
)

func newTestExecuteService(exec *mockExecutor, subs *fakeSubmissionRepo, opts ...ExecuteOption) *ExecuteService {
	return NewExecuteService(exec, subs, discardLogger(), opts...)
}

// =========================================================================
// Run TESTS
// =========================================================================

func TestRun_DefaultsLanguage(t *testing.T) {
	exec := &mockExecutor{result: successResult()}
	svc := newTestExecuteService(exec, newFakeSubmissionRepo())

	res, err := svc.Run(context.Background(), executor.ExecutionRequest{Code: "print('hello')"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "python", exec.last.Language)
}

func TestRun_Validation(t *testing.T) {
	tests := []struct {
		name      string
		req       executor.ExecutionRequest
		wantField string
	}{
		{"empty code", executor.ExecutionRequest{Code: ""}, "code"},
		{"whitespace code", executor.ExecutionRequest{Code: " \n\t"}, "code"},
		{"code too long", executor.ExecutionRequest{Code: strings.Repeat("x", MaxCodeLength+1)}, "code"},
		{"stdin too long", executor.ExecutionRequest{Code: "x", Stdin: strings.Repeat("y", MaxStdinLength+1)}, "stdin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{result: successResult()}
			svc := newTestExecuteService(exec, newFakeSubmissionRepo())

			_, err := svc.Run(context.Background(), tt.req)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.wantField, appErr.Field)
			assert.Zero(t, exec.calls, "invalid requests never reach the sandbox")
		})
	}
}

func TestRun_CodeAtLimitIsAccepted(t *testing.T) {
	exec := &mockExecutor{result: successResult()}
	svc := newTestExecuteService(exec, newFakeSubmissionRepo())

	_, err := svc.Run(context.Background(), executor.ExecutionRequest{Code: strings.Repeat("x", MaxCodeLength)})
	assert.NoError(t, err)
}

func TestRun_SandboxFaultIsAnError(t *testing.T) {
	fault := errors.New("workspace: no space left on device")
	svc := newTestExecuteService(&mockExecutor{err: fault}, newFakeSubmissionRepo())

	_, err := svc.Run(context.Background(), executor.ExecutionRequest{Code: "print(1)"})
	assert.ErrorIs(t, err, fault)
	assert.NotErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// RunAndSave TESTS
// =========================================================================

func TestRunAndSave_PersistsSubmission(t *testing.T) {
	subs := newFakeSubmissionRepo()
	rec := &countingRecorder{}
	svc := newTestExecuteService(&mockExecutor{result: successResult()}, subs, WithSubmissionRecorder(rec))

	res, err := svc.RunAndSave(context.Background(), "user-1",
		executor.ExecutionRequest{Code: "print('hello')", Stdin: "in"}, RunOptions{WantHints: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.SubmissionID)
	assert.True(t, res.Success)
	assert.Empty(t, res.Hints, "successful runs get no hints")

	saved := subs.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "user-1", saved[0].UserID)
	assert.Equal(t, "success", saved[0].Status)
	assert.Equal(t, "in", saved[0].Stdin)
	assert.Equal(t, "Execution successful", saved[0].Diagnostic)
	assert.Equal(t, 0.021, saved[0].ExecutionTime)
	assert.Equal(t, 1, rec.n)
}

func TestRunAndSave_StoresFullStatusAndHints(t *testing.T) {
	subs := newFakeSubmissionRepo()
	gen := &stubHints{}
	svc := newTestExecuteService(&mockExecutor{result: runtimeErrorResult()}, subs, WithHintGenerator(gen))

	res, err := svc.RunAndSave(context.Background(), "user-1",
		executor.ExecutionRequest{Code: "print(1/0)"},
		RunOptions{WantHints: true, ExpectedOutput: "0"})
	require.NoError(t, err)

	assert.Equal(t, executor.StatusRuntimeError, res.Status)
	assert.Equal(t, hints.TypeRuntime, res.ErrorType)
	assert.Equal(t, []string{"look at the divisor"}, res.Hints)
	assert.Equal(t, "ZeroDivisionError: division by zero", gen.last.Error)
	assert.Equal(t, "0", gen.last.ExpectedOutput)

	saved := subs.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "runtime_error", saved[0].Status)
	assert.Equal(t, "division by zero", saved[0].RootCause)
}

func TestRunAndSave_HintsNotRequested(t *testing.T) {
	gen := &stubHints{}
	svc := newTestExecuteService(&mockExecutor{result: runtimeErrorResult()}, newFakeSubmissionRepo(), WithHintGenerator(gen))

	res, err := svc.RunAndSave(context.Background(), "user-1",
		executor.ExecutionRequest{Code: "print(1/0)"}, RunOptions{WantHints: false})
	require.NoError(t, err)
	assert.Zero(t, gen.n)
	assert.Empty(t, res.ErrorType)
}

func TestRunAndSave_HintFailureDoesNotFailRequest(t *testing.T) {
	gen := &stubHints{err: errors.New("hint backend down")}
	subs := newFakeSubmissionRepo()
	svc := newTestExecuteService(&mockExecutor{result: runtimeErrorResult()}, subs, WithHintGenerator(gen))

	res, err := svc.RunAndSave(context.Background(), "user-1",
		executor.ExecutionRequest{Code: "print(1/0)"}, RunOptions{WantHints: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SubmissionID)
	assert.Empty(t, res.Hints)
}

func TestRunAndSave_RequiresUser(t *testing.T) {
	svc := newTestExecuteService(&mockExecutor{result: successResult()}, newFakeSubmissionRepo())
	_, err := svc.RunAndSave(context.Background(), "", executor.ExecutionRequest{Code: "x"}, RunOptions{})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestRunAndSave_StoreFailure(t *testing.T) {
	subs := newFakeSubmissionRepo()
	subs.createErr = errors.New("disk full")
	svc := newTestExecuteService(&mockExecutor{result: successResult()}, subs)

	_, err := svc.RunAndSave(context.Background(), "user-1", executor.ExecutionRequest{Code: "x"}, RunOptions{})
	assert.ErrorContains(t, err, "disk full")
}

// =========================================================================
// Debug TESTS
// =========================================================================

func TestDebug_AnonymousIsNotPersisted(t *testing.T) {
	subs := newFakeSubmissionRepo()
	gen := &stubHints{}
	svc := newTestExecuteService(&mockExecutor{result: runtimeErrorResult()}, subs, WithHintGenerator(gen))

	res, err := svc.Debug(context.Background(), "", executor.ExecutionRequest{Code: "print(1/0)"}, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.SubmissionID)
	assert.Empty(t, subs.all())
	assert.Equal(t, 1, gen.n, "debug always asks for hints on failure")
}

func TestDebug_AuthenticatedIsPersisted(t *testing.T) {
	subs := newFakeSubmissionRepo()
	svc := newTestExecuteService(&mockExecutor{result: runtimeErrorResult()}, subs, WithHintGenerator(&stubHints{}))

	res, err := svc.Debug(context.Background(), "user-9", executor.ExecutionRequest{Code: "print(1/0)"}, RunOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SubmissionID)
	assert.Len(t, subs.all(), 1)
}

func TestDebug_WithoutGenerator(t *testing.T) {
	svc := newTestExecuteService(&mockExecutor{result: runtimeErrorResult()}, newFakeSubmissionRepo())

	res, err := svc.Debug(context.Background(), "", executor.ExecutionRequest{Code: "print(1/0)"}, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Hints)
	assert.Equal(t, executor.StatusRuntimeError, res.Status)
}

// =========================================================================
// Hints TESTS
// =========================================================================

func TestHints(t *testing.T) {
	gen := &stubHints{}
	svc := newTestExecuteService(&mockExecutor{}, newFakeSubmissionRepo(), WithHintGenerator(gen))

	res, err := svc.Hints(context.Background(), hints.Request{Code: "x = ", Error: "SyntaxError"})
	require.NoError(t, err)
	assert.Equal(t, hints.TypeRuntime, res.ErrorType)
	assert.Equal(t, "python", gen.last.Language)

	_, err = svc.Hints(context.Background(), hints.Request{})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
