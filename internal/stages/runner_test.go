package stages_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/groupby/gb-deployment-tools/internal/execshell"
	"github.com/groupby/gb-deployment-tools/internal/failures"
	"github.com/groupby/gb-deployment-tools/internal/stages"
)

type stubExecutor struct {
	executionError   error
	recordedPayloads []json.RawMessage
}

func (executor *stubExecutor) Execute(_ context.Context, payload json.RawMessage) error {
	executor.recordedPayloads = append(executor.recordedPayloads, payload)
	return executor.executionError
}

type stubBinaryExecutor struct {
	result          execshell.ExecutionResult
	executionError  error
	recordedPath    string
	recordedDetails execshell.CommandDetails
}

func (executor *stubBinaryExecutor) ExecuteBinary(_ context.Context, executablePath string, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.recordedPath = executablePath
	executor.recordedDetails = details
	return executor.result, executor.executionError
}

func TestDispatcherRoutesAndCodesFailures(testInstance *testing.T) {
	observerCore, observerLogs := observer.New(zap.DebugLevel)
	buildExecutor := &stubExecutor{executionError: errors.New("exit status 2")}
	cloneExecutor := &stubExecutor{}

	dispatcher, creationError := stages.NewDispatcher(zap.New(observerCore), map[stages.Action]stages.Executor{
		stages.ActionClone: cloneExecutor,
		stages.ActionBuild: buildExecutor,
	})
	require.NoError(testInstance, creationError)

	cloneMessage, messageError := stages.NewMessage(stages.ActionClone, stages.ClonePayload{RepoSource: "src", RepoDestination: "dest"})
	require.NoError(testInstance, messageError)
	require.NoError(testInstance, dispatcher.Dispatch(context.Background(), cloneMessage))
	require.JSONEq(testInstance, `{"repoSrc":"src","repoDest":"dest"}`, string(cloneExecutor.recordedPayloads[0]))

	buildMessage, messageError := stages.NewMessage(stages.ActionBuild, stages.BuildPayload{BuildScript: "make"})
	require.NoError(testInstance, messageError)
	buildError := dispatcher.Dispatch(context.Background(), buildMessage)
	require.ErrorIs(testInstance, buildError, failures.CodeBuildFailed)
	require.Equal(testInstance, 1, observerLogs.FilterMessage("Stage failed").Len())

	unknownError := dispatcher.Dispatch(context.Background(), stages.Message{Action: stages.ActionCleanup})
	var unknownActionError stages.UnknownActionError
	require.ErrorAs(testInstance, unknownError, &unknownActionError)
	require.ErrorIs(testInstance, unknownError, failures.CodeCleanupFailed)
}

func TestInlineRunnerDispatches(testInstance *testing.T) {
	executor := &stubExecutor{}
	dispatcher, creationError := stages.NewDispatcher(zap.NewNop(), map[stages.Action]stages.Executor{stages.ActionCleanup: executor})
	require.NoError(testInstance, creationError)

	runner, runnerError := stages.NewInlineRunner(dispatcher)
	require.NoError(testInstance, runnerError)

	message, messageError := stages.NewMessage(stages.ActionCleanup, stages.CleanupPayload{RepoDestination: "checkout"})
	require.NoError(testInstance, messageError)
	require.NoError(testInstance, runner.Run(context.Background(), message))
	require.Len(testInstance, executor.recordedPayloads, 1)
}

func TestProcessRunnerInterpretsExitStatus(testInstance *testing.T) {
	testCases := []struct {
		name            string
		executionError  error
		expectedCode    failures.Code
		expectedMessage string
	}{
		{
			name: "success",
		},
		{
			name: "structured_failure_payload",
			executionError: execshell.CommandFailedError{Result: execshell.ExecutionResult{
				ExitCode:       1,
				StandardOutput: `{"code":"MigrateFailed","message":"copy dist/app.js: no such file"}` + "\n",
			}},
			expectedCode:    failures.CodeMigrateFailed,
			expectedMessage: "copy dist/app.js: no such file",
		},
		{
			name:            "bare_exit_code",
			executionError:  execshell.CommandFailedError{Result: execshell.ExecutionResult{ExitCode: 1, StandardOutput: "FAILED"}},
			expectedCode:    failures.CodeBuildFailed,
			expectedMessage: failures.DefaultMessage(failures.CodeBuildFailed),
		},
		{
			name:           "interrupted_process",
			executionError: execshell.CommandExecutionError{Cause: context.DeadlineExceeded},
			expectedCode:   failures.CodeBuildFailed,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			binaryExecutor := &stubBinaryExecutor{executionError: testCase.executionError}
			runner, creationError := stages.NewProcessRunner(binaryExecutor, stages.ProcessRunnerOptions{
				ExecutablePath: "/usr/local/bin/gb-deploy",
				Arguments:      []string{"--log-level", "debug"},
			})
			require.NoError(testInstance, creationError)

			message, messageError := stages.NewMessage(stages.ActionBuild, stages.BuildPayload{BuildScript: "make"})
			require.NoError(testInstance, messageError)

			runError := runner.Run(context.Background(), message)
			require.Equal(testInstance, "/usr/local/bin/gb-deploy", binaryExecutor.recordedPath)
			require.Equal(testInstance, []string{"--log-level", "debug", "stage"}, binaryExecutor.recordedDetails.Arguments)
			require.JSONEq(testInstance, `{"action":"BUILD","payload":{"buildScript":"make","workingDirectory":""}}`, string(binaryExecutor.recordedDetails.StandardInput))

			if len(testCase.expectedCode) == 0 {
				require.NoError(testInstance, runError)
				return
			}
			require.ErrorIs(testInstance, runError, testCase.expectedCode)
			if len(testCase.expectedMessage) > 0 {
				require.Equal(testInstance, testCase.expectedMessage, runError.Error())
			}
		})
	}
}

func TestNewProcessRunnerValidatesOptions(testInstance *testing.T) {
	_, missingExecutorError := stages.NewProcessRunner(nil, stages.ProcessRunnerOptions{ExecutablePath: "gb-deploy"})
	require.ErrorIs(testInstance, missingExecutorError, stages.ErrBinaryExecutorNotConfigured)

	_, missingPathError := stages.NewProcessRunner(&stubBinaryExecutor{}, stages.ProcessRunnerOptions{})
	require.ErrorIs(testInstance, missingPathError, stages.ErrExecutablePathRequired)
}

func TestServeWritesFailurePayload(testInstance *testing.T) {
	dispatcher, creationError := stages.NewDispatcher(zap.NewNop(), map[stages.Action]stages.Executor{
		stages.ActionMigrate: &stubExecutor{executionError: failures.Newf(failures.CodeMigrateFailed, "no files to migrate")},
	})
	require.NoError(testInstance, creationError)

	var output bytes.Buffer
	serveError := stages.Serve(context.Background(), dispatcher, strings.NewReader(`{"action":"MIGRATE","payload":{"paths":[]}}`), &output)
	require.ErrorIs(testInstance, serveError, failures.CodeMigrateFailed)

	var payload stages.FailurePayload
	require.NoError(testInstance, json.Unmarshal(bytes.TrimSpace(output.Bytes()), &payload))
	require.Equal(testInstance, failures.CodeMigrateFailed, payload.Code)
	require.Contains(testInstance, payload.Message, "no files to migrate")
}

func TestServeRejectsMalformedMessage(testInstance *testing.T) {
	dispatcher, creationError := stages.NewDispatcher(zap.NewNop(), nil)
	require.NoError(testInstance, creationError)

	var output bytes.Buffer
	serveError := stages.Serve(context.Background(), dispatcher, strings.NewReader("not json"), &output)
	require.Error(testInstance, serveError)
	require.Contains(testInstance, output.String(), "StageProtocolFailed")
}

func TestServeSucceedsSilently(testInstance *testing.T) {
	dispatcher, creationError := stages.NewDispatcher(zap.NewNop(), map[stages.Action]stages.Executor{stages.ActionClone: &stubExecutor{}})
	require.NoError(testInstance, creationError)

	var output bytes.Buffer
	require.NoError(testInstance, stages.Serve(context.Background(), dispatcher, strings.NewReader(`{"action":"CLONE","payload":{}}`), &output))
	require.Empty(testInstance, output.String())
}
