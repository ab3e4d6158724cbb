package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/groupby/gb-deployment-tools/internal/execshell"
	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	// WorkerCommandName is the hidden subcommand that serves one stage message.
	WorkerCommandName = "stage"

	messageEncodeErrorTemplateConstant = "unable to encode %s message: %w"
	executablePathMissingMessage       = "stage executable path not configured"
)

var (
	// ErrDispatcherNotConfigured indicates the inline runner was constructed without a dispatcher.
	ErrDispatcherNotConfigured = errors.New("stage dispatcher not configured")
	// ErrBinaryExecutorNotConfigured indicates the process runner was constructed without an executor.
	ErrBinaryExecutorNotConfigured = errors.New("stage binary executor not configured")
	// ErrExecutablePathRequired indicates the process runner was constructed without an executable path.
	ErrExecutablePathRequired = errors.New(executablePathMissingMessage)
)

// Runner executes one stage message.
type Runner interface {
	Run(executionContext context.Context, message Message) error
}

// InlineRunner dispatches stage messages in the current process.
type InlineRunner struct {
	dispatcher *Dispatcher
}

// NewInlineRunner constructs an InlineRunner.
func NewInlineRunner(dispatcher *Dispatcher) (*InlineRunner, error) {
	if dispatcher == nil {
		return nil, ErrDispatcherNotConfigured
	}
	return &InlineRunner{dispatcher: dispatcher}, nil
}

// Run dispatches message directly.
func (runner *InlineRunner) Run(executionContext context.Context, message Message) error {
	return runner.dispatcher.Dispatch(executionContext, message)
}

// BinaryExecutor runs an executable.
type BinaryExecutor interface {
	ExecuteBinary(executionContext context.Context, executablePath string, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ProcessRunnerOptions configures a ProcessRunner.
type ProcessRunnerOptions struct {
	ExecutablePath string
	// Arguments are passed before the worker subcommand, for example global flags.
	Arguments            []string
	EnvironmentVariables map[string]string
}

// ProcessRunner executes each stage message in a child process.
type ProcessRunner struct {
	executor BinaryExecutor
	options  ProcessRunnerOptions
}

// NewProcessRunner constructs a ProcessRunner.
func NewProcessRunner(executor BinaryExecutor, options ProcessRunnerOptions) (*ProcessRunner, error) {
	if executor == nil {
		return nil, ErrBinaryExecutorNotConfigured
	}
	if len(strings.TrimSpace(options.ExecutablePath)) == 0 {
		return nil, ErrExecutablePathRequired
	}
	return &ProcessRunner{executor: executor, options: options}, nil
}

// Run sends message to a worker process on standard input. A zero exit status
// is success; otherwise the failure payload on standard output is decoded,
// falling back to the generic failure code of the action.
func (runner *ProcessRunner) Run(executionContext context.Context, message Message) error {
	encodedMessage, encodeError := json.Marshal(message)
	if encodeError != nil {
		return failures.Wrap(message.Action.FailureCode(), fmt.Errorf(messageEncodeErrorTemplateConstant, message.Action, encodeError))
	}

	arguments := append(append([]string{}, runner.options.Arguments...), WorkerCommandName)
	_, executionError := runner.executor.ExecuteBinary(executionContext, runner.options.ExecutablePath, execshell.CommandDetails{
		Arguments:            arguments,
		EnvironmentVariables: runner.options.EnvironmentVariables,
		StandardInput:        encodedMessage,
	})
	if executionError == nil {
		return nil
	}

	var failedError execshell.CommandFailedError
	if errors.As(executionError, &failedError) {
		if failure, decoded := decodeFailurePayload(failedError.Result.StandardOutput); decoded {
			return failure
		}
		return failures.New(message.Action.FailureCode())
	}
	return failures.Wrap(message.Action.FailureCode(), executionError)
}

func decodeFailurePayload(standardOutput string) (*failures.Error, bool) {
	lines := strings.Split(strings.TrimSpace(standardOutput), "\n")
	lastLine := strings.TrimSpace(lines[len(lines)-1])
	if len(lastLine) == 0 {
		return nil, false
	}

	var payload FailurePayload
	if decodeError := json.Unmarshal([]byte(lastLine), &payload); decodeError != nil || len(payload.Code) == 0 {
		return nil, false
	}
	return &failures.Error{Code: payload.Code, Message: payload.Message}, true
}
