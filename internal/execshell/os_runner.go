package execshell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const (
	environmentSeparatorConstant = "="
	processWaitDelayConstant     = 5 * time.Second
)

// OSCommandRunner starts git, shell scripts, and gb-deploy stage workers as child processes.
type OSCommandRunner struct {
	standardErrorMirror io.Writer
}

// OSCommandRunnerOption customises an OSCommandRunner.
type OSCommandRunnerOption func(runner *OSCommandRunner)

// WithStandardErrorMirror copies child standard error to writer while the
// child runs. Stage workers log there, so their entries reach the parent's
// output as they happen. The captured copy is still returned in the result.
func WithStandardErrorMirror(writer io.Writer) OSCommandRunnerOption {
	return func(runner *OSCommandRunner) {
		runner.standardErrorMirror = writer
	}
}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner(options ...OSCommandRunnerOption) *OSCommandRunner {
	runner := &OSCommandRunner{}
	for _, option := range options {
		if option != nil {
			option(runner)
		}
	}
	return runner
}

// Run starts the command and waits for it. A non-zero exit is returned as a
// result with its exit code; a cancelled or expired context is returned as an error.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	process := exec.CommandContext(executionContext, string(command.Name), command.Details.Arguments...)
	process.WaitDelay = processWaitDelayConstant
	process.Dir = command.Details.WorkingDirectory
	if len(command.Details.EnvironmentVariables) > 0 {
		process.Env = MergeEnvironment(os.Environ(), command.Details.EnvironmentVariables)
	}
	if len(command.Details.StandardInput) > 0 {
		process.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	var capturedOutput, capturedError bytes.Buffer
	process.Stdout = &capturedOutput
	process.Stderr = &capturedError
	if runner.standardErrorMirror != nil {
		process.Stderr = io.MultiWriter(&capturedError, runner.standardErrorMirror)
	}

	runError := process.Run()
	if contextError := executionContext.Err(); contextError != nil {
		return ExecutionResult{}, contextError
	}

	result := ExecutionResult{StandardOutput: capturedOutput.String(), StandardError: capturedError.String()}
	if runError == nil {
		return result, nil
	}
	var exitError *exec.ExitError
	if !errors.As(runError, &exitError) {
		return ExecutionResult{}, runError
	}
	result.ExitCode = exitError.ExitCode()
	return result, nil
}

// MergeEnvironment returns base with overrides applied. Overridden keys are
// replaced in place; new keys are appended in sorted order.
func MergeEnvironment(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	applied := make(map[string]struct{}, len(overrides))
	for _, assignment := range base {
		key, _, _ := strings.Cut(assignment, environmentSeparatorConstant)
		if value, overridden := overrides[key]; overridden {
			merged = append(merged, key+environmentSeparatorConstant+value)
			applied[key] = struct{}{}
			continue
		}
		merged = append(merged, assignment)
	}

	remainingKeys := make([]string, 0, len(overrides))
	for key := range overrides {
		if _, done := applied[key]; !done {
			remainingKeys = append(remainingKeys, key)
		}
	}
	sort.Strings(remainingKeys)
	for _, key := range remainingKeys {
		merged = append(merged, key+environmentSeparatorConstant+overrides[key])
	}
	return merged
}
