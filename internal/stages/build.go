package stages

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/groupby/gb-deployment-tools/internal/execshell"
	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const buildScriptMissingMessageConstant = "environment declares no buildScript"

// ErrScriptExecutorNotConfigured indicates the build executor was constructed without a shell executor.
var ErrScriptExecutorNotConfigured = errors.New("script executor not configured")

// ScriptExecutor runs shell scripts.
type ScriptExecutor interface {
	ExecuteShellScript(executionContext context.Context, script string, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// BuildExecutor runs the environment build script.
type BuildExecutor struct {
	scripts ScriptExecutor
}

// NewBuildExecutor constructs a BuildExecutor.
func NewBuildExecutor(scripts ScriptExecutor) (*BuildExecutor, error) {
	if scripts == nil {
		return nil, ErrScriptExecutorNotConfigured
	}
	return &BuildExecutor{scripts: scripts}, nil
}

// Execute runs the build script in the payload working directory.
func (executor *BuildExecutor) Execute(executionContext context.Context, payload json.RawMessage) error {
	var buildPayload BuildPayload
	if decodeError := decodePayload(ActionBuild, payload, &buildPayload); decodeError != nil {
		return decodeError
	}

	buildScript := strings.TrimSpace(buildPayload.BuildScript)
	if len(buildScript) == 0 {
		return failures.Newf(failures.CodeBuildFailed, buildScriptMissingMessageConstant)
	}

	_, executionError := executor.scripts.ExecuteShellScript(executionContext, buildScript, execshell.CommandDetails{
		WorkingDirectory: buildPayload.WorkingDirectory,
	})
	if executionError != nil {
		return failures.Wrap(failures.CodeBuildFailed, executionError)
	}
	return nil
}
