package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	unknownActionTemplateConstant   = "unknown stage action %q"
	logMessageStageStartedConstant  = "Stage started"
	logMessageStageFinishedConstant = "Stage finished"
	logMessageStageFailedConstant   = "Stage failed"
	logFieldActionConstant          = "action"
	logFieldFailureCodeConstant     = "failure_code"
)

// ErrLoggerNotConfigured indicates a logger dependency was missing.
var ErrLoggerNotConfigured = errors.New("stage logger not configured")

// Executor performs one stage for a decoded payload.
type Executor interface {
	Execute(executionContext context.Context, payload json.RawMessage) error
}

// UnknownActionError reports a message whose action has no registered executor.
type UnknownActionError struct {
	Action Action
}

// Error describes the unknown action.
func (actionError UnknownActionError) Error() string {
	return fmt.Sprintf(unknownActionTemplateConstant, actionError.Action)
}

// Dispatcher routes messages to executors.
type Dispatcher struct {
	logger    *zap.Logger
	executors map[Action]Executor
}

// NewDispatcher constructs a Dispatcher with the provided executor registry.
func NewDispatcher(logger *zap.Logger, executors map[Action]Executor) (*Dispatcher, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	registry := make(map[Action]Executor, len(executors))
	for action, executor := range executors {
		if executor != nil {
			registry[action] = executor
		}
	}
	return &Dispatcher{logger: logger, executors: registry}, nil
}

// Dispatch runs the executor registered for message.Action. Failures always
// carry a failure code, falling back to the generic code of the action.
func (dispatcher *Dispatcher) Dispatch(executionContext context.Context, message Message) error {
	executor, registered := dispatcher.executors[message.Action]
	if !registered {
		return failures.Wrap(message.Action.FailureCode(), UnknownActionError{Action: message.Action})
	}

	actionField := zap.String(logFieldActionConstant, string(message.Action))
	dispatcher.logger.Debug(logMessageStageStartedConstant, actionField)

	executionError := executor.Execute(executionContext, message.Payload)
	if executionError != nil {
		if _, coded := failures.CodeOf(executionError); !coded {
			executionError = failures.Wrap(message.Action.FailureCode(), executionError)
		}
		code, _ := failures.CodeOf(executionError)
		dispatcher.logger.Warn(logMessageStageFailedConstant, actionField, zap.String(logFieldFailureCodeConstant, string(code)), zap.Error(executionError))
		return executionError
	}

	dispatcher.logger.Debug(logMessageStageFinishedConstant, actionField)
	return nil
}
