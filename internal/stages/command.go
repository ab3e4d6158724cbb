package stages

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	workerCommandShortDescriptionConstant = "Run one pipeline stage read from standard input"
	workerCommandLongDescriptionConstant  = "stage reads a single {action, payload} message from standard input, executes it, and writes a failure payload to standard output when the stage fails."
	dispatcherCreationErrorTemplate       = "unable to construct stage dispatcher: %w"
	dispatcherProviderMissingMessage      = "stage dispatcher provider not configured"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// DispatcherProvider builds the dispatcher used by the worker command.
type DispatcherProvider func(logger *zap.Logger) (*Dispatcher, error)

// CommandBuilder assembles the hidden stage worker command.
type CommandBuilder struct {
	LoggerProvider     LoggerProvider
	DispatcherProvider DispatcherProvider
}

// Build constructs the stage worker command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	if builder.DispatcherProvider == nil {
		return nil, errors.New(dispatcherProviderMissingMessage)
	}

	command := &cobra.Command{
		Use:           WorkerCommandName,
		Short:         workerCommandShortDescriptionConstant,
		Long:          workerCommandLongDescriptionConstant,
		Hidden:        true,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}
	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, _ []string) error {
	logger := resolveLogger(builder.LoggerProvider)

	dispatcher, dispatcherError := builder.DispatcherProvider(logger)
	if dispatcherError != nil {
		return fmt.Errorf(dispatcherCreationErrorTemplate, dispatcherError)
	}

	return Serve(command.Context(), dispatcher, command.InOrStdin(), command.OutOrStdout())
}

func resolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
