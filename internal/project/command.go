package project

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	initCommandUseConstant              = "init"
	initCommandShortDescriptionConstant = "Write a boilerplate gb-deploy configuration"
	initCommandLongDescriptionConstant  = "init adds a gb-deploy namespace with placeholder builds, environments, and repository settings to a JSON or YAML project file, creating the file when it does not exist."
	forceFlagNameConstant               = "force"
	forceFlagUsageConstant              = "Overwrite an existing gb-deploy namespace"
	fileFlagNameConstant                = "file"
	fileFlagUsageConstant               = "Project file receiving the namespace"
	// DefaultProjectFileName is the project file used when no configuration file was located.
	DefaultProjectFileName            = "package.json"
	initCompletedTemplateConstant     = "Wrote %s configuration to %s\n"
	logMessageScaffoldWrittenConstant = "Project configuration scaffold written"
	logFieldProjectFileConstant       = "project_file"
	logFieldOverwriteConstant         = "overwrite"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// InitCommandBuilder assembles the init command.
type InitCommandBuilder struct {
	LoggerProvider LoggerProvider
	// DefaultTargetProvider names the file written when --file is omitted.
	DefaultTargetProvider func() string
}

// Build constructs the init command.
func (builder *InitCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           initCommandUseConstant,
		Short:         initCommandShortDescriptionConstant,
		Long:          initCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}
	command.Flags().Bool(forceFlagNameConstant, false, forceFlagUsageConstant)
	command.Flags().String(fileFlagNameConstant, "", fileFlagUsageConstant)

	return command, nil
}

func (builder *InitCommandBuilder) run(command *cobra.Command, _ []string) error {
	overwrite, forceFlagError := command.Flags().GetBool(forceFlagNameConstant)
	if forceFlagError != nil {
		return forceFlagError
	}
	targetPath, fileFlagError := command.Flags().GetString(fileFlagNameConstant)
	if fileFlagError != nil {
		return fileFlagError
	}

	targetPath = strings.TrimSpace(targetPath)
	if len(targetPath) == 0 && builder.DefaultTargetProvider != nil {
		targetPath = strings.TrimSpace(builder.DefaultTargetProvider())
	}
	if len(targetPath) == 0 {
		targetPath = DefaultProjectFileName
	}

	if writeError := WriteScaffold(targetPath, overwrite); writeError != nil {
		return writeError
	}

	if builder.LoggerProvider != nil {
		if logger := builder.LoggerProvider(); logger != nil {
			logger.Info(logMessageScaffoldWrittenConstant,
				zap.String(logFieldProjectFileConstant, targetPath),
				zap.Bool(logFieldOverwriteConstant, overwrite))
		}
	}

	fmt.Fprintf(command.OutOrStdout(), initCompletedTemplateConstant, NamespaceKey, targetPath)
	return nil
}
