package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groupby/gb-deployment-tools/internal/failures"
	"github.com/groupby/gb-deployment-tools/internal/project"
)

const (
	commandUseConstant                   = "deploy [build[@version]...]"
	commandShortDescriptionConstant      = "Publish builds into an environment of the artifact repository"
	commandLongDescriptionConstant       = "deploy compiles builds without a version, migrates them into the artifact repository, and records every requested build in the environment manifest. Production deploys require name@version for every build."
	environmentFlagNameConstant          = "environment"
	environmentFlagShorthandConstant     = "e"
	environmentFlagUsageConstant         = "Environment key declared in the project configuration"
	defaultRepositoryPathConstant        = "."
	configurationProviderMissingMessage  = "project configuration provider not configured"
	serviceProviderMissingMessage        = "deploy service provider not configured"
	serviceCreationErrorTemplateConstant = "unable to construct deploy service: %w"
	resultOutputTemplateConstant         = "%s\n"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider loads the project configuration.
type ConfigurationProvider func() (project.Configuration, error)

// Deployer runs one deploy.
type Deployer interface {
	Deploy(executionContext context.Context, request Request) (Result, error)
}

// ServiceProvider constructs a Deployer for the loaded configuration.
type ServiceProvider func(logger *zap.Logger, configuration project.Configuration) (Deployer, error)

// CommandBuilder assembles the deploy command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	ServiceProvider       ServiceProvider
	WorkingDirectory      string
}

// Build constructs the deploy command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	if builder.ConfigurationProvider == nil {
		return nil, errors.New(configurationProviderMissingMessage)
	}
	if builder.ServiceProvider == nil {
		return nil, errors.New(serviceProviderMissingMessage)
	}

	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE:          builder.run,
	}
	command.Flags().StringP(environmentFlagNameConstant, environmentFlagShorthandConstant, "", environmentFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	environmentKey, flagError := command.Flags().GetString(environmentFlagNameConstant)
	if flagError != nil {
		return flagError
	}

	configuration, configurationError := builder.ConfigurationProvider()
	if configurationError != nil {
		if !errors.Is(configurationError, failures.CodeInvalidProjectConfig) {
			return configurationError
		}
		configuration = project.Configuration{}.WithDefaults()
	}

	logger := resolveLogger(builder.LoggerProvider)
	service, serviceError := builder.ServiceProvider(logger, configuration)
	if serviceError != nil {
		return fmt.Errorf(serviceCreationErrorTemplateConstant, serviceError)
	}

	repositoryPath := strings.TrimSpace(builder.WorkingDirectory)
	if len(repositoryPath) == 0 {
		repositoryPath = defaultRepositoryPathConstant
	}

	result, deployError := service.Deploy(command.Context(), Request{
		RepositoryPath:     repositoryPath,
		BuildTokens:        arguments,
		EnvironmentKey:     strings.TrimSpace(environmentKey),
		Configuration:      configuration,
		ConfigurationError: configurationError,
	})
	if deployError != nil {
		return deployError
	}

	fmt.Fprintf(command.OutOrStdout(), resultOutputTemplateConstant, result.Message)
	return nil
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
