package release

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
	commandUseConstant                   = "release <major|minor|patch>"
	commandShortDescriptionConstant      = "Tag a new version and publish every build as a release"
	commandLongDescriptionConstant       = "release bumps the project version on the production branch, creates a host release, archives and refreshes the development branch, retargets open pull requests, and commits every build at the new version to the artifact repository."
	repoOwnerFlagNameConstant            = "repo-owner"
	repoOwnerFlagUsageConstant           = "Owner of the hosted repository (overrides config.repoOwner)"
	repoNameFlagNameConstant             = "repo-name"
	repoNameFlagUsageConstant            = "Name of the hosted repository (overrides config.repoName)"
	defaultRepositoryPathConstant        = "."
	configurationProviderMissingMessage  = "project configuration provider not configured"
	serviceProviderMissingMessage        = "release service provider not configured"
	serviceCreationErrorTemplateConstant = "unable to construct release service: %w"
	resultOutputTemplateConstant         = "%s\n"
	reviewStateTemplateConstant          = "%w; please review the current state of the repository"
)

// Codes reported after the release began changing the repository.
var sideEffectFailureCodes = map[failures.Code]struct{}{
	failures.CodeVersionBumpFailed:   {},
	failures.CodeBranchArchiveFailed: {},
	failures.CodeBranchRefreshFailed: {},
	failures.CodeReleaseFailed:       {},
	failures.CodeCloneFailed:         {},
	failures.CodeBuildFailed:         {},
	failures.CodeMigrateFailed:       {},
	failures.CodeCommitFailed:        {},
	failures.CodeCleanupFailed:       {},
}

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider loads the project configuration.
type ConfigurationProvider func() (project.Configuration, error)

// TokenResolver reads the release host access token from the named environment variable.
type TokenResolver func(environmentName string) (string, error)

// Releaser runs one release.
type Releaser interface {
	Release(executionContext context.Context, request Request) (Result, error)
}

// ServiceProvider constructs a Releaser for the loaded configuration.
type ServiceProvider func(logger *zap.Logger, configuration project.Configuration) (Releaser, error)

// CommandBuilder assembles the release command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	ServiceProvider       ServiceProvider
	TokenResolver         TokenResolver
	WorkingDirectory      string
}

// Build constructs the release command.
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
		Args:          cobra.MaximumNArgs(1),
		RunE:          builder.run,
	}
	command.Flags().String(repoOwnerFlagNameConstant, "", repoOwnerFlagUsageConstant)
	command.Flags().String(repoNameFlagNameConstant, "", repoNameFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	repoOwner, ownerFlagError := command.Flags().GetString(repoOwnerFlagNameConstant)
	if ownerFlagError != nil {
		return ownerFlagError
	}
	repoName, nameFlagError := command.Flags().GetString(repoNameFlagNameConstant)
	if nameFlagError != nil {
		return nameFlagError
	}

	releaseType := ""
	if len(arguments) > 0 {
		releaseType = arguments[0]
	}

	configuration, configurationError := builder.ConfigurationProvider()
	if configurationError != nil {
		if !errors.Is(configurationError, failures.CodeInvalidProjectConfig) {
			return configurationError
		}
		configuration = project.Configuration{}.WithDefaults()
	}

	accessToken, tokenError := builder.resolveToken(configuration.Config.TokenEnvironment)
	if tokenError != nil {
		return tokenError
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

	result, releaseError := service.Release(command.Context(), Request{
		RepositoryPath:     repositoryPath,
		ReleaseType:        releaseType,
		AccessToken:        accessToken,
		RepoOwner:          strings.TrimSpace(repoOwner),
		RepoName:           strings.TrimSpace(repoName),
		Configuration:      configuration,
		ConfigurationError: configurationError,
	})
	if releaseError != nil {
		return annotateReleaseFailure(releaseError)
	}

	fmt.Fprintf(command.OutOrStdout(), resultOutputTemplateConstant, result.Message)
	return nil
}

// resolveToken leaves a missing token empty so the service reports it in order.
func (builder *CommandBuilder) resolveToken(environmentName string) (string, error) {
	if builder.TokenResolver == nil {
		return "", nil
	}
	accessToken, tokenError := builder.TokenResolver(environmentName)
	if tokenError != nil {
		if errors.Is(tokenError, failures.CodeMissingAccessToken) {
			return "", nil
		}
		return "", tokenError
	}
	return accessToken, nil
}

func annotateReleaseFailure(releaseError error) error {
	code, found := failures.CodeOf(releaseError)
	if !found {
		return releaseError
	}
	if _, sideEffect := sideEffectFailureCodes[code]; !sideEffect {
		return releaseError
	}
	return fmt.Errorf(reviewStateTemplateConstant, releaseError)
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
