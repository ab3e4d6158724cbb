// Package preconditions gates pipeline execution before any side effect occurs.
package preconditions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/groupby/gb-deployment-tools/internal/builds"
	"github.com/groupby/gb-deployment-tools/internal/failures"
	"github.com/groupby/gb-deployment-tools/internal/gitrepo"
	"github.com/groupby/gb-deployment-tools/internal/project"
)

const (
	repositoryReaderMissingMessageConstant = "repository status reader not configured"
	statusReadFailureTemplateConstant      = "unable to read repository status: %w"
	branchReadFailureTemplateConstant      = "unable to read current branch: %w"
	uncleanDetailTemplateConstant          = "%d untracked, %d modified, %d conflicted, %d deleted, %d renamed"
	outOfSyncDetailTemplateConstant        = "%d ahead, %d behind %s"
	transientBuildsDetailTemplateConstant  = "received %s"
	releaseBranchDetailTemplateConstant    = "on %s, expected %s"
	buildListSeparatorConstant             = ", "
)

// ErrRepositoryReaderNotConfigured indicates the repository status dependency was missing.
var ErrRepositoryReaderNotConfigured = errors.New(repositoryReaderMissingMessageConstant)

// RepositoryReader exposes the working tree queries used by validation.
type RepositoryReader interface {
	Status(executionContext context.Context, repositoryPath string) (gitrepo.Status, error)
	CurrentBranch(executionContext context.Context, repositoryPath string) (string, error)
}

// Policy selects which repository checks apply to a run.
type Policy struct {
	RequireClean            bool
	RequireSync             bool
	RequireProductionBranch bool
}

// Request carries everything a validation pass inspects.
type Request struct {
	RepositoryPath string
	Configuration  project.Configuration
	Builds         []builds.Descriptor
	EnvironmentKey string
	Policy         Policy
	// ConfigurationError is a project file load failure. It is reported after
	// the repository checks, in place of the configuration check.
	ConfigurationError error
}

// Validator runs the ordered precondition checks.
type Validator struct {
	repository RepositoryReader
}

// NewValidator constructs a Validator.
func NewValidator(repository RepositoryReader) (*Validator, error) {
	if repository == nil {
		return nil, ErrRepositoryReaderNotConfigured
	}
	return &Validator{repository: repository}, nil
}

// Validate runs every applicable check in order and returns the first failure.
func (validator *Validator) Validate(executionContext context.Context, request Request) error {
	if request.Policy.RequireClean || request.Policy.RequireSync {
		status, statusError := validator.repository.Status(executionContext, request.RepositoryPath)
		if statusError != nil {
			return failures.Wrap(failures.CodeRepoUnclean, fmt.Errorf(statusReadFailureTemplateConstant, statusError))
		}
		if request.Policy.RequireClean && !status.IsClean() {
			return failures.Newf(failures.CodeRepoUnclean, uncleanDetailTemplateConstant,
				len(status.Untracked), len(status.Modified), len(status.Conflicted), len(status.Deleted), len(status.Renamed))
		}
		if request.Policy.RequireSync && !status.IsSynced() {
			return failures.Newf(failures.CodeRepoOutOfSync, outOfSyncDetailTemplateConstant, status.Ahead, status.Behind, status.Upstream)
		}
	}

	if request.ConfigurationError != nil {
		return request.ConfigurationError
	}
	if configurationError := request.Configuration.Validate(); configurationError != nil {
		return configurationError
	}

	if buildsError := ValidateBuilds(request.Builds, request.Configuration.Builds); buildsError != nil {
		return buildsError
	}

	if _, environmentExists := request.Configuration.Environments.Lookup(request.EnvironmentKey); !environmentExists {
		return failures.WithChoices(failures.CodeInvalidEnvironment, request.Configuration.Environments.Names())
	}

	if IsProductionEnvironment(request.Configuration, request.EnvironmentKey) {
		if versionError := ValidateProductionVersions(request.Builds); versionError != nil {
			return versionError
		}
	}

	if request.Policy.RequireProductionBranch {
		currentBranch, branchError := validator.repository.CurrentBranch(executionContext, request.RepositoryPath)
		if branchError != nil {
			return failures.Wrap(failures.CodeInvalidReleaseBranch, fmt.Errorf(branchReadFailureTemplateConstant, branchError))
		}
		productionBranch := request.Configuration.Config.ProductionBranch
		if currentBranch != productionBranch {
			return failures.Newf(failures.CodeInvalidReleaseBranch, releaseBranchDetailTemplateConstant, currentBranch, productionBranch)
		}
	}

	return nil
}

// ValidateBuilds requires at least one build and that every name exists in the catalog.
func ValidateBuilds(descriptors []builds.Descriptor, catalog project.BuildCatalog) error {
	if len(descriptors) == 0 {
		return failures.WithChoices(failures.CodeInvalidBuilds, catalog.Names())
	}
	for _, descriptor := range descriptors {
		if _, exists := catalog[descriptor.Name]; !exists {
			return failures.WithChoices(failures.CodeInvalidBuilds, catalog.Names())
		}
	}
	return nil
}

// ValidateProductionVersions rejects builds that do not carry a semantic version.
func ValidateProductionVersions(descriptors []builds.Descriptor) error {
	transientTokens := make([]string, 0)
	for _, descriptor := range descriptors {
		if !descriptor.IsRelease() {
			transientTokens = append(transientTokens, descriptor.Name)
		}
	}
	if len(transientTokens) == 0 {
		return nil
	}
	return failures.Newf(failures.CodeMissingVersionForProduction, transientBuildsDetailTemplateConstant, strings.Join(transientTokens, buildListSeparatorConstant))
}

// IsProductionEnvironment reports whether environmentKey addresses the configured production environment.
func IsProductionEnvironment(configuration project.Configuration, environmentKey string) bool {
	productionEnvironment := configuration.Config.ProductionEnvironment
	if environmentKey == productionEnvironment {
		return true
	}
	environment, exists := configuration.Environments.Lookup(environmentKey)
	return exists && environment.Name == productionEnvironment
}
