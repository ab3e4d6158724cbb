package release

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/groupby/gb-deployment-tools/internal/builds"
	"github.com/groupby/gb-deployment-tools/internal/execshell"
	"github.com/groupby/gb-deployment-tools/internal/failures"
	"github.com/groupby/gb-deployment-tools/internal/githubapi"
	"github.com/groupby/gb-deployment-tools/internal/gitrepo"
	"github.com/groupby/gb-deployment-tools/internal/pipeline"
	"github.com/groupby/gb-deployment-tools/internal/preconditions"
	"github.com/groupby/gb-deployment-tools/internal/project"
	"github.com/groupby/gb-deployment-tools/internal/stages"
	"github.com/groupby/gb-deployment-tools/internal/versioning"
)

const (
	// SuccessMessage is reported after a completed release.
	SuccessMessage = "Release succeeded!"

	zeroVersionConstant               = "0.0.0"
	headReferenceConstant             = "HEAD"
	remoteBranchTemplateConstant      = "%s/%s"
	archiveBranchTemplateConstant     = "%s-%s"
	versionCommandTemplateConstant    = "%s %s"
	revisionRangeTemplateConstant     = "%s..%s"
	tagUnchangedTemplateConstant      = "version command left the tag at %s"
	stepErrorTemplateConstant         = "%s: %w"
	readTagStepConstant               = "read latest tag"
	runVersionCommandStepConstant     = "run version command"
	readBumpCommitStepConstant        = "read version commit"
	pushProductionStepConstant        = "push production branch"
	createReleaseStepConstant         = "create host release"
	fetchDevelopmentStepConstant      = "fetch development branch"
	readDevelopmentTipStepConstant    = "read development tip"
	createArchiveStepConstant         = "create archive branch"
	pushArchiveStepConstant           = "push archive branch"
	checkoutDevelopmentStepConstant   = "checkout development branch"
	resetDevelopmentStepConstant      = "reset development branch"
	pushDevelopmentStepConstant       = "push development branch"
	checkoutProductionStepConstant    = "checkout production branch"
	createHostStepConstant            = "connect to release host"
	logMessageReleaseStartedConstant  = "Release started"
	logMessageVersionTaggedConstant   = "Version tagged"
	logMessageRecoveryStateConstant   = "Recovery state recorded before branch rewrite"
	logMessageReleaseNotesFallback    = "Unable to read commit log; using default release notes"
	logMessageReconciliationIssues    = "Pull request reconciliation finished with failures"
	logMessageReleaseFinishedConstant = "Release finished"
	logFieldReleaseTypeConstant       = "release_type"
	logFieldRepositoryConstant        = "repository"
	logFieldPreviousTagConstant       = "previous_tag"
	logFieldNewTagConstant            = "new_tag"
	logFieldDevelopmentTipConstant    = "previous_development_tip"
	logFieldArchiveBranchConstant     = "archive_branch"
	logFieldFailureCountConstant      = "failures"
	loggerMissingMessageConstant      = "release logger not configured"
	repositoryMissingMessageConstant  = "release repository operator not configured"
	validatorMissingMessageConstant   = "release validator not configured"
	resolverMissingMessageConstant    = "release resolver not configured"
	scriptsMissingMessageConstant     = "release script executor not configured"
	publisherMissingMessageConstant   = "release publisher not configured"
	hostFactoryMissingMessageConstant = "release host factory not configured"
)

var (
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrRepositoryNotConfigured indicates the repository operator was missing.
	ErrRepositoryNotConfigured = errors.New(repositoryMissingMessageConstant)
	// ErrValidatorNotConfigured indicates the precondition validator was missing.
	ErrValidatorNotConfigured = errors.New(validatorMissingMessageConstant)
	// ErrResolverNotConfigured indicates the build resolver was missing.
	ErrResolverNotConfigured = errors.New(resolverMissingMessageConstant)
	// ErrScriptExecutorNotConfigured indicates the shell executor was missing.
	ErrScriptExecutorNotConfigured = errors.New(scriptsMissingMessageConstant)
	// ErrPublisherNotConfigured indicates the stage pipeline was missing.
	ErrPublisherNotConfigured = errors.New(publisherMissingMessageConstant)
	// ErrHostFactoryNotConfigured indicates the release host factory was missing.
	ErrHostFactoryNotConfigured = errors.New(hostFactoryMissingMessageConstant)
)

// RepositoryOperator exposes the git operations used by a release.
type RepositoryOperator interface {
	Status(executionContext context.Context, repositoryPath string) (gitrepo.Status, error)
	CurrentBranch(executionContext context.Context, repositoryPath string) (string, error)
	LatestTag(executionContext context.Context, repositoryPath string) (string, error)
	RevParse(executionContext context.Context, repositoryPath string, reference string) (string, error)
	RemoteURL(executionContext context.Context, repositoryPath string, remoteName string) (string, error)
	Fetch(executionContext context.Context, repositoryPath string, remoteName string, references ...string) error
	Checkout(executionContext context.Context, repositoryPath string, branch string) error
	CheckoutFrom(executionContext context.Context, repositoryPath string, branch string, startPoint string) error
	Reset(executionContext context.Context, repositoryPath string, mode gitrepo.ResetMode, target string) error
	Push(executionContext context.Context, repositoryPath string, options gitrepo.PushOptions) error
	Log(executionContext context.Context, repositoryPath string, revisionRange string) ([]gitrepo.Commit, error)
}

// PreconditionValidator runs the ordered precondition checks.
type PreconditionValidator interface {
	Validate(executionContext context.Context, request preconditions.Request) error
}

// BuildResolver converts build tokens into descriptors and renders transient versions.
type BuildResolver interface {
	Resolve(tokens []string, catalog project.BuildCatalog) []builds.Descriptor
	TransientVersion() string
}

// ScriptExecutor runs the version command.
type ScriptExecutor interface {
	ExecuteShellScript(executionContext context.Context, script string, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Publisher runs the artifact stages.
type Publisher interface {
	Publish(executionContext context.Context, plan pipeline.Plan) (pipeline.Outcome, error)
}

// ReleaseHost exposes the host operations used by a release.
type ReleaseHost interface {
	PullRequestHost
	CreateRelease(executionContext context.Context, repository githubapi.Repository, release githubapi.Release) error
}

// HostFactory connects to the release host with an access token.
type HostFactory func(executionContext context.Context, accessToken string) (ReleaseHost, error)

// Dependencies enumerates the collaborators required by the Service.
type Dependencies struct {
	Logger      *zap.Logger
	Repository  RepositoryOperator
	Validator   PreconditionValidator
	Resolver    BuildResolver
	Scripts     ScriptExecutor
	Publisher   Publisher
	HostFactory HostFactory
}

// Request describes one release invocation.
type Request struct {
	RepositoryPath string
	ReleaseType    string
	AccessToken    string
	// RepoOwner and RepoName override the project configuration.
	RepoOwner     string
	RepoName      string
	Configuration project.Configuration
	// ConfigurationError carries a project file load failure into the precondition checks.
	ConfigurationError error
}

// Result summarizes a completed release.
type Result struct {
	Message        string
	PreviousTag    string
	NewTag         string
	ArchiveBranch  string
	Builds         []builds.Descriptor
	Reconciliation ReconciliationReport
}

// Service coordinates releases.
type Service struct {
	logger      *zap.Logger
	repository  RepositoryOperator
	validator   PreconditionValidator
	resolver    BuildResolver
	scripts     ScriptExecutor
	publisher   Publisher
	hostFactory HostFactory
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	switch {
	case dependencies.Logger == nil:
		return nil, ErrLoggerNotConfigured
	case dependencies.Repository == nil:
		return nil, ErrRepositoryNotConfigured
	case dependencies.Validator == nil:
		return nil, ErrValidatorNotConfigured
	case dependencies.Resolver == nil:
		return nil, ErrResolverNotConfigured
	case dependencies.Scripts == nil:
		return nil, ErrScriptExecutorNotConfigured
	case dependencies.Publisher == nil:
		return nil, ErrPublisherNotConfigured
	case dependencies.HostFactory == nil:
		return nil, ErrHostFactoryNotConfigured
	}
	return &Service{
		logger:      dependencies.Logger,
		repository:  dependencies.Repository,
		validator:   dependencies.Validator,
		resolver:    dependencies.Resolver,
		scripts:     dependencies.Scripts,
		publisher:   dependencies.Publisher,
		hostFactory: dependencies.HostFactory,
	}, nil
}

// Release runs the release steps in order and stops at the first failure.
func (service *Service) Release(executionContext context.Context, request Request) (Result, error) {
	configuration := request.Configuration
	settings := configuration.Config
	repositoryPath := request.RepositoryPath

	accessToken := strings.TrimSpace(request.AccessToken)
	if len(accessToken) == 0 {
		return Result{}, failures.New(failures.CodeMissingAccessToken)
	}
	releaseType, releaseTypeError := versioning.ParseReleaseType(request.ReleaseType)
	if releaseTypeError != nil {
		return Result{}, releaseTypeError
	}

	repository, repositoryError := service.resolveRepository(executionContext, request)
	if repositoryError != nil {
		return Result{}, repositoryError
	}

	validationVersion, _ := versioning.Increment(zeroVersionConstant, releaseType)
	validationError := service.validator.Validate(executionContext, preconditions.Request{
		RepositoryPath: repositoryPath,
		Configuration:  configuration,
		Builds:         service.resolver.Resolve(builds.ReleaseTokens(configuration.Builds, validationVersion), configuration.Builds),
		EnvironmentKey: settings.ProductionEnvironment,
		Policy: preconditions.Policy{
			RequireClean:            true,
			RequireSync:             true,
			RequireProductionBranch: true,
		},
		ConfigurationError: request.ConfigurationError,
	})
	if validationError != nil {
		return Result{}, validationError
	}

	host, hostError := service.hostFactory(executionContext, accessToken)
	if hostError != nil {
		return Result{}, stepFailure(failures.CodeReleaseFailed, createHostStepConstant, hostError)
	}

	service.logger.Info(logMessageReleaseStartedConstant,
		zap.String(logFieldReleaseTypeConstant, string(releaseType)),
		zap.String(logFieldRepositoryConstant, repository.String()))

	result := Result{}
	tagError := service.tagVersion(executionContext, repositoryPath, settings, releaseType, repository, host, &result)
	if tagError != nil {
		return Result{}, tagError
	}

	archiveError := service.archiveDevelopment(executionContext, repositoryPath, settings, &result)
	if archiveError != nil {
		return Result{}, archiveError
	}

	if refreshError := service.refreshDevelopment(executionContext, repositoryPath, settings); refreshError != nil {
		return Result{}, refreshError
	}

	reconciler, reconcilerError := NewReconciler(service.logger, host)
	if reconcilerError != nil {
		return Result{}, failures.Wrap(failures.CodeReleaseFailed, reconcilerError)
	}
	result.Reconciliation = reconciler.Reconcile(executionContext, repository, Branches{
		Production:  settings.ProductionBranch,
		Development: settings.DevelopmentBranch,
	})
	if failedOutcomes := result.Reconciliation.Failures(); len(failedOutcomes) > 0 {
		service.logger.Warn(logMessageReconciliationIssues, zap.Int(logFieldFailureCountConstant, len(failedOutcomes)))
	}

	environment, _ := configuration.Environments.Lookup(settings.ProductionEnvironment)
	releaseVersion := versioning.TrimPrefix(result.NewTag)
	result.Builds = service.resolver.Resolve(builds.ReleaseTokens(configuration.Builds, releaseVersion), configuration.Builds)
	_, publishError := service.publisher.Publish(executionContext, pipeline.Plan{
		CommitType:  stages.CommitTypeRelease,
		Builds:      result.Builds,
		Migrations:  result.Builds,
		Environment: environment,
		Settings:    settings,
	})
	if publishError != nil {
		return Result{}, publishError
	}

	if checkoutError := service.repository.Checkout(executionContext, repositoryPath, settings.ProductionBranch); checkoutError != nil {
		return Result{}, stepFailure(failures.CodeReleaseFailed, checkoutProductionStepConstant, checkoutError)
	}

	service.logger.Info(logMessageReleaseFinishedConstant, zap.String(logFieldNewTagConstant, result.NewTag))
	result.Message = SuccessMessage
	return result, nil
}

func (service *Service) resolveRepository(executionContext context.Context, request Request) (githubapi.Repository, error) {
	settings := request.Configuration.Config
	repository := githubapi.Repository{
		Owner: firstNonEmpty(request.RepoOwner, settings.RepoOwner),
		Name:  firstNonEmpty(request.RepoName, settings.RepoName),
	}

	if len(repository.Owner) == 0 || len(repository.Name) == 0 {
		remoteURL, remoteError := service.repository.RemoteURL(executionContext, request.RepositoryPath, settings.RemoteName)
		if remoteError == nil {
			if parsedRemote, parseError := gitrepo.ParseRemoteURL(remoteURL); parseError == nil {
				repository.Owner = firstNonEmpty(repository.Owner, parsedRemote.Owner)
				repository.Name = firstNonEmpty(repository.Name, parsedRemote.Repository)
			}
		}
	}

	if len(repository.Owner) == 0 {
		return githubapi.Repository{}, failures.New(failures.CodeMissingRepoOwner)
	}
	if len(repository.Name) == 0 {
		return githubapi.Repository{}, failures.New(failures.CodeMissingRepoName)
	}
	return repository, nil
}

func (service *Service) tagVersion(executionContext context.Context, repositoryPath string, settings project.Settings, releaseType versioning.ReleaseType, repository githubapi.Repository, host ReleaseHost, result *Result) error {
	previousTag, previousTagError := service.repository.LatestTag(executionContext, repositoryPath)
	if previousTagError != nil {
		return stepFailure(failures.CodeVersionBumpFailed, readTagStepConstant, previousTagError)
	}

	versionCommand := fmt.Sprintf(versionCommandTemplateConstant, settings.VersionCommand, releaseType)
	if _, commandError := service.scripts.ExecuteShellScript(executionContext, versionCommand, execshell.CommandDetails{WorkingDirectory: repositoryPath}); commandError != nil {
		return stepFailure(failures.CodeVersionBumpFailed, runVersionCommandStepConstant, commandError)
	}

	newTag, newTagError := service.repository.LatestTag(executionContext, repositoryPath)
	if newTagError != nil {
		return stepFailure(failures.CodeVersionBumpFailed, readTagStepConstant, newTagError)
	}
	if newTag == previousTag {
		return failures.Newf(failures.CodeVersionBumpFailed, tagUnchangedTemplateConstant, previousTag)
	}

	bumpHash, bumpHashError := service.repository.RevParse(executionContext, repositoryPath, headReferenceConstant)
	if bumpHashError != nil {
		return stepFailure(failures.CodeVersionBumpFailed, readBumpCommitStepConstant, bumpHashError)
	}

	pushError := service.repository.Push(executionContext, repositoryPath, gitrepo.PushOptions{
		Remote:     settings.RemoteName,
		References: []string{settings.ProductionBranch},
		FollowTags: true,
	})
	if pushError != nil {
		return stepFailure(failures.CodeVersionBumpFailed, pushProductionStepConstant, pushError)
	}

	commits, logError := service.repository.Log(executionContext, repositoryPath, releaseNotesRange(previousTag, newTag))
	if logError != nil {
		service.logger.Warn(logMessageReleaseNotesFallback, zap.Error(logError))
		commits = nil
	}

	releaseError := host.CreateRelease(executionContext, repository, githubapi.Release{
		TagName: newTag,
		Name:    newTag,
		Body:    BuildReleaseNotes(commits, bumpHash),
	})
	if releaseError != nil {
		return stepFailure(failures.CodeReleaseFailed, createReleaseStepConstant, releaseError)
	}

	service.logger.Info(logMessageVersionTaggedConstant,
		zap.String(logFieldPreviousTagConstant, previousTag),
		zap.String(logFieldNewTagConstant, newTag))
	result.PreviousTag = previousTag
	result.NewTag = newTag
	return nil
}

func (service *Service) archiveDevelopment(executionContext context.Context, repositoryPath string, settings project.Settings, result *Result) error {
	remoteDevelopment := fmt.Sprintf(remoteBranchTemplateConstant, settings.RemoteName, settings.DevelopmentBranch)

	if fetchError := service.repository.Fetch(executionContext, repositoryPath, settings.RemoteName, settings.DevelopmentBranch); fetchError != nil {
		return stepFailure(failures.CodeBranchArchiveFailed, fetchDevelopmentStepConstant, fetchError)
	}
	developmentTip, tipError := service.repository.RevParse(executionContext, repositoryPath, remoteDevelopment)
	if tipError != nil {
		return stepFailure(failures.CodeBranchArchiveFailed, readDevelopmentTipStepConstant, tipError)
	}

	archiveBranch := fmt.Sprintf(archiveBranchTemplateConstant, settings.DevelopmentBranch, service.resolver.TransientVersion())
	service.logger.Warn(logMessageRecoveryStateConstant,
		zap.String(logFieldPreviousTagConstant, result.PreviousTag),
		zap.String(logFieldNewTagConstant, result.NewTag),
		zap.String(logFieldDevelopmentTipConstant, developmentTip),
		zap.String(logFieldArchiveBranchConstant, archiveBranch))

	if checkoutError := service.repository.CheckoutFrom(executionContext, repositoryPath, archiveBranch, remoteDevelopment); checkoutError != nil {
		return stepFailure(failures.CodeBranchArchiveFailed, createArchiveStepConstant, checkoutError)
	}
	pushError := service.repository.Push(executionContext, repositoryPath, gitrepo.PushOptions{
		Remote:     settings.RemoteName,
		References: []string{archiveBranch},
	})
	if pushError != nil {
		return stepFailure(failures.CodeBranchArchiveFailed, pushArchiveStepConstant, pushError)
	}

	result.ArchiveBranch = archiveBranch
	return nil
}

func (service *Service) refreshDevelopment(executionContext context.Context, repositoryPath string, settings project.Settings) error {
	remoteDevelopment := fmt.Sprintf(remoteBranchTemplateConstant, settings.RemoteName, settings.DevelopmentBranch)

	if checkoutError := service.repository.CheckoutFrom(executionContext, repositoryPath, settings.DevelopmentBranch, remoteDevelopment); checkoutError != nil {
		return stepFailure(failures.CodeBranchRefreshFailed, checkoutDevelopmentStepConstant, checkoutError)
	}
	if resetError := service.repository.Reset(executionContext, repositoryPath, gitrepo.ResetModeHard, settings.ProductionBranch); resetError != nil {
		return stepFailure(failures.CodeBranchRefreshFailed, resetDevelopmentStepConstant, resetError)
	}
	pushError := service.repository.Push(executionContext, repositoryPath, gitrepo.PushOptions{
		Remote:     settings.RemoteName,
		References: []string{settings.DevelopmentBranch},
		Force:      true,
	})
	if pushError != nil {
		return stepFailure(failures.CodeBranchRefreshFailed, pushDevelopmentStepConstant, pushError)
	}
	return nil
}

// releaseNotesRange covers the whole history up to newTag on a first release.
func releaseNotesRange(previousTag string, newTag string) string {
	if len(previousTag) == 0 {
		return newTag
	}
	return fmt.Sprintf(revisionRangeTemplateConstant, previousTag, newTag)
}

func stepFailure(code failures.Code, step string, cause error) error {
	return failures.Wrap(code, fmt.Errorf(stepErrorTemplateConstant, step, cause))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); len(trimmed) > 0 {
			return trimmed
		}
	}
	return ""
}
