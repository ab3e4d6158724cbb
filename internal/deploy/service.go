package deploy

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/groupby/gb-deployment-tools/internal/builds"
	"github.com/groupby/gb-deployment-tools/internal/pipeline"
	"github.com/groupby/gb-deployment-tools/internal/preconditions"
	"github.com/groupby/gb-deployment-tools/internal/project"
	"github.com/groupby/gb-deployment-tools/internal/stages"
)

const (
	// SuccessMessage is reported after a completed deploy.
	SuccessMessage = "Deploy succeeded!"

	logMessageDeployStartedConstant  = "Deploy started"
	logMessageDeployFinishedConstant = "Deploy finished"
	logFieldEnvironmentConstant      = "environment"
	logFieldBuildsConstant           = "builds"
	logFieldTransientBuildsConstant  = "transient_builds"
	loggerMissingMessageConstant     = "deploy logger not configured"
	validatorMissingMessageConstant  = "deploy validator not configured"
	resolverMissingMessageConstant   = "deploy resolver not configured"
	publisherMissingMessageConstant  = "deploy publisher not configured"
)

var (
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrValidatorNotConfigured indicates the precondition validator was missing.
	ErrValidatorNotConfigured = errors.New(validatorMissingMessageConstant)
	// ErrResolverNotConfigured indicates the build resolver was missing.
	ErrResolverNotConfigured = errors.New(resolverMissingMessageConstant)
	// ErrPublisherNotConfigured indicates the stage pipeline was missing.
	ErrPublisherNotConfigured = errors.New(publisherMissingMessageConstant)
)

// PreconditionValidator runs the ordered precondition checks.
type PreconditionValidator interface {
	Validate(executionContext context.Context, request preconditions.Request) error
}

// BuildResolver converts build tokens into descriptors.
type BuildResolver interface {
	Resolve(tokens []string, catalog project.BuildCatalog) []builds.Descriptor
}

// Publisher runs the artifact stages.
type Publisher interface {
	Publish(executionContext context.Context, plan pipeline.Plan) (pipeline.Outcome, error)
}

// Dependencies enumerates the collaborators required by the Service.
type Dependencies struct {
	Logger    *zap.Logger
	Validator PreconditionValidator
	Resolver  BuildResolver
	Publisher Publisher
}

// Request describes one deploy invocation.
type Request struct {
	RepositoryPath string
	BuildTokens    []string
	EnvironmentKey string
	Configuration  project.Configuration
	// ConfigurationError carries a project file load failure into the precondition checks.
	ConfigurationError error
}

// Result summarizes a completed deploy.
type Result struct {
	Message     string
	Environment project.Environment
	Builds      []builds.Descriptor
	Stages      []stages.Action
}

// Service coordinates deploys.
type Service struct {
	logger    *zap.Logger
	validator PreconditionValidator
	resolver  BuildResolver
	publisher Publisher
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Validator == nil {
		return nil, ErrValidatorNotConfigured
	}
	if dependencies.Resolver == nil {
		return nil, ErrResolverNotConfigured
	}
	if dependencies.Publisher == nil {
		return nil, ErrPublisherNotConfigured
	}
	return &Service{
		logger:    dependencies.Logger,
		validator: dependencies.Validator,
		resolver:  dependencies.Resolver,
		publisher: dependencies.Publisher,
	}, nil
}

// Deploy validates the request and publishes the builds. Builds without a
// semantic version are compiled and migrated first; released builds are
// committed as already present in the artifact repository.
func (service *Service) Deploy(executionContext context.Context, request Request) (Result, error) {
	configuration := request.Configuration
	descriptors := service.resolver.Resolve(request.BuildTokens, configuration.Builds)

	validationError := service.validator.Validate(executionContext, preconditions.Request{
		RepositoryPath: request.RepositoryPath,
		Configuration:  configuration,
		Builds:         descriptors,
		EnvironmentKey: request.EnvironmentKey,
		Policy: preconditions.Policy{
			RequireClean: true,
			RequireSync:  configuration.Config.RequireSync,
		},
		ConfigurationError: request.ConfigurationError,
	})
	if validationError != nil {
		return Result{}, validationError
	}

	environment, _ := configuration.Environments.Lookup(request.EnvironmentKey)
	transientBuilds := TransientBuilds(descriptors)

	service.logger.Info(logMessageDeployStartedConstant,
		zap.String(logFieldEnvironmentConstant, request.EnvironmentKey),
		zap.Strings(logFieldBuildsConstant, tokens(descriptors)),
		zap.Int(logFieldTransientBuildsConstant, len(transientBuilds)))

	outcome, publishError := service.publisher.Publish(executionContext, pipeline.Plan{
		CommitType:  stages.CommitTypeDeploy,
		Builds:      descriptors,
		Migrations:  transientBuilds,
		Environment: environment,
		Settings:    configuration.Config,
	})
	if publishError != nil {
		return Result{}, publishError
	}

	service.logger.Info(logMessageDeployFinishedConstant, zap.String(logFieldEnvironmentConstant, request.EnvironmentKey))
	return Result{
		Message:     SuccessMessage,
		Environment: environment,
		Builds:      descriptors,
		Stages:      outcome.Completed,
	}, nil
}

// TransientBuilds returns the descriptors lacking a semantic version.
func TransientBuilds(descriptors []builds.Descriptor) []builds.Descriptor {
	transient := make([]builds.Descriptor, 0)
	for _, descriptor := range descriptors {
		if !descriptor.IsRelease() {
			transient = append(transient, descriptor)
		}
	}
	return transient
}

func tokens(descriptors []builds.Descriptor) []string {
	rendered := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		rendered = append(rendered, descriptor.Token())
	}
	return rendered
}
