package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/groupby/gb-deployment-tools/internal/builds"
	"github.com/groupby/gb-deployment-tools/internal/deploy"
	"github.com/groupby/gb-deployment-tools/internal/execshell"
	"github.com/groupby/gb-deployment-tools/internal/githubapi"
	"github.com/groupby/gb-deployment-tools/internal/githubauth"
	"github.com/groupby/gb-deployment-tools/internal/gitrepo"
	"github.com/groupby/gb-deployment-tools/internal/pipeline"
	"github.com/groupby/gb-deployment-tools/internal/preconditions"
	"github.com/groupby/gb-deployment-tools/internal/project"
	"github.com/groupby/gb-deployment-tools/internal/release"
	"github.com/groupby/gb-deployment-tools/internal/stages"
)

const (
	shellExecutorCreationErrorTemplate     = "unable to construct shell executor: %w"
	repositoryManagerCreationErrorTemplate = "unable to construct repository manager: %w"
	executablePathErrorTemplateConstant    = "unable to locate the gb-deploy executable: %w"
	logMessageStageIsolationConstant       = "Stage isolation selected"
	logFieldStageIsolationConstant         = "stage_isolation"
)

// collaborators groups the process-level clients shared by one command run.
type collaborators struct {
	executor          *execshell.ShellExecutor
	repositoryManager *gitrepo.RepositoryManager
}

func newCollaborators(logger *zap.Logger) (collaborators, error) {
	executor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if executorError != nil {
		return collaborators{}, fmt.Errorf(shellExecutorCreationErrorTemplate, executorError)
	}
	repositoryManager, managerError := gitrepo.NewRepositoryManager(executor)
	if managerError != nil {
		return collaborators{}, fmt.Errorf(repositoryManagerCreationErrorTemplate, managerError)
	}
	return collaborators{executor: executor, repositoryManager: repositoryManager}, nil
}

// loadProjectConfiguration reads the gb-deploy namespace from the located
// configuration file, falling back to package.json in the working directory.
func (application *Application) loadProjectConfiguration() (project.Configuration, error) {
	projectFilePath := application.configurationMetadata.ConfigFileUsed
	if len(projectFilePath) == 0 {
		projectFilePath = filepath.Join(application.workingDirectory, project.DefaultProjectFileName)
	}

	configuration, loadError := project.LoadFile(projectFilePath)
	if loadError != nil {
		return project.Configuration{}, loadError
	}
	if len(application.isolationOverride) > 0 {
		configuration.Config.StageIsolation = application.isolationOverride
	}
	return configuration, nil
}

func (application *Application) newDeployService(logger *zap.Logger, configuration project.Configuration) (deploy.Deployer, error) {
	shared, collaboratorsError := newCollaborators(logger)
	if collaboratorsError != nil {
		return nil, collaboratorsError
	}

	validator, validatorError := preconditions.NewValidator(shared.repositoryManager)
	if validatorError != nil {
		return nil, validatorError
	}

	publisher, publisherError := application.newPublisher(logger, configuration.Config, shared)
	if publisherError != nil {
		return nil, publisherError
	}

	service, serviceError := deploy.NewService(deploy.Dependencies{
		Logger:    logger,
		Validator: validator,
		Resolver:  builds.NewResolver(builds.SystemClock{}),
		Publisher: publisher,
	})
	if serviceError != nil {
		return nil, serviceError
	}
	return service, nil
}

func (application *Application) newReleaseService(logger *zap.Logger, configuration project.Configuration) (release.Releaser, error) {
	shared, collaboratorsError := newCollaborators(logger)
	if collaboratorsError != nil {
		return nil, collaboratorsError
	}

	validator, validatorError := preconditions.NewValidator(shared.repositoryManager)
	if validatorError != nil {
		return nil, validatorError
	}

	publisher, publisherError := application.newPublisher(logger, configuration.Config, shared)
	if publisherError != nil {
		return nil, publisherError
	}

	service, serviceError := release.NewService(release.Dependencies{
		Logger:      logger,
		Repository:  shared.repositoryManager,
		Validator:   validator,
		Resolver:    builds.NewResolver(builds.SystemClock{}),
		Scripts:     shared.executor,
		Publisher:   publisher,
		HostFactory: newReleaseHost,
	})
	if serviceError != nil {
		return nil, serviceError
	}
	return service, nil
}

func resolveAccessToken(environmentName string) (string, error) {
	return githubauth.ResolveToken(environmentName, githubauth.DefaultEnvironmentFile)
}

func newReleaseHost(executionContext context.Context, accessToken string) (release.ReleaseHost, error) {
	client, clientError := githubapi.NewClient(executionContext, accessToken, githubapi.Options{})
	if clientError != nil {
		return nil, clientError
	}
	return client, nil
}

func (application *Application) newPublisher(logger *zap.Logger, settings project.Settings, shared collaborators) (*pipeline.Runner, error) {
	stageRunner, runnerError := application.newStageRunner(logger, settings, shared)
	if runnerError != nil {
		return nil, runnerError
	}
	return pipeline.NewRunner(logger, stageRunner)
}

// newStageRunner re-executes this binary per stage unless inline isolation is configured.
// Worker log entries are mirrored to the parent's standard error as they are written.
func (application *Application) newStageRunner(logger *zap.Logger, settings project.Settings, shared collaborators) (stages.Runner, error) {
	logger.Debug(logMessageStageIsolationConstant, zap.String(logFieldStageIsolationConstant, string(settings.StageIsolation)))

	if settings.StageIsolation == project.StageIsolationInline {
		dispatcher, dispatcherError := application.dispatcherFor(logger, shared)
		if dispatcherError != nil {
			return nil, dispatcherError
		}
		inlineRunner, inlineError := stages.NewInlineRunner(dispatcher)
		if inlineError != nil {
			return nil, inlineError
		}
		return inlineRunner, nil
	}

	executablePath, executableError := application.executablePathProvider()
	if executableError != nil {
		return nil, fmt.Errorf(executablePathErrorTemplateConstant, executableError)
	}
	workerExecutor, workerExecutorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(execshell.WithStandardErrorMirror(application.workerLogWriter)))
	if workerExecutorError != nil {
		return nil, fmt.Errorf(shellExecutorCreationErrorTemplate, workerExecutorError)
	}
	processRunner, processError := stages.NewProcessRunner(workerExecutor, stages.ProcessRunnerOptions{
		ExecutablePath: executablePath,
		Arguments:      application.workerArguments(),
		EnvironmentVariables: map[string]string{
			runIdentifierEnvironmentVariable: application.runIdentifier,
		},
	})
	if processError != nil {
		return nil, processError
	}
	return processRunner, nil
}

// workerArguments forwards the resolved logging settings to stage workers.
func (application *Application) workerArguments() []string {
	return []string{
		"--" + logLevelFlagNameConstant, application.configuration.Common.LogLevel,
		"--" + logFormatFlagNameConstant, application.configuration.Common.LogFormat,
	}
}

func (application *Application) newDispatcher(logger *zap.Logger) (*stages.Dispatcher, error) {
	shared, collaboratorsError := newCollaborators(logger)
	if collaboratorsError != nil {
		return nil, collaboratorsError
	}
	return application.dispatcherFor(logger, shared)
}

func (application *Application) dispatcherFor(logger *zap.Logger, shared collaborators) (*stages.Dispatcher, error) {
	cloneExecutor, cloneError := stages.NewCloneExecutor(gitrepo.NewCloner(), resolveAccessToken)
	if cloneError != nil {
		return nil, cloneError
	}
	buildExecutor, buildError := stages.NewBuildExecutor(shared.executor)
	if buildError != nil {
		return nil, buildError
	}
	commitExecutor, commitError := stages.NewCommitExecutor(shared.repositoryManager)
	if commitError != nil {
		return nil, commitError
	}

	return stages.NewDispatcher(logger, map[stages.Action]stages.Executor{
		stages.ActionClone:   cloneExecutor,
		stages.ActionBuild:   buildExecutor,
		stages.ActionMigrate: stages.NewMigrateExecutor(),
		stages.ActionCommit:  commitExecutor,
		stages.ActionCleanup: stages.NewCleanupExecutor(),
	})
}
