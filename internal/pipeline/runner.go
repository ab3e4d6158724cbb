package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/groupby/gb-deployment-tools/internal/builds"
	"github.com/groupby/gb-deployment-tools/internal/project"
	"github.com/groupby/gb-deployment-tools/internal/stages"
)

const (
	logMessageStageDispatchConstant   = "Running stage"
	logMessageCleanupFailedConstant   = "Cleanup failed"
	logMessagePublishFinishedConstant = "Artifacts published"
	logFieldActionConstant            = "action"
	logFieldCommitTypeConstant        = "commit_type"
	logFieldBuildCountConstant        = "builds"
	logFieldTimeoutConstant           = "timeout"
)

var (
	// ErrLoggerNotConfigured indicates the pipeline was constructed without a logger.
	ErrLoggerNotConfigured = errors.New("pipeline logger not configured")
	// ErrStageRunnerNotConfigured indicates the pipeline was constructed without a stage runner.
	ErrStageRunnerNotConfigured = errors.New("pipeline stage runner not configured")
)

// Plan describes one publication of build artifacts.
type Plan struct {
	CommitType stages.CommitType
	// Builds are recorded by the commit stage.
	Builds []builds.Descriptor
	// Migrations are produced by the build stage and copied into the artifact
	// repository. Build and migrate are skipped when empty.
	Migrations  []builds.Descriptor
	Environment project.Environment
	Settings    project.Settings
}

// Outcome lists the stages that completed.
type Outcome struct {
	Completed []stages.Action
}

// Runner drives the stage sequence through a stages.Runner.
type Runner struct {
	logger      *zap.Logger
	stageRunner stages.Runner
}

// NewRunner constructs a Runner.
func NewRunner(logger *zap.Logger, stageRunner stages.Runner) (*Runner, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if stageRunner == nil {
		return nil, ErrStageRunnerNotConfigured
	}
	return &Runner{logger: logger, stageRunner: stageRunner}, nil
}

// Publish runs Clone, then Build and Migrate when the plan has migrations,
// then Commit. Once the clone succeeded, Cleanup always runs; its failure is
// returned only when no earlier stage failed.
func (runner *Runner) Publish(executionContext context.Context, plan Plan) (outcome Outcome, publishError error) {
	settings := plan.Settings
	repositoryDestination := project.NormalizeDirectory(settings.RepoDestination)

	cloneError := runner.runStage(executionContext, &outcome, settings.StageTimeout, stages.ActionClone, stages.ClonePayload{
		RepoSource:       settings.RepoSource,
		RepoDestination:  repositoryDestination,
		Branch:           settings.RepoBranch,
		TokenEnvironment: settings.TokenEnvironment,
	})
	if cloneError != nil {
		return outcome, cloneError
	}

	defer func() {
		cleanupContext := context.WithoutCancel(executionContext)
		cleanupError := runner.runStage(cleanupContext, &outcome, settings.StageTimeout, stages.ActionCleanup, stages.CleanupPayload{
			RepoDestination: repositoryDestination,
		})
		if cleanupError == nil {
			return
		}
		if publishError != nil {
			runner.logger.Warn(logMessageCleanupFailedConstant, zap.Error(cleanupError))
			return
		}
		publishError = cleanupError
	}()

	if len(plan.Migrations) > 0 {
		buildError := runner.runStage(executionContext, &outcome, settings.StageTimeout, stages.ActionBuild, stages.BuildPayload{
			BuildScript:      plan.Environment.BuildScript,
			WorkingDirectory: project.NormalizeDirectory(settings.LocalBuildsPath),
		})
		if buildError != nil {
			return outcome, buildError
		}

		migrateError := runner.runStage(executionContext, &outcome, settings.StageTimeout, stages.ActionMigrate, stages.MigratePayload{
			Paths: MigrationPaths(plan.Migrations, repositoryDestination, settings.RepoBuildsPath),
		})
		if migrateError != nil {
			return outcome, migrateError
		}
	}

	commitError := runner.runStage(executionContext, &outcome, settings.StageTimeout, stages.ActionCommit, CommitPayload(plan, repositoryDestination))
	if commitError != nil {
		return outcome, commitError
	}

	runner.logger.Info(logMessagePublishFinishedConstant,
		zap.String(logFieldCommitTypeConstant, string(plan.CommitType)),
		zap.Int(logFieldBuildCountConstant, len(plan.Builds)))
	return outcome, nil
}

// MigrationPaths pairs every declared source file with its resolved name in
// the artifact repository builds directory.
func MigrationPaths(descriptors []builds.Descriptor, repositoryDestination string, repositoryBuildsPath string) []stages.PathPair {
	buildsDirectory := filepath.Join(repositoryDestination, project.NormalizeDirectory(repositoryBuildsPath))
	pathPairs := make([]stages.PathPair, 0)
	for _, descriptor := range descriptors {
		for fileIndex, file := range descriptor.Files {
			if fileIndex >= len(descriptor.ResolvedFileNames) {
				break
			}
			pathPairs = append(pathPairs, stages.PathPair{
				Source:      file.Source,
				Destination: filepath.Join(buildsDirectory, descriptor.ResolvedFileNames[fileIndex]),
			})
		}
	}
	return pathPairs
}

// CommitPayload renders the commit stage input for plan.
func CommitPayload(plan Plan, repositoryDestination string) stages.CommitPayload {
	commitBuilds := make([]stages.CommitBuild, 0, len(plan.Builds))
	for _, descriptor := range plan.Builds {
		commitBuilds = append(commitBuilds, stages.CommitBuild{
			Name:               descriptor.Name,
			Version:            descriptor.Version,
			ResolvedFileNames:  descriptor.ResolvedFileNames,
			ResolvedFilePrefix: descriptor.ResolvedFilePrefix,
		})
	}
	return stages.CommitPayload{
		Type:            plan.CommitType,
		Builds:          commitBuilds,
		RepoDestination: repositoryDestination,
		RepoBuildsPath:  project.NormalizeDirectory(plan.Settings.RepoBuildsPath),
		RemoteName:      plan.Settings.RemoteName,
		Branch:          plan.Settings.RepoBranch,
		EnvironmentName: plan.Environment.Name,
		Manifest:        plan.Environment.Manifest,
	}
}

func (runner *Runner) runStage(executionContext context.Context, outcome *Outcome, timeout time.Duration, action stages.Action, payload any) error {
	message, messageError := stages.NewMessage(action, payload)
	if messageError != nil {
		return messageError
	}

	stageContext := executionContext
	if timeout > 0 {
		var cancel context.CancelFunc
		stageContext, cancel = context.WithTimeout(executionContext, timeout)
		defer cancel()
	}

	runner.logger.Info(logMessageStageDispatchConstant, zap.String(logFieldActionConstant, string(action)), zap.Duration(logFieldTimeoutConstant, timeout))
	if runError := runner.stageRunner.Run(stageContext, message); runError != nil {
		return runError
	}
	outcome.Completed = append(outcome.Completed, action)
	return nil
}
