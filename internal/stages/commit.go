package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/groupby/gb-deployment-tools/internal/failures"
	"github.com/groupby/gb-deployment-tools/internal/gitrepo"
	"github.com/groupby/gb-deployment-tools/internal/manifest"
)

const (
	deployCommitPrefixConstant            = "DEPLOY"
	releaseCommitPrefixConstant           = "RELEASE"
	commitMessageTemplateConstant         = "%s: %s"
	commitPrefixWithEnvironmentTemplate   = "[%s:%s]"
	commitPrefixTemplateConstant          = "[%s]"
	commitBuildSeparatorConstant          = "; "
	buildTokenTemplateConstant            = "%s@%s"
	commitPayloadIncompleteMessage        = "repoDest, repoBuildsPath, and an environment manifest are required"
	commitUnknownTypeTemplateConstant     = "unknown commit type %q"
	commitMissingFilesTemplateConstant    = "builds directory %s is missing %s"
	commitMissingManifestTemplateConstant = "builds directory %s has no manifest %s"
	commitListFilesErrorTemplateConstant  = "unable to list %s: %w"
	commitStepErrorTemplateConstant       = "%s: %w"
	commitStageStepConstant               = "stage changes"
	commitRecordStepConstant              = "commit changes"
	commitPushStepConstant                = "push changes"
	missingFilesSeparatorConstant         = ", "
)

// ErrCommitRepositoryNotConfigured indicates the commit executor was constructed without a repository.
var ErrCommitRepositoryNotConfigured = errors.New("commit repository not configured")

// CommitRepository stages, records, and publishes changes.
type CommitRepository interface {
	AddAll(executionContext context.Context, repositoryPath string) error
	Commit(executionContext context.Context, repositoryPath string, message string) error
	Push(executionContext context.Context, repositoryPath string, options gitrepo.PushOptions) error
}

// CommitExecutor verifies migrated artifacts, updates the manifest for
// deploys, and publishes the artifact repository.
type CommitExecutor struct {
	repository CommitRepository
}

// NewCommitExecutor constructs a CommitExecutor.
func NewCommitExecutor(repository CommitRepository) (*CommitExecutor, error) {
	if repository == nil {
		return nil, ErrCommitRepositoryNotConfigured
	}
	return &CommitExecutor{repository: repository}, nil
}

// Execute runs the commit stage for payload.
func (executor *CommitExecutor) Execute(executionContext context.Context, payload json.RawMessage) error {
	var commitPayload CommitPayload
	if decodeError := decodePayload(ActionCommit, payload, &commitPayload); decodeError != nil {
		return decodeError
	}

	if len(strings.TrimSpace(commitPayload.RepoDestination)) == 0 ||
		len(strings.TrimSpace(commitPayload.RepoBuildsPath)) == 0 ||
		len(strings.TrimSpace(commitPayload.Manifest)) == 0 {
		return failures.Newf(failures.CodeCommitFailed, commitPayloadIncompleteMessage)
	}
	if commitPayload.Type != CommitTypeDeploy && commitPayload.Type != CommitTypeRelease {
		return failures.Newf(failures.CodeCommitFailed, commitUnknownTypeTemplateConstant, commitPayload.Type)
	}

	buildsDirectory := filepath.Join(commitPayload.RepoDestination, commitPayload.RepoBuildsPath)
	directoryEntries, listError := os.ReadDir(buildsDirectory)
	if listError != nil {
		return failures.Wrap(failures.CodeCommitFailed, fmt.Errorf(commitListFilesErrorTemplateConstant, buildsDirectory, listError))
	}
	presentFiles := make(map[string]struct{}, len(directoryEntries))
	for _, directoryEntry := range directoryEntries {
		presentFiles[directoryEntry.Name()] = struct{}{}
	}

	missingFiles := make([]string, 0)
	for _, build := range commitPayload.Builds {
		for _, resolvedFileName := range build.ResolvedFileNames {
			if _, present := presentFiles[resolvedFileName]; !present {
				missingFiles = append(missingFiles, resolvedFileName)
			}
		}
	}
	if len(missingFiles) > 0 {
		return failures.Newf(failures.CodeCommitFailed, commitMissingFilesTemplateConstant, buildsDirectory, strings.Join(missingFiles, missingFilesSeparatorConstant))
	}

	if commitPayload.Type == CommitTypeDeploy {
		if _, present := presentFiles[commitPayload.Manifest]; !present {
			return failures.Newf(failures.CodeCommitFailed, commitMissingManifestTemplateConstant, buildsDirectory, commitPayload.Manifest)
		}
		if manifestError := updateManifest(filepath.Join(buildsDirectory, commitPayload.Manifest), commitPayload.Builds); manifestError != nil {
			return failures.Wrap(failures.CodeCommitFailed, manifestError)
		}
	}

	if addError := executor.repository.AddAll(executionContext, commitPayload.RepoDestination); addError != nil {
		return failures.Wrap(failures.CodeCommitFailed, fmt.Errorf(commitStepErrorTemplateConstant, commitStageStepConstant, addError))
	}
	if commitError := executor.repository.Commit(executionContext, commitPayload.RepoDestination, CommitMessage(commitPayload)); commitError != nil {
		return failures.Wrap(failures.CodeCommitFailed, fmt.Errorf(commitStepErrorTemplateConstant, commitRecordStepConstant, commitError))
	}
	pushError := executor.repository.Push(executionContext, commitPayload.RepoDestination, gitrepo.PushOptions{
		Remote:     commitPayload.RemoteName,
		References: []string{commitPayload.Branch},
	})
	if pushError != nil {
		return failures.Wrap(failures.CodeCommitFailed, fmt.Errorf(commitStepErrorTemplateConstant, commitPushStepConstant, pushError))
	}
	return nil
}

// CommitMessage renders the commit subject, for example "[DEPLOY:development]: widget@1.0.0; search@2.1.0".
func CommitMessage(commitPayload CommitPayload) string {
	var prefix string
	switch commitPayload.Type {
	case CommitTypeDeploy:
		prefix = fmt.Sprintf(commitPrefixWithEnvironmentTemplate, deployCommitPrefixConstant, commitPayload.EnvironmentName)
	default:
		prefix = fmt.Sprintf(commitPrefixTemplateConstant, releaseCommitPrefixConstant)
	}

	buildTokens := make([]string, 0, len(commitPayload.Builds))
	for _, build := range commitPayload.Builds {
		buildTokens = append(buildTokens, fmt.Sprintf(buildTokenTemplateConstant, build.Name, build.Version))
	}
	return fmt.Sprintf(commitMessageTemplateConstant, prefix, strings.Join(buildTokens, commitBuildSeparatorConstant))
}

func updateManifest(manifestPath string, commitBuilds []CommitBuild) error {
	current, loadError := manifest.Load(manifestPath)
	if loadError != nil {
		return loadError
	}

	updates := make([]manifest.Update, 0, len(commitBuilds))
	for _, build := range commitBuilds {
		updates = append(updates, manifest.Update{
			Name:  build.Name,
			Entry: manifest.NewEntry(build.Version, build.ResolvedFileNames, build.ResolvedFilePrefix),
		})
	}
	return manifest.Save(manifestPath, manifest.Merge(current, updates))
}
