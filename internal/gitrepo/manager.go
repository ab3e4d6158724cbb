package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/groupby/gb-deployment-tools/internal/execshell"
)

const (
	gitExecutorMissingMessageConstant           = "git executor not configured"
	repositoryPathRequiredMessageConstant       = "repository path must be provided"
	gitTerminalPromptEnvironmentNameConstant    = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentDisableConstant = "0"
	gitStatusSubcommandConstant                 = "status"
	gitStatusPorcelainFlagConstant              = "--porcelain=v2"
	gitStatusBranchFlagConstant                 = "--branch"
	gitRevParseSubcommandConstant               = "rev-parse"
	gitAbbreviatedReferenceFlagConstant         = "--abbrev-ref"
	gitHeadReferenceConstant                    = "HEAD"
	gitCheckoutSubcommandConstant               = "checkout"
	gitCheckoutResetBranchFlagConstant          = "-B"
	gitResetSubcommandConstant                  = "reset"
	gitPushSubcommandConstant                   = "push"
	gitForceFlagConstant                        = "--force"
	gitFollowTagsFlagConstant                   = "--follow-tags"
	gitFetchSubcommandConstant                  = "fetch"
	gitAddSubcommandConstant                    = "add"
	gitAddAllFlagConstant                       = "--all"
	gitCommitSubcommandConstant                 = "commit"
	gitMessageFlagConstant                      = "-m"
	gitLogSubcommandConstant                    = "log"
	gitLogFormatFlagConstant                    = "--pretty=format:%H%x1f%s"
	gitDescribeSubcommandConstant               = "describe"
	gitDescribeTagsFlagConstant                 = "--tags"
	gitDescribeAbbreviationFlagConstant         = "--abbrev=0"
	gitDescribeNoNamesMessageConstant           = "No names found"
	gitDescribeNoTagsMessageConstant            = "No tags can describe"
	gitRemoteSubcommandConstant                 = "remote"
	gitRemoteGetURLSubcommandConstant           = "get-url"
	logFieldSeparatorConstant                   = "\x1f"
	lineSeparatorConstant                       = "\n"
	statusHeaderPrefixConstant                  = "# "
	statusBranchHeadKeyConstant                 = "branch.head"
	statusBranchUpstreamKeyConstant             = "branch.upstream"
	statusBranchAheadBehindKeyConstant          = "branch.ab"
	statusOrdinaryEntryConstant                 = "1"
	statusRenamedEntryConstant                  = "2"
	statusUnmergedEntryConstant                 = "u"
	statusUntrackedEntryConstant                = "?"
	statusOrdinaryFieldCountConstant            = 9
	statusRenamedFieldCountConstant             = 10
	statusUnmergedFieldCountConstant            = 11
	statusUntrackedFieldCountConstant           = 2
	statusRenamedPathSeparatorConstant          = "\t"
	statusUnchangedMarkerConstant               = '.'
	statusDeletedMarkerConstant                 = 'D'
	statusRenamedMarkerConstant                 = 'R'
	statusCopiedMarkerConstant                  = 'C'
	statusAheadPrefixConstant                   = "+"
	statusBehindPrefixConstant                  = "-"
	statusParseErrorTemplateConstant            = "unable to parse status line %q: %w"
	emptyOutputMessageConstant                  = "git produced no output"
	malformedStatusEntryMessageConstant         = "malformed status entry"
)

// ResetMode selects the git reset strategy.
type ResetMode string

// Supported reset modes.
const (
	ResetModeHard  ResetMode = ResetMode("--hard")
	ResetModeMixed ResetMode = ResetMode("--mixed")
	ResetModeSoft  ResetMode = ResetMode("--soft")
)

// ErrGitExecutorNotConfigured indicates the git executor dependency was missing.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)

// ErrRepositoryPathRequired indicates an empty repository path was supplied.
var ErrRepositoryPathRequired = errors.New(repositoryPathRequiredMessageConstant)

var errMalformedStatusEntry = errors.New(malformedStatusEntryMessageConstant)

// GitExecutor runs git commands.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Status summarizes the working tree and its relation to the upstream branch.
type Status struct {
	Branch     string
	Upstream   string
	Ahead      int
	Behind     int
	Untracked  []string
	Modified   []string
	Conflicted []string
	Deleted    []string
	Renamed    []string
}

// IsClean reports whether the working tree has no pending changes of any kind.
func (status Status) IsClean() bool {
	return len(status.Untracked) == 0 &&
		len(status.Modified) == 0 &&
		len(status.Conflicted) == 0 &&
		len(status.Deleted) == 0 &&
		len(status.Renamed) == 0
}

// IsSynced reports whether the branch is neither ahead nor behind its upstream.
func (status Status) IsSynced() bool {
	return status.Ahead == 0 && status.Behind == 0
}

// Commit is one entry of the commit log.
type Commit struct {
	Hash    string
	Message string
}

// PushOptions configures a push.
type PushOptions struct {
	Remote     string
	References []string
	Force      bool
	FollowTags bool
}

// RepositoryManager exposes the git operations used by the pipelines.
type RepositoryManager struct {
	executor GitExecutor
}

// NewRepositoryManager constructs a RepositoryManager.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// Status reads the porcelain v2 status of the repository at repositoryPath.
func (manager *RepositoryManager) Status(executionContext context.Context, repositoryPath string) (Status, error) {
	output, statusError := manager.run(executionContext, repositoryPath, gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant, gitStatusBranchFlagConstant)
	if statusError != nil {
		return Status{}, statusError
	}
	return ParseStatus(output)
}

// CurrentBranch returns the checked out branch name.
func (manager *RepositoryManager) CurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	return manager.runTrimmed(executionContext, repositoryPath, gitRevParseSubcommandConstant, gitAbbreviatedReferenceFlagConstant, gitHeadReferenceConstant)
}

// RevParse resolves reference to a commit hash.
func (manager *RepositoryManager) RevParse(executionContext context.Context, repositoryPath string, reference string) (string, error) {
	return manager.runTrimmed(executionContext, repositoryPath, gitRevParseSubcommandConstant, reference)
}

// LatestTag returns the most recent tag reachable from HEAD, or an empty
// string when the history carries no tags yet.
func (manager *RepositoryManager) LatestTag(executionContext context.Context, repositoryPath string) (string, error) {
	tag, describeError := manager.runTrimmed(executionContext, repositoryPath, gitDescribeSubcommandConstant, gitDescribeTagsFlagConstant, gitDescribeAbbreviationFlagConstant)
	if describeError != nil {
		if isMissingTagFailure(describeError) {
			return "", nil
		}
		return "", describeError
	}
	return tag, nil
}

func isMissingTagFailure(describeError error) bool {
	var failedError execshell.CommandFailedError
	if !errors.As(describeError, &failedError) {
		return false
	}
	standardError := failedError.Result.StandardError
	return strings.Contains(standardError, gitDescribeNoNamesMessageConstant) || strings.Contains(standardError, gitDescribeNoTagsMessageConstant)
}

// RemoteURL returns the configured URL of remoteName.
func (manager *RepositoryManager) RemoteURL(executionContext context.Context, repositoryPath string, remoteName string) (string, error) {
	return manager.runTrimmed(executionContext, repositoryPath, gitRemoteSubcommandConstant, gitRemoteGetURLSubcommandConstant, remoteName)
}

// Checkout switches to branch.
func (manager *RepositoryManager) Checkout(executionContext context.Context, repositoryPath string, branch string) error {
	_, checkoutError := manager.run(executionContext, repositoryPath, gitCheckoutSubcommandConstant, branch)
	return checkoutError
}

// CheckoutFrom creates or resets branch at startPoint and switches to it.
func (manager *RepositoryManager) CheckoutFrom(executionContext context.Context, repositoryPath string, branch string, startPoint string) error {
	_, checkoutError := manager.run(executionContext, repositoryPath, gitCheckoutSubcommandConstant, gitCheckoutResetBranchFlagConstant, branch, startPoint)
	return checkoutError
}

// Reset moves the current branch to target using mode.
func (manager *RepositoryManager) Reset(executionContext context.Context, repositoryPath string, mode ResetMode, target string) error {
	_, resetError := manager.run(executionContext, repositoryPath, gitResetSubcommandConstant, string(mode), target)
	return resetError
}

// Fetch updates remote tracking references for remoteName.
func (manager *RepositoryManager) Fetch(executionContext context.Context, repositoryPath string, remoteName string, references ...string) error {
	arguments := append([]string{gitFetchSubcommandConstant, remoteName}, references...)
	_, fetchError := manager.run(executionContext, repositoryPath, arguments...)
	return fetchError
}

// Push publishes references to a remote.
func (manager *RepositoryManager) Push(executionContext context.Context, repositoryPath string, options PushOptions) error {
	arguments := []string{gitPushSubcommandConstant}
	if options.Force {
		arguments = append(arguments, gitForceFlagConstant)
	}
	if options.FollowTags {
		arguments = append(arguments, gitFollowTagsFlagConstant)
	}
	arguments = append(arguments, options.Remote)
	arguments = append(arguments, options.References...)
	_, pushError := manager.run(executionContext, repositoryPath, arguments...)
	return pushError
}

// AddAll stages every change in the working tree.
func (manager *RepositoryManager) AddAll(executionContext context.Context, repositoryPath string) error {
	_, addError := manager.run(executionContext, repositoryPath, gitAddSubcommandConstant, gitAddAllFlagConstant)
	return addError
}

// Commit records staged changes with message.
func (manager *RepositoryManager) Commit(executionContext context.Context, repositoryPath string, message string) error {
	_, commitError := manager.run(executionContext, repositoryPath, gitCommitSubcommandConstant, gitMessageFlagConstant, message)
	return commitError
}

// Log lists commits in revisionRange, newest first.
func (manager *RepositoryManager) Log(executionContext context.Context, repositoryPath string, revisionRange string) ([]Commit, error) {
	arguments := []string{gitLogSubcommandConstant, gitLogFormatFlagConstant}
	if len(strings.TrimSpace(revisionRange)) > 0 {
		arguments = append(arguments, revisionRange)
	}
	output, logError := manager.run(executionContext, repositoryPath, arguments...)
	if logError != nil {
		return nil, logError
	}
	return ParseLog(output), nil
}

// ParseStatus interprets git status --porcelain=v2 --branch output.
func ParseStatus(output string) (Status, error) {
	status := Status{}
	for _, line := range strings.Split(output, lineSeparatorConstant) {
		trimmedLine := strings.TrimRight(line, "\r")
		if len(strings.TrimSpace(trimmedLine)) == 0 {
			continue
		}

		if strings.HasPrefix(trimmedLine, statusHeaderPrefixConstant) {
			if headerError := applyStatusHeader(&status, strings.TrimPrefix(trimmedLine, statusHeaderPrefixConstant)); headerError != nil {
				return Status{}, fmt.Errorf(statusParseErrorTemplateConstant, trimmedLine, headerError)
			}
			continue
		}

		entryType, _, _ := strings.Cut(trimmedLine, " ")
		switch entryType {
		case statusOrdinaryEntryConstant:
			fields := strings.SplitN(trimmedLine, " ", statusOrdinaryFieldCountConstant)
			if len(fields) < statusOrdinaryFieldCountConstant {
				return Status{}, fmt.Errorf(statusParseErrorTemplateConstant, trimmedLine, errMalformedStatusEntry)
			}
			classifyChange(&status, fields[1], fields[statusOrdinaryFieldCountConstant-1])
		case statusRenamedEntryConstant:
			fields := strings.SplitN(trimmedLine, " ", statusRenamedFieldCountConstant)
			if len(fields) < statusRenamedFieldCountConstant {
				return Status{}, fmt.Errorf(statusParseErrorTemplateConstant, trimmedLine, errMalformedStatusEntry)
			}
			path, _, _ := strings.Cut(fields[statusRenamedFieldCountConstant-1], statusRenamedPathSeparatorConstant)
			status.Renamed = append(status.Renamed, path)
		case statusUnmergedEntryConstant:
			fields := strings.SplitN(trimmedLine, " ", statusUnmergedFieldCountConstant)
			if len(fields) < statusUnmergedFieldCountConstant {
				return Status{}, fmt.Errorf(statusParseErrorTemplateConstant, trimmedLine, errMalformedStatusEntry)
			}
			status.Conflicted = append(status.Conflicted, fields[statusUnmergedFieldCountConstant-1])
		case statusUntrackedEntryConstant:
			fields := strings.SplitN(trimmedLine, " ", statusUntrackedFieldCountConstant)
			if len(fields) == statusUntrackedFieldCountConstant {
				status.Untracked = append(status.Untracked, fields[1])
			}
		}
	}
	return status, nil
}

// ParseLog interprets log output produced with a unit-separated hash and subject.
func ParseLog(output string) []Commit {
	commits := make([]Commit, 0)
	for _, line := range strings.Split(output, lineSeparatorConstant) {
		hash, message, found := strings.Cut(strings.TrimRight(line, "\r"), logFieldSeparatorConstant)
		if !found || len(strings.TrimSpace(hash)) == 0 {
			continue
		}
		commits = append(commits, Commit{Hash: strings.TrimSpace(hash), Message: strings.TrimSpace(message)})
	}
	return commits
}

func applyStatusHeader(status *Status, header string) error {
	key, value, _ := strings.Cut(header, " ")
	switch key {
	case statusBranchHeadKeyConstant:
		status.Branch = value
	case statusBranchUpstreamKeyConstant:
		status.Upstream = value
	case statusBranchAheadBehindKeyConstant:
		aheadField, behindField, _ := strings.Cut(value, " ")
		ahead, aheadError := strconv.Atoi(strings.TrimPrefix(aheadField, statusAheadPrefixConstant))
		if aheadError != nil {
			return aheadError
		}
		behind, behindError := strconv.Atoi(strings.TrimPrefix(behindField, statusBehindPrefixConstant))
		if behindError != nil {
			return behindError
		}
		status.Ahead = ahead
		status.Behind = behind
	}
	return nil
}

func classifyChange(status *Status, changeMarkers string, path string) {
	for _, marker := range changeMarkers {
		switch marker {
		case statusDeletedMarkerConstant:
			status.Deleted = append(status.Deleted, path)
			return
		case statusRenamedMarkerConstant, statusCopiedMarkerConstant:
			status.Renamed = append(status.Renamed, path)
			return
		}
	}
	for _, marker := range changeMarkers {
		if marker != statusUnchangedMarkerConstant {
			status.Modified = append(status.Modified, path)
			return
		}
	}
}

func (manager *RepositoryManager) runTrimmed(executionContext context.Context, repositoryPath string, arguments ...string) (string, error) {
	output, runError := manager.run(executionContext, repositoryPath, arguments...)
	if runError != nil {
		return "", runError
	}
	trimmedOutput := strings.TrimSpace(output)
	if len(trimmedOutput) == 0 {
		return "", errors.New(emptyOutputMessageConstant)
	}
	return trimmedOutput, nil
}

func (manager *RepositoryManager) run(executionContext context.Context, repositoryPath string, arguments ...string) (string, error) {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return "", ErrRepositoryPathRequired
	}
	result, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     trimmedRepositoryPath,
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptEnvironmentDisableConstant},
	})
	if executionError != nil {
		return "", executionError
	}
	return result.StandardOutput, nil
}
