package gitrepo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groupby/gb-deployment-tools/internal/execshell"
	"github.com/groupby/gb-deployment-tools/internal/gitrepo"
)

const (
	testRepositoryPathConstant = "/workspace/widgets"
	testPorcelainOutputConstant = "# branch.oid 4f2c1d0\n" +
		"# branch.head master\n" +
		"# branch.upstream origin/master\n" +
		"# branch.ab +2 -1\n" +
		"1 .M N... 100644 100644 100644 abc abc src/app.js\n" +
		"1 D. N... 100644 000000 000000 abc 000 src/old.js\n" +
		"2 R. N... 100644 100644 100644 abc abc R100 src/new name.js\tsrc/original.js\n" +
		"u UU N... 100644 100644 100644 100644 abc abc abc src/conflict.js\n" +
		"? notes.txt\n"
)

type stubGitExecutor struct {
	outputs          []string
	errors           []error
	recordedCommands []execshell.CommandDetails
}

func (executor *stubGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.recordedCommands = append(executor.recordedCommands, details)
	invocationIndex := len(executor.recordedCommands) - 1
	if invocationIndex < len(executor.errors) && executor.errors[invocationIndex] != nil {
		return execshell.ExecutionResult{}, executor.errors[invocationIndex]
	}
	if invocationIndex < len(executor.outputs) {
		return execshell.ExecutionResult{StandardOutput: executor.outputs[invocationIndex]}, nil
	}
	return execshell.ExecutionResult{}, nil
}

func TestNewRepositoryManagerRequiresExecutor(testInstance *testing.T) {
	manager, creationError := gitrepo.NewRepositoryManager(nil)
	require.ErrorIs(testInstance, creationError, gitrepo.ErrGitExecutorNotConfigured)
	require.Nil(testInstance, manager)
}

func TestStatusParsesPorcelainOutput(testInstance *testing.T) {
	executor := &stubGitExecutor{outputs: []string{testPorcelainOutputConstant}}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	status, statusError := manager.Status(context.Background(), testRepositoryPathConstant)
	require.NoError(testInstance, statusError)

	require.Equal(testInstance, "master", status.Branch)
	require.Equal(testInstance, "origin/master", status.Upstream)
	require.Equal(testInstance, 2, status.Ahead)
	require.Equal(testInstance, 1, status.Behind)
	require.Equal(testInstance, []string{"src/app.js"}, status.Modified)
	require.Equal(testInstance, []string{"src/old.js"}, status.Deleted)
	require.Equal(testInstance, []string{"src/new name.js"}, status.Renamed)
	require.Equal(testInstance, []string{"src/conflict.js"}, status.Conflicted)
	require.Equal(testInstance, []string{"notes.txt"}, status.Untracked)
	require.False(testInstance, status.IsClean())
	require.False(testInstance, status.IsSynced())

	require.Len(testInstance, executor.recordedCommands, 1)
	recordedCommand := executor.recordedCommands[0]
	require.Equal(testInstance, []string{"status", "--porcelain=v2", "--branch"}, recordedCommand.Arguments)
	require.Equal(testInstance, testRepositoryPathConstant, recordedCommand.WorkingDirectory)
	require.Equal(testInstance, "0", recordedCommand.EnvironmentVariables["GIT_TERMINAL_PROMPT"])
}

func TestParseStatusCleanRepository(testInstance *testing.T) {
	status, parseError := gitrepo.ParseStatus("# branch.oid abc\n# branch.head develop\n# branch.upstream origin/develop\n# branch.ab +0 -0\n")
	require.NoError(testInstance, parseError)
	require.True(testInstance, status.IsClean())
	require.True(testInstance, status.IsSynced())
}

func TestParseStatusRejectsMalformedEntries(testInstance *testing.T) {
	_, parseError := gitrepo.ParseStatus("1 .M N...\n")
	require.Error(testInstance, parseError)
}

func TestRepositoryManagerCommandArguments(testInstance *testing.T) {
	testCases := []struct {
		name              string
		invoke            func(manager *gitrepo.RepositoryManager) error
		expectedArguments []string
	}{
		{
			name: "force_push",
			invoke: func(manager *gitrepo.RepositoryManager) error {
				return manager.Push(context.Background(), testRepositoryPathConstant, gitrepo.PushOptions{Remote: "origin", References: []string{"develop"}, Force: true})
			},
			expectedArguments: []string{"push", "--force", "origin", "develop"},
		},
		{
			name: "push_with_tags",
			invoke: func(manager *gitrepo.RepositoryManager) error {
				return manager.Push(context.Background(), testRepositoryPathConstant, gitrepo.PushOptions{Remote: "origin", References: []string{"master"}, FollowTags: true})
			},
			expectedArguments: []string{"push", "--follow-tags", "origin", "master"},
		},
		{
			name: "checkout_from",
			invoke: func(manager *gitrepo.RepositoryManager) error {
				return manager.CheckoutFrom(context.Background(), testRepositoryPathConstant, "develop-archive", "origin/develop")
			},
			expectedArguments: []string{"checkout", "-B", "develop-archive", "origin/develop"},
		},
		{
			name: "hard_reset",
			invoke: func(manager *gitrepo.RepositoryManager) error {
				return manager.Reset(context.Background(), testRepositoryPathConstant, gitrepo.ResetModeHard, "master")
			},
			expectedArguments: []string{"reset", "--hard", "master"},
		},
		{
			name: "commit",
			invoke: func(manager *gitrepo.RepositoryManager) error {
				return manager.Commit(context.Background(), testRepositoryPathConstant, "[RELEASE]: widget@1.3.0")
			},
			expectedArguments: []string{"commit", "-m", "[RELEASE]: widget@1.3.0"},
		},
		{
			name: "add_all",
			invoke: func(manager *gitrepo.RepositoryManager) error {
				return manager.AddAll(context.Background(), testRepositoryPathConstant)
			},
			expectedArguments: []string{"add", "--all"},
		},
		{
			name: "fetch",
			invoke: func(manager *gitrepo.RepositoryManager) error {
				return manager.Fetch(context.Background(), testRepositoryPathConstant, "origin", "develop")
			},
			expectedArguments: []string{"fetch", "origin", "develop"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &stubGitExecutor{}
			manager, creationError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, creationError)

			require.NoError(testInstance, testCase.invoke(manager))
			require.Len(testInstance, executor.recordedCommands, 1)
			require.Equal(testInstance, testCase.expectedArguments, executor.recordedCommands[0].Arguments)
		})
	}
}

func TestLogParsesCommitRecords(testInstance *testing.T) {
	executor := &stubGitExecutor{outputs: []string{"aaa\x1f1.3.0\nbbb\x1fFix search paging\nccc\x1fAdd widget theme\n"}}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	commits, logError := manager.Log(context.Background(), testRepositoryPathConstant, "1.2.0..1.3.0")
	require.NoError(testInstance, logError)
	require.Equal(testInstance, []gitrepo.Commit{
		{Hash: "aaa", Message: "1.3.0"},
		{Hash: "bbb", Message: "Fix search paging"},
		{Hash: "ccc", Message: "Add widget theme"},
	}, commits)
	require.Equal(testInstance, []string{"log", "--pretty=format:%H%x1f%s", "1.2.0..1.3.0"}, executor.recordedCommands[0].Arguments)
}

func TestSingleValueQueriesTrimOutputAndPropagateErrors(testInstance *testing.T) {
	executor := &stubGitExecutor{outputs: []string{"1.2.0\n", ""}, errors: []error{nil, errors.New("fatal: No names found")}}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	tag, tagError := manager.LatestTag(context.Background(), testRepositoryPathConstant)
	require.NoError(testInstance, tagError)
	require.Equal(testInstance, "1.2.0", tag)

	_, branchError := manager.CurrentBranch(context.Background(), testRepositoryPathConstant)
	require.ErrorContains(testInstance, branchError, "No names found")
}

func TestLatestTagWithoutTags(testInstance *testing.T) {
	testCases := []struct {
		name          string
		failure       error
		expectedTag   string
		expectedError string
	}{
		{
			name:    "no_names_found",
			failure: execshell.CommandFailedError{Result: execshell.ExecutionResult{ExitCode: 128, StandardError: "fatal: No names found, cannot describe anything.\n"}},
		},
		{
			name:    "no_tags_describe_head",
			failure: execshell.CommandFailedError{Result: execshell.ExecutionResult{ExitCode: 128, StandardError: "fatal: No tags can describe '4f2c1d0'.\n"}},
		},
		{
			name:          "other_git_failure",
			failure:       execshell.CommandFailedError{Result: execshell.ExecutionResult{ExitCode: 128, StandardError: "fatal: not a git repository\n"}},
			expectedError: "not a git repository",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &stubGitExecutor{errors: []error{testCase.failure}}
			manager, creationError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, creationError)

			tag, tagError := manager.LatestTag(context.Background(), testRepositoryPathConstant)
			if len(testCase.expectedError) > 0 {
				require.ErrorContains(testInstance, tagError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, tagError)
			require.Equal(testInstance, testCase.expectedTag, tag)
		})
	}
}

func TestRepositoryPathIsRequired(testInstance *testing.T) {
	manager, creationError := gitrepo.NewRepositoryManager(&stubGitExecutor{})
	require.NoError(testInstance, creationError)

	_, statusError := manager.Status(context.Background(), " ")
	require.ErrorIs(testInstance, statusError, gitrepo.ErrRepositoryPathRequired)
}
