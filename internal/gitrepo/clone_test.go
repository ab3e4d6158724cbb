package gitrepo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/require"

	"github.com/groupby/gb-deployment-tools/internal/gitrepo"
)

func createSourceRepository(testInstance *testing.T) string {
	testInstance.Helper()
	sourcePath := filepath.Join(testInstance.TempDir(), "builds")

	repository, initError := git.PlainInit(sourcePath, false)
	require.NoError(testInstance, initError)

	require.NoError(testInstance, os.WriteFile(filepath.Join(sourcePath, "manifest.json"), []byte("{}\n"), 0o644))

	worktree, worktreeError := repository.Worktree()
	require.NoError(testInstance, worktreeError)
	_, addError := worktree.Add("manifest.json")
	require.NoError(testInstance, addError)
	_, commitError := worktree.Commit("seed manifest", &git.CommitOptions{
		Author: &object.Signature{Name: "Builds", Email: "builds@example.com", When: time.Now()},
	})
	require.NoError(testInstance, commitError)

	return sourcePath
}

func TestClonerClonesLocalRepository(testInstance *testing.T) {
	sourcePath := createSourceRepository(testInstance)
	destinationPath := filepath.Join(testInstance.TempDir(), "checkout")

	cloneError := gitrepo.NewCloner().Clone(context.Background(), gitrepo.CloneOptions{Source: sourcePath, Destination: destinationPath})
	require.NoError(testInstance, cloneError)
	require.FileExists(testInstance, filepath.Join(destinationPath, "manifest.json"))
}

func TestClonerValidatesOptions(testInstance *testing.T) {
	cloner := gitrepo.NewCloner()

	require.ErrorIs(testInstance, cloner.Clone(context.Background(), gitrepo.CloneOptions{Destination: "checkout"}), gitrepo.ErrCloneSourceRequired)
	require.ErrorIs(testInstance, cloner.Clone(context.Background(), gitrepo.CloneOptions{Source: "../builds"}), gitrepo.ErrCloneDestinationRequired)
}

func TestClonerReportsMissingSource(testInstance *testing.T) {
	destinationPath := filepath.Join(testInstance.TempDir(), "checkout")
	cloneError := gitrepo.NewCloner().Clone(context.Background(), gitrepo.CloneOptions{
		Source:      filepath.Join(testInstance.TempDir(), "missing"),
		Destination: destinationPath,
	})
	require.Error(testInstance, cloneError)
}

type recordedCredentials struct {
	username string
	password string
	present  bool
}

func TestClonerSendsAuthenticationToHTTPRemotes(testInstance *testing.T) {
	testCases := []struct {
		name     string
		options  gitrepo.CloneOptions
		expected recordedCredentials
	}{
		{
			name:     "token_credentials",
			options:  gitrepo.CloneOptions{Auth: gitrepo.TokenAuthentication("secret-token")},
			expected: recordedCredentials{username: "x-access-token", password: "secret-token", present: true},
		},
		{
			name:     "anonymous",
			options:  gitrepo.CloneOptions{},
			expected: recordedCredentials{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			credentialsChannel := make(chan recordedCredentials, 1)
			server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
				username, password, present := request.BasicAuth()
				select {
				case credentialsChannel <- recordedCredentials{username: username, password: password, present: present}:
				default:
				}
				responseWriter.WriteHeader(http.StatusUnauthorized)
			}))
			defer server.Close()

			options := testCase.options
			options.Source = server.URL + "/org/private-builds.git"
			options.Destination = filepath.Join(testInstance.TempDir(), "checkout")

			require.Error(testInstance, gitrepo.NewCloner().Clone(context.Background(), options))
			require.Equal(testInstance, testCase.expected, <-credentialsChannel)
		})
	}
}

func TestTokenAuthentication(testInstance *testing.T) {
	require.Equal(testInstance, &githttp.BasicAuth{Username: "x-access-token", Password: "secret-token"}, gitrepo.TokenAuthentication("secret-token"))
}

func TestUsesHTTPTransport(testInstance *testing.T) {
	testCases := []struct {
		name     string
		source   string
		expected bool
	}{
		{name: "https", source: "https://github.com/org/builds.git", expected: true},
		{name: "http_uppercase", source: "HTTP://git.example.com/builds.git", expected: true},
		{name: "scp_style_ssh", source: "git@github.com:org/builds.git", expected: false},
		{name: "ssh_url", source: "ssh://git@github.com/org/builds.git", expected: false},
		{name: "local_path", source: "../builds", expected: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, gitrepo.UsesHTTPTransport(testCase.source))
		})
	}
}
