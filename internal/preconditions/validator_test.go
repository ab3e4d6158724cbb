package preconditions_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groupby/gb-deployment-tools/internal/builds"
	"github.com/groupby/gb-deployment-tools/internal/failures"
	"github.com/groupby/gb-deployment-tools/internal/gitrepo"
	"github.com/groupby/gb-deployment-tools/internal/preconditions"
	"github.com/groupby/gb-deployment-tools/internal/project"
)

type stubRepositoryReader struct {
	status        gitrepo.Status
	statusError   error
	currentBranch string
	statusCalls   int
}

func (reader *stubRepositoryReader) Status(context.Context, string) (gitrepo.Status, error) {
	reader.statusCalls++
	return reader.status, reader.statusError
}

func (reader *stubRepositoryReader) CurrentBranch(context.Context, string) (string, error) {
	return reader.currentBranch, nil
}

func testConfiguration() project.Configuration {
	return project.Configuration{
		Builds: project.BuildCatalog{
			"widget": {Files: []project.FileDefinition{{Source: "dist/widget.js"}}},
			"search": {Files: []project.FileDefinition{{Source: "dist/search.js"}}},
		},
		Environments: project.EnvironmentCatalog{
			"dev":        {Name: "development", BuildScript: "npm run build", Manifest: "dev.json"},
			"production": {Name: "production", BuildScript: "npm run build", Manifest: "prod.json"},
		},
		Config: project.Settings{RepoSource: "../builds", RepoDestination: "checkout"},
	}.WithDefaults()
}

func TestValidatorValidate(testInstance *testing.T) {
	releaseWidget := builds.Descriptor{Name: "widget", Version: "1.2.3"}
	transientWidget := builds.Descriptor{Name: "widget", Version: "2024-03-05-1709640000"}

	testCases := []struct {
		name         string
		reader       *stubRepositoryReader
		request      preconditions.Request
		expectedCode failures.Code
		expectedText string
	}{
		{
			name:   "clean_repository_passes",
			reader: &stubRepositoryReader{currentBranch: "master"},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				Builds:         []builds.Descriptor{transientWidget},
				EnvironmentKey: "dev",
				Policy:         preconditions.Policy{RequireClean: true},
			},
		},
		{
			name:   "modified_file_rejected",
			reader: &stubRepositoryReader{status: gitrepo.Status{Modified: []string{"src/app.js"}}},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				Builds:         []builds.Descriptor{transientWidget},
				EnvironmentKey: "dev",
				Policy:         preconditions.Policy{RequireClean: true},
			},
			expectedCode: failures.CodeRepoUnclean,
		},
		{
			name:   "behind_upstream_rejected_when_sync_required",
			reader: &stubRepositoryReader{status: gitrepo.Status{Behind: 1, Upstream: "origin/master"}},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				Builds:         []builds.Descriptor{transientWidget},
				EnvironmentKey: "dev",
				Policy:         preconditions.Policy{RequireClean: true, RequireSync: true},
			},
			expectedCode: failures.CodeRepoOutOfSync,
		},
		{
			name:   "unclean_repository_reported_before_configuration_load_failure",
			reader: &stubRepositoryReader{status: gitrepo.Status{Modified: []string{"src/app.js"}}},
			request: preconditions.Request{
				Configuration:      project.Configuration{}.WithDefaults(),
				EnvironmentKey:     "dev",
				Policy:             preconditions.Policy{RequireClean: true},
				ConfigurationError: failures.Newf(failures.CodeInvalidProjectConfig, "no gb-deploy namespace in package.json"),
			},
			expectedCode: failures.CodeRepoUnclean,
		},
		{
			name:   "configuration_load_failure_reported_on_clean_repository",
			reader: &stubRepositoryReader{},
			request: preconditions.Request{
				Configuration:      project.Configuration{}.WithDefaults(),
				EnvironmentKey:     "dev",
				Policy:             preconditions.Policy{RequireClean: true},
				ConfigurationError: failures.Newf(failures.CodeInvalidProjectConfig, "no gb-deploy namespace in package.json"),
			},
			expectedCode: failures.CodeInvalidProjectConfig,
			expectedText: "no gb-deploy namespace",
		},
		{
			name:   "behind_upstream_allowed_without_sync_policy",
			reader: &stubRepositoryReader{status: gitrepo.Status{Behind: 1}},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				Builds:         []builds.Descriptor{transientWidget},
				EnvironmentKey: "dev",
				Policy:         preconditions.Policy{RequireClean: true},
			},
		},
		{
			name:   "missing_configuration_rejected",
			reader: &stubRepositoryReader{},
			request: preconditions.Request{
				Configuration:  project.Configuration{}.WithDefaults(),
				Builds:         []builds.Descriptor{transientWidget},
				EnvironmentKey: "dev",
			},
			expectedCode: failures.CodeInvalidProjectConfig,
		},
		{
			name:   "unknown_build_lists_catalog",
			reader: &stubRepositoryReader{},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				Builds:         []builds.Descriptor{{Name: "unknown", Version: transientWidget.Version}},
				EnvironmentKey: "dev",
			},
			expectedCode: failures.CodeInvalidBuilds,
			expectedText: "<search|widget>",
		},
		{
			name:   "empty_build_list_rejected",
			reader: &stubRepositoryReader{},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				EnvironmentKey: "dev",
			},
			expectedCode: failures.CodeInvalidBuilds,
		},
		{
			name:   "unknown_environment_lists_catalog",
			reader: &stubRepositoryReader{},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				Builds:         []builds.Descriptor{transientWidget},
				EnvironmentKey: "staging",
			},
			expectedCode: failures.CodeInvalidEnvironment,
			expectedText: "<dev|production>",
		},
		{
			name:   "production_requires_semantic_versions",
			reader: &stubRepositoryReader{},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				Builds:         []builds.Descriptor{releaseWidget, {Name: "search", Version: transientWidget.Version}},
				EnvironmentKey: "production",
			},
			expectedCode: failures.CodeMissingVersionForProduction,
			expectedText: "received search",
		},
		{
			name:   "production_with_semantic_versions_passes",
			reader: &stubRepositoryReader{},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				Builds:         []builds.Descriptor{releaseWidget},
				EnvironmentKey: "production",
			},
		},
		{
			name:   "release_branch_enforced",
			reader: &stubRepositoryReader{currentBranch: "develop"},
			request: preconditions.Request{
				Configuration:  testConfiguration(),
				Builds:         []builds.Descriptor{releaseWidget},
				EnvironmentKey: "production",
				Policy:         preconditions.Policy{RequireProductionBranch: true},
			},
			expectedCode: failures.CodeInvalidReleaseBranch,
			expectedText: "on develop, expected master",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			validator, creationError := preconditions.NewValidator(testCase.reader)
			require.NoError(testInstance, creationError)

			validationError := validator.Validate(context.Background(), testCase.request)
			if len(testCase.expectedCode) == 0 {
				require.NoError(testInstance, validationError)
				return
			}
			require.ErrorIs(testInstance, validationError, testCase.expectedCode)
			if len(testCase.expectedText) > 0 {
				require.ErrorContains(testInstance, validationError, testCase.expectedText)
			}
		})
	}
}

func TestValidatorSkipsStatusWithoutRepositoryPolicy(testInstance *testing.T) {
	reader := &stubRepositoryReader{statusError: errors.New("not a git repository")}
	validator, creationError := preconditions.NewValidator(reader)
	require.NoError(testInstance, creationError)

	validationError := validator.Validate(context.Background(), preconditions.Request{
		Configuration:  testConfiguration(),
		Builds:         []builds.Descriptor{{Name: "widget", Version: "1.0.0"}},
		EnvironmentKey: "dev",
	})
	require.NoError(testInstance, validationError)
	require.Zero(testInstance, reader.statusCalls)
}

func TestNewValidatorRequiresReader(testInstance *testing.T) {
	validator, creationError := preconditions.NewValidator(nil)
	require.ErrorIs(testInstance, creationError, preconditions.ErrRepositoryReaderNotConfigured)
	require.Nil(testInstance, validator)
}
