package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupby/gb-deployment-tools/internal/failures"
	"github.com/groupby/gb-deployment-tools/internal/project"
	"github.com/groupby/gb-deployment-tools/internal/stages"
	"github.com/groupby/gb-deployment-tools/internal/utils"
)

const (
	testProjectFileContentsConstant = `{
  "name": "storefront",
  "common": {"log_level": "warn"},
  "gb-deploy": {
    "builds": {"widget": {"files": [{"src": "dist/widget.js"}]}},
    "environments": {"production": {"name": "production", "buildScript": "npm run build", "manifest": "prod.json"}},
    "config": {"repoSrc": "git@github.com:groupby/builds.git", "repoDest": "builds/", "stageIsolation": "process"}
  }
}`
	testExecutablePathConstant = "/usr/local/bin/gb-deploy"
)

func writeProjectFile(t *testing.T, contents string) string {
	t.Helper()
	projectFilePath := filepath.Join(t.TempDir(), project.DefaultProjectFileName)
	require.NoError(t, os.WriteFile(projectFilePath, []byte(contents), 0o644))
	return projectFilePath
}

func TestInitializeConfigurationAttachesRunContext(t *testing.T) {
	projectFilePath := writeProjectFile(t, testProjectFileContentsConstant)

	application := NewApplication()
	rootCommand := application.rootCommand
	rootCommand.SetContext(context.Background())
	require.NoError(t, rootCommand.PersistentFlags().Set(configFileFlagNameConstant, projectFilePath))

	require.NoError(t, application.initializeConfiguration(rootCommand))

	require.Equal(t, "warn", application.configuration.Common.LogLevel)
	require.Equal(t, projectFilePath, application.configurationMetadata.ConfigFileUsed)

	_, parseError := uuid.Parse(application.runIdentifier)
	require.NoError(t, parseError)

	runIdentifier, runIdentifierExists := application.commandContextAccessor.RunIdentifier(rootCommand.Context())
	require.True(t, runIdentifierExists)
	require.Equal(t, application.runIdentifier, runIdentifier)

	configurationPath, configurationPathExists := application.commandContextAccessor.ConfigurationFilePath(rootCommand.Context())
	require.True(t, configurationPathExists)
	require.Equal(t, projectFilePath, configurationPath)
}

func TestInitializeConfigurationFlagsOverrideConfiguredValues(t *testing.T) {
	projectFilePath := writeProjectFile(t, testProjectFileContentsConstant)

	application := NewApplication()
	rootCommand := application.rootCommand
	rootCommand.SetContext(context.Background())
	require.NoError(t, rootCommand.PersistentFlags().Set(configFileFlagNameConstant, projectFilePath))
	require.NoError(t, rootCommand.PersistentFlags().Set(logLevelFlagNameConstant, "debug"))
	require.NoError(t, rootCommand.PersistentFlags().Set(logFormatFlagNameConstant, "structured"))
	require.NoError(t, rootCommand.PersistentFlags().Set(isolationFlagNameConstant, "Inline"))

	require.NoError(t, application.initializeConfiguration(rootCommand))

	require.Equal(t, "debug", application.configuration.Common.LogLevel)
	require.Equal(t, "structured", application.configuration.Common.LogFormat)
	require.Equal(t, project.StageIsolationInline, application.isolationOverride)
	require.Equal(t, []string{"--log-level", "debug", "--log-format", "structured"}, application.workerArguments())
}

func TestInitializeConfigurationReusesInheritedRunIdentifier(t *testing.T) {
	t.Setenv(runIdentifierEnvironmentVariable, "parent-run")
	projectFilePath := writeProjectFile(t, testProjectFileContentsConstant)

	application := NewApplication()
	rootCommand := application.rootCommand
	rootCommand.SetContext(context.Background())
	require.NoError(t, rootCommand.PersistentFlags().Set(configFileFlagNameConstant, projectFilePath))

	require.NoError(t, application.initializeConfiguration(rootCommand))

	require.Equal(t, "parent-run", application.runIdentifier)
}

func TestInitializeConfigurationRejectsUnknownLogLevel(t *testing.T) {
	application := NewApplication()
	rootCommand := application.rootCommand
	rootCommand.SetContext(context.Background())
	require.NoError(t, rootCommand.PersistentFlags().Set(configFileFlagNameConstant, writeProjectFile(t, testProjectFileContentsConstant)))
	require.NoError(t, rootCommand.PersistentFlags().Set(logLevelFlagNameConstant, "verbose"))

	initializationError := application.initializeConfiguration(rootCommand)

	require.ErrorContains(t, initializationError, "unsupported log level: verbose")
}

func TestLoadProjectConfiguration(t *testing.T) {
	testCases := []struct {
		name              string
		contents          string
		isolationOverride project.StageIsolation
		expectedIsolation project.StageIsolation
		expectedCode      failures.Code
	}{
		{
			name:              "ConfiguredIsolation",
			contents:          testProjectFileContentsConstant,
			expectedIsolation: project.StageIsolationProcess,
		},
		{
			name:              "FlagOverridesIsolation",
			contents:          testProjectFileContentsConstant,
			isolationOverride: project.StageIsolationInline,
			expectedIsolation: project.StageIsolationInline,
		},
		{
			name:         "MissingNamespace",
			contents:     `{"name": "storefront"}`,
			expectedCode: failures.CodeInvalidProjectConfig,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			application := &Application{
				configurationMetadata: utils.LoadedConfiguration{ConfigFileUsed: writeProjectFile(t, testCase.contents)},
				isolationOverride:     testCase.isolationOverride,
			}

			configuration, loadError := application.loadProjectConfiguration()
			if len(testCase.expectedCode) > 0 {
				require.ErrorIs(t, loadError, testCase.expectedCode)
				return
			}
			require.NoError(t, loadError)
			require.Equal(t, testCase.expectedIsolation, configuration.Config.StageIsolation)
			require.Contains(t, configuration.Builds, "widget")
		})
	}
}

func TestLoadProjectConfigurationFallsBackToWorkingDirectoryPackageFile(t *testing.T) {
	projectFilePath := writeProjectFile(t, testProjectFileContentsConstant)
	application := &Application{workingDirectory: filepath.Dir(projectFilePath)}

	configuration, loadError := application.loadProjectConfiguration()

	require.NoError(t, loadError)
	require.Equal(t, "git@github.com:groupby/builds.git", configuration.Config.RepoSource)
}

func TestNewStageRunnerSelectsIsolation(t *testing.T) {
	application := &Application{
		runIdentifier: "run-1",
		executablePathProvider: func() (string, error) {
			return testExecutablePathConstant, nil
		},
		configuration: ApplicationConfiguration{Common: ApplicationCommonConfiguration{LogLevel: "info", LogFormat: "console"}},
	}
	shared, collaboratorsError := newCollaborators(zap.NewNop())
	require.NoError(t, collaboratorsError)

	inlineRunner, inlineError := application.newStageRunner(zap.NewNop(), project.Settings{StageIsolation: project.StageIsolationInline}, shared)
	require.NoError(t, inlineError)
	require.IsType(t, &stages.InlineRunner{}, inlineRunner)

	processRunner, processError := application.newStageRunner(zap.NewNop(), project.Settings{StageIsolation: project.StageIsolationProcess}, shared)
	require.NoError(t, processError)
	require.IsType(t, &stages.ProcessRunner{}, processRunner)
}

func TestApplicationRegistersCommands(t *testing.T) {
	application := NewApplication()

	commandVisibility := map[string]bool{}
	for _, command := range application.rootCommand.Commands() {
		commandVisibility[command.Name()] = command.Hidden
	}

	require.Contains(t, commandVisibility, "deploy")
	require.Contains(t, commandVisibility, "release")
	require.Contains(t, commandVisibility, "init")
	require.Contains(t, commandVisibility, stages.WorkerCommandName)
	require.True(t, commandVisibility[stages.WorkerCommandName])
	require.False(t, commandVisibility["deploy"])
}

func TestInitCommandWritesScaffoldThroughApplication(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "gb-deploy.yaml")

	application := NewApplication()
	var output bytes.Buffer
	application.rootCommand.SetOut(&output)
	application.rootCommand.SetArgs([]string{"--config", writeProjectFile(t, testProjectFileContentsConstant), "init", "--file", targetPath})

	require.NoError(t, application.Execute())

	writtenConfiguration, loadError := project.LoadFile(targetPath)
	require.NoError(t, loadError)
	require.Equal(t, project.Scaffold().Config.RepoSource, writtenConfiguration.Config.RepoSource)
	require.Contains(t, output.String(), targetPath)
}

func TestStageCommandServesMessageFromStandardInput(t *testing.T) {
	workspace := t.TempDir()
	cloneDirectory := filepath.Join(workspace, "builds")
	require.NoError(t, os.MkdirAll(cloneDirectory, 0o755))

	application := NewApplication()
	var output bytes.Buffer
	application.rootCommand.SetOut(&output)
	application.rootCommand.SetIn(strings.NewReader(`{"action":"CLEANUP","payload":{"repoDest":"` + cloneDirectory + `/"}}`))
	application.rootCommand.SetArgs([]string{"--config", writeProjectFile(t, testProjectFileContentsConstant), stages.WorkerCommandName})

	require.NoError(t, application.Execute())

	require.Empty(t, output.String())
	require.NoDirExists(t, cloneDirectory)
}

func TestStageCommandReportsFailurePayload(t *testing.T) {
	application := NewApplication()
	var output bytes.Buffer
	application.rootCommand.SetOut(&output)
	application.rootCommand.SetIn(strings.NewReader(`{"action":"CLEANUP","payload":{"repoDest":""}}`))
	application.rootCommand.SetArgs([]string{"--config", writeProjectFile(t, testProjectFileContentsConstant), stages.WorkerCommandName})

	executionError := application.Execute()

	require.ErrorIs(t, executionError, failures.CodeCleanupFailed)
	require.Contains(t, output.String(), `"code":"CleanupFailed"`)
}

func TestFallbackConfigurationValuesRegisterCommonKeys(t *testing.T) {
	require.Equal(t, map[string]any{
		"common.log_level":  "info",
		"common.log_format": "console",
		"common.run_id":     "",
	}, fallbackConfigurationValues())
}
