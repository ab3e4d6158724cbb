package builds_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/groupby/gb-deployment-tools/internal/builds"
	"github.com/groupby/gb-deployment-tools/internal/project"
)

var transientVersionPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d+$`)

type fixedClock struct {
	now time.Time
}

func (clock *fixedClock) Now() time.Time {
	return clock.now
}

func testCatalog() project.BuildCatalog {
	return project.BuildCatalog{
		"widget": {
			Files: []project.FileDefinition{
				{Source: "dist/widget.bundle.js", Base: "widget"},
				{Source: "dist/styles/widget.css"},
			},
			ResolvedFilePrefix: "static/",
		},
		"empty": {},
	}
}

func TestResolverResolve(testInstance *testing.T) {
	clock := &fixedClock{now: time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)}
	resolver := builds.NewResolver(clock)
	transientVersion := resolver.TransientVersion()

	testCases := []struct {
		name              string
		token             string
		expectedName      string
		expectedVersion   string
		expectedFileNames []string
	}{
		{
			name:              "semantic_version_preserved",
			token:             "widget@1.2.3",
			expectedName:      "widget",
			expectedVersion:   "1.2.3",
			expectedFileNames: []string{"widget-1.2.3.js", "widget-1.2.3.css"},
		},
		{
			name:              "bare_name_gets_transient_version",
			token:             "widget",
			expectedName:      "widget",
			expectedVersion:   transientVersion,
			expectedFileNames: []string{"widget-" + transientVersion + ".js", "widget-" + transientVersion + ".css"},
		},
		{
			name:              "non_semantic_version_replaced",
			token:             "widget@feature-x",
			expectedName:      "widget",
			expectedVersion:   transientVersion,
			expectedFileNames: []string{"widget-" + transientVersion + ".js", "widget-" + transientVersion + ".css"},
		},
		{
			name:            "unknown_name_kept",
			token:           "unknown",
			expectedName:    "unknown",
			expectedVersion: transientVersion,
		},
		{
			name:            "no_files_yields_nil_names",
			token:           "empty@2.0.0",
			expectedName:    "empty",
			expectedVersion: "2.0.0",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			descriptors := resolver.Resolve([]string{testCase.token}, testCatalog())
			require.Len(testInstance, descriptors, 1)

			descriptor := descriptors[0]
			require.Equal(testInstance, testCase.expectedName, descriptor.Name)
			require.Equal(testInstance, testCase.expectedVersion, descriptor.Version)
			require.Equal(testInstance, testCase.expectedFileNames, descriptor.ResolvedFileNames)
			if descriptor.ResolvedFileNames != nil {
				require.Len(testInstance, descriptor.ResolvedFileNames, len(descriptor.Files))
			}
		})
	}
}

func TestTransientVersionFormatAndUniqueness(testInstance *testing.T) {
	clock := &fixedClock{now: time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)}
	resolver := builds.NewResolver(clock)

	firstVersion := resolver.Resolve([]string{"widget"}, testCatalog())[0].Version
	clock.now = clock.now.Add(time.Second)
	secondVersion := resolver.Resolve([]string{"widget"}, testCatalog())[0].Version

	require.Regexp(testInstance, transientVersionPattern, firstVersion)
	require.Regexp(testInstance, transientVersionPattern, secondVersion)
	require.Equal(testInstance, "2024-03-05-1709640000", firstVersion)
	require.NotEqual(testInstance, firstVersion, secondVersion)
}

func TestResolveFileNamesMatchesFileCount(testInstance *testing.T) {
	for name, definition := range testCatalog() {
		files := make([]builds.File, 0, len(definition.Files))
		for _, fileDefinition := range definition.Files {
			files = append(files, builds.File{Source: fileDefinition.Source, Base: fileDefinition.Base})
		}

		resolvedFileNames := builds.ResolveFileNames(files, "1.0.0")
		if len(files) == 0 {
			require.Nil(testInstance, resolvedFileNames, name)
			continue
		}
		require.Len(testInstance, resolvedFileNames, len(files), name)
	}
}

func TestReleaseTokensUsesEveryCatalogEntry(testInstance *testing.T) {
	require.Equal(testInstance, []string{"empty@1.3.0", "widget@1.3.0"}, builds.ReleaseTokens(testCatalog(), "1.3.0"))
}

func TestResolveSkipsBlankTokens(testInstance *testing.T) {
	resolver := builds.NewResolver(nil)
	require.Empty(testInstance, resolver.Resolve([]string{" ", ""}, testCatalog()))
}
