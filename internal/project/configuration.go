package project

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	// NamespaceKey is the configuration key holding the project namespace.
	NamespaceKey = "gb-deploy"

	defaultRepoBranchConstant            = "master"
	defaultProductionBranchConstant      = "master"
	defaultDevelopmentBranchConstant     = "develop"
	defaultProductionEnvironmentConstant = "production"
	defaultVersionCommandConstant        = "npm version"
	defaultLocalBuildsPathConstant       = "./"
	defaultRepoBuildsPathConstant        = "./"
	defaultRemoteNameConstant            = "origin"
	defaultTokenEnvironmentConstant      = "GITHUB_CODE"
	defaultStageTimeoutConstant          = 10 * time.Minute
	directorySeparatorConstant           = "/"

	buildsFieldNameConstant            = "builds"
	environmentsFieldNameConstant      = "environments"
	repoSourceFieldNameConstant        = "config.repoSrc"
	repoDestinationFieldNameConstant   = "config.repoDest"
	stageIsolationFieldNameConstant    = "config.stageIsolation"
	missingFieldsTemplateConstant      = "missing or invalid fields [%s]"
	decodeErrorTemplateConstant        = "unable to decode %s namespace: %w"
	decoderCreationErrorTemplate       = "unable to create %s decoder: %w"
	missingFieldsSeparatorConstant     = ", "
	stageIsolationProcessValueConstant = "process"
	stageIsolationInlineValueConstant  = "inline"
)

// StageIsolation selects how stage executors are invoked.
type StageIsolation string

// Supported stage isolation modes.
const (
	StageIsolationProcess StageIsolation = StageIsolation(stageIsolationProcessValueConstant)
	StageIsolationInline  StageIsolation = StageIsolation(stageIsolationInlineValueConstant)
)

// FileDefinition declares one source file of a build and an optional output basename.
type FileDefinition struct {
	Source string `mapstructure:"src" json:"src" yaml:"src"`
	Base   string `mapstructure:"base" json:"base,omitempty" yaml:"base,omitempty"`
}

// BuildDefinition is a catalog entry describing a deployable unit.
type BuildDefinition struct {
	Files              []FileDefinition `mapstructure:"files" json:"files" yaml:"files"`
	ResolvedFilePrefix string           `mapstructure:"resolvedFilePrefix" json:"resolvedFilePrefix,omitempty" yaml:"resolvedFilePrefix,omitempty"`
}

// BuildCatalog maps build names to their definitions.
type BuildCatalog map[string]BuildDefinition

// Environment is a named deployment target.
type Environment struct {
	Name        string `mapstructure:"name" json:"name" yaml:"name"`
	BuildScript string `mapstructure:"buildScript" json:"buildScript" yaml:"buildScript"`
	Manifest    string `mapstructure:"manifest" json:"manifest" yaml:"manifest"`
}

// EnvironmentCatalog maps environment keys to their descriptors.
type EnvironmentCatalog map[string]Environment

// Settings is the repository wiring block of the project configuration.
type Settings struct {
	RepoSource            string         `mapstructure:"repoSrc" json:"repoSrc" yaml:"repoSrc"`
	RepoDestination       string         `mapstructure:"repoDest" json:"repoDest" yaml:"repoDest"`
	LocalBuildsPath       string         `mapstructure:"localBuildsPath" json:"localBuildsPath" yaml:"localBuildsPath"`
	RepoBuildsPath        string         `mapstructure:"repoBuildsPath" json:"repoBuildsPath" yaml:"repoBuildsPath"`
	RepoOwner             string         `mapstructure:"repoOwner" json:"repoOwner" yaml:"repoOwner"`
	RepoName              string         `mapstructure:"repoName" json:"repoName" yaml:"repoName"`
	RepoBranch            string         `mapstructure:"repoBranch" json:"repoBranch,omitempty" yaml:"repoBranch,omitempty"`
	RemoteName            string         `mapstructure:"remoteName" json:"remoteName,omitempty" yaml:"remoteName,omitempty"`
	ProductionBranch      string         `mapstructure:"productionBranch" json:"productionBranch,omitempty" yaml:"productionBranch,omitempty"`
	DevelopmentBranch     string         `mapstructure:"developmentBranch" json:"developmentBranch,omitempty" yaml:"developmentBranch,omitempty"`
	ProductionEnvironment string         `mapstructure:"productionEnvironment" json:"productionEnvironment,omitempty" yaml:"productionEnvironment,omitempty"`
	VersionCommand        string         `mapstructure:"versionCommand" json:"versionCommand,omitempty" yaml:"versionCommand,omitempty"`
	TokenEnvironment      string         `mapstructure:"tokenEnvironment" json:"tokenEnvironment,omitempty" yaml:"tokenEnvironment,omitempty"`
	RequireSync           bool           `mapstructure:"requireSync" json:"requireSync,omitempty" yaml:"requireSync,omitempty"`
	StageTimeout          time.Duration  `mapstructure:"stageTimeout" json:"stageTimeout,omitempty" yaml:"stageTimeout,omitempty"`
	StageIsolation        StageIsolation `mapstructure:"stageIsolation" json:"stageIsolation,omitempty" yaml:"stageIsolation,omitempty"`
}

// Configuration is the typed project namespace.
type Configuration struct {
	Builds       BuildCatalog       `mapstructure:"builds" json:"builds" yaml:"builds"`
	Environments EnvironmentCatalog `mapstructure:"environments" json:"environments" yaml:"environments"`
	Config       Settings           `mapstructure:"config" json:"config" yaml:"config"`
}

// Decode converts the raw configuration namespace into a Configuration with defaults applied.
func Decode(rawNamespace map[string]any) (Configuration, error) {
	var configuration Configuration

	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &configuration,
	})
	if decoderError != nil {
		return Configuration{}, fmt.Errorf(decoderCreationErrorTemplate, NamespaceKey, decoderError)
	}

	if decodeError := decoder.Decode(rawNamespace); decodeError != nil {
		return Configuration{}, failures.Wrap(failures.CodeInvalidProjectConfig, fmt.Errorf(decodeErrorTemplateConstant, NamespaceKey, decodeError))
	}

	return configuration.WithDefaults(), nil
}

// WithDefaults returns a copy with optional settings populated.
func (configuration Configuration) WithDefaults() Configuration {
	settings := configuration.Config
	settings.RepoBranch = defaultString(settings.RepoBranch, defaultRepoBranchConstant)
	settings.RemoteName = defaultString(settings.RemoteName, defaultRemoteNameConstant)
	settings.ProductionBranch = defaultString(settings.ProductionBranch, defaultProductionBranchConstant)
	settings.DevelopmentBranch = defaultString(settings.DevelopmentBranch, defaultDevelopmentBranchConstant)
	settings.ProductionEnvironment = defaultString(settings.ProductionEnvironment, defaultProductionEnvironmentConstant)
	settings.VersionCommand = defaultString(settings.VersionCommand, defaultVersionCommandConstant)
	settings.TokenEnvironment = defaultString(settings.TokenEnvironment, defaultTokenEnvironmentConstant)
	settings.LocalBuildsPath = defaultString(settings.LocalBuildsPath, defaultLocalBuildsPathConstant)
	settings.RepoBuildsPath = defaultString(settings.RepoBuildsPath, defaultRepoBuildsPathConstant)
	settings.StageIsolation = StageIsolation(defaultString(strings.ToLower(string(settings.StageIsolation)), stageIsolationProcessValueConstant))
	if settings.StageTimeout <= 0 {
		settings.StageTimeout = defaultStageTimeoutConstant
	}
	configuration.Config = settings
	return configuration
}

// Validate reports InvalidProjectConfig listing every missing required field.
func (configuration Configuration) Validate() error {
	missingFields := make([]string, 0)
	if len(configuration.Builds) == 0 {
		missingFields = append(missingFields, buildsFieldNameConstant)
	}
	if len(configuration.Environments) == 0 {
		missingFields = append(missingFields, environmentsFieldNameConstant)
	}
	if len(strings.TrimSpace(configuration.Config.RepoSource)) == 0 {
		missingFields = append(missingFields, repoSourceFieldNameConstant)
	}
	if len(strings.TrimSpace(configuration.Config.RepoDestination)) == 0 {
		missingFields = append(missingFields, repoDestinationFieldNameConstant)
	}
	switch configuration.Config.StageIsolation {
	case "", StageIsolationProcess, StageIsolationInline:
	default:
		missingFields = append(missingFields, stageIsolationFieldNameConstant)
	}

	if len(missingFields) == 0 {
		return nil
	}
	return failures.Newf(failures.CodeInvalidProjectConfig, missingFieldsTemplateConstant, strings.Join(missingFields, missingFieldsSeparatorConstant))
}

// Names lists the catalog keys in sorted order.
func (catalog BuildCatalog) Names() []string {
	return sortedKeys(catalog)
}

// Names lists the environment keys in sorted order.
func (catalog EnvironmentCatalog) Names() []string {
	return sortedKeys(catalog)
}

// Lookup returns the environment registered under key.
func (catalog EnvironmentCatalog) Lookup(key string) (Environment, bool) {
	environment, exists := catalog[key]
	return environment, exists
}

// NormalizeDirectory appends a trailing separator to non-empty directory values.
func NormalizeDirectory(directory string) string {
	if len(directory) == 0 || strings.HasSuffix(directory, directorySeparatorConstant) {
		return directory
	}
	return directory + directorySeparatorConstant
}

func defaultString(value string, fallback string) string {
	if len(strings.TrimSpace(value)) == 0 {
		return fallback
	}
	return strings.TrimSpace(value)
}

func sortedKeys[Value any](entries map[string]Value) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
