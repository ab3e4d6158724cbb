package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	jsonFileExtensionConstant             = ".json"
	jsonIndentConstant                    = "  "
	yamlIndentWidthConstant               = 2
	scaffoldFilePermissionsConstant       = 0o644
	scaffoldExistsTemplateConstant        = "%s already declares a %s namespace; rerun with --force to overwrite it"
	scaffoldReadErrorTemplateConstant     = "unable to read %s: %w"
	scaffoldParseErrorTemplateConstant    = "unable to parse %s: %w"
	scaffoldEncodeErrorTemplateConstant   = "unable to encode %s: %w"
	scaffoldWriteErrorTemplateConstant    = "unable to write %s: %w"
	scaffoldBuildNameConstant             = "app"
	scaffoldBuildSourceConstant           = "dist/app.js"
	scaffoldBuildBaseConstant             = "app"
	scaffoldEnvironmentKeyConstant        = "development"
	scaffoldEnvironmentNameConstant       = "development"
	scaffoldBuildScriptConstant           = "npm run build"
	scaffoldManifestConstant              = "manifest.json"
	scaffoldRepoSourceConstant            = "git@github.com:<owner>/<builds-repository>.git"
	scaffoldRepoDestinationConstant       = ".gb-deploy-builds/"
	scaffoldLocalBuildsPathConstant       = "./"
	scaffoldRepoBuildsPathConstant        = "./builds/"
	scaffoldRepoOwnerPlaceholderConstant  = "<owner>"
	scaffoldRepoNamePlaceholderConstant   = "<repository>"
	scaffoldProductionEnvironmentConstant = "production"
)

// ErrScaffoldExists indicates the target already holds the namespace and overwrite was not requested.
var ErrScaffoldExists = errors.New("project namespace already present")

// Scaffold returns the boilerplate configuration written by the init command.
func Scaffold() Configuration {
	return Configuration{
		Builds: BuildCatalog{
			scaffoldBuildNameConstant: {
				Files: []FileDefinition{{Source: scaffoldBuildSourceConstant, Base: scaffoldBuildBaseConstant}},
			},
		},
		Environments: EnvironmentCatalog{
			scaffoldEnvironmentKeyConstant: {
				Name:        scaffoldEnvironmentNameConstant,
				BuildScript: scaffoldBuildScriptConstant,
				Manifest:    scaffoldManifestConstant,
			},
			scaffoldProductionEnvironmentConstant: {
				Name:        scaffoldProductionEnvironmentConstant,
				BuildScript: scaffoldBuildScriptConstant,
				Manifest:    scaffoldManifestConstant,
			},
		},
		Config: Settings{
			RepoSource:      scaffoldRepoSourceConstant,
			RepoDestination: scaffoldRepoDestinationConstant,
			LocalBuildsPath: scaffoldLocalBuildsPathConstant,
			RepoBuildsPath:  scaffoldRepoBuildsPathConstant,
			RepoOwner:       scaffoldRepoOwnerPlaceholderConstant,
			RepoName:        scaffoldRepoNamePlaceholderConstant,
		},
	}
}

// WriteScaffold merges the boilerplate namespace into the JSON or YAML file at
// targetPath, creating the file when absent. Other top-level keys are kept.
func WriteScaffold(targetPath string, overwrite bool) error {
	document := map[string]any{}

	existingContents, readError := os.ReadFile(targetPath)
	switch {
	case readError == nil:
		if len(bytes.TrimSpace(existingContents)) > 0 {
			if unmarshalError := yaml.Unmarshal(existingContents, &document); unmarshalError != nil {
				return fmt.Errorf(scaffoldParseErrorTemplateConstant, targetPath, unmarshalError)
			}
		}
	case errors.Is(readError, os.ErrNotExist):
	default:
		return fmt.Errorf(scaffoldReadErrorTemplateConstant, targetPath, readError)
	}

	if _, namespaceExists := document[NamespaceKey]; namespaceExists && !overwrite {
		return fmt.Errorf(scaffoldExistsTemplateConstant+": %w", targetPath, NamespaceKey, ErrScaffoldExists)
	}
	document[NamespaceKey] = Scaffold()

	encodedDocument, encodeError := encodeDocument(targetPath, document)
	if encodeError != nil {
		return fmt.Errorf(scaffoldEncodeErrorTemplateConstant, targetPath, encodeError)
	}

	if writeError := os.WriteFile(targetPath, encodedDocument, scaffoldFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(scaffoldWriteErrorTemplateConstant, targetPath, writeError)
	}
	return nil
}

func encodeDocument(targetPath string, document map[string]any) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(targetPath), jsonFileExtensionConstant) {
		encoded, marshalError := json.MarshalIndent(document, "", jsonIndentConstant)
		if marshalError != nil {
			return nil, marshalError
		}
		return append(encoded, '\n'), nil
	}

	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(yamlIndentWidthConstant)
	if encodeError := encoder.Encode(document); encodeError != nil {
		return nil, encodeError
	}
	if closeError := encoder.Close(); closeError != nil {
		return nil, closeError
	}
	return buffer.Bytes(), nil
}
