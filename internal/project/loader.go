package project

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	readProjectFileErrorTemplateConstant  = "unable to read project file %s: %w"
	parseProjectFileErrorTemplateConstant = "unable to parse project file %s: %w"
	namespaceShapeErrorTemplateConstant   = "%s namespace in %s is not an object"
	missingNamespaceTemplateConstant      = "no %s namespace in %s"
)

// LoadFile reads a JSON or YAML project file and decodes its namespace.
// Keys are read verbatim so build and environment names keep their case.
func LoadFile(projectFilePath string) (Configuration, error) {
	fileContents, readError := os.ReadFile(projectFilePath)
	if readError != nil {
		if errors.Is(readError, os.ErrNotExist) {
			return Configuration{}, failures.Newf(failures.CodeInvalidProjectConfig, missingNamespaceTemplateConstant, NamespaceKey, projectFilePath)
		}
		return Configuration{}, fmt.Errorf(readProjectFileErrorTemplateConstant, projectFilePath, readError)
	}
	return Parse(projectFilePath, fileContents)
}

// Parse decodes the namespace from raw JSON or YAML document contents.
func Parse(sourceLabel string, documentContents []byte) (Configuration, error) {
	document := map[string]any{}
	if unmarshalError := yaml.Unmarshal(documentContents, &document); unmarshalError != nil {
		return Configuration{}, failures.Wrap(failures.CodeInvalidProjectConfig, fmt.Errorf(parseProjectFileErrorTemplateConstant, sourceLabel, unmarshalError))
	}

	rawNamespace, namespaceExists := document[NamespaceKey]
	if !namespaceExists || rawNamespace == nil {
		return Configuration{}, failures.Newf(failures.CodeInvalidProjectConfig, missingNamespaceTemplateConstant, NamespaceKey, sourceLabel)
	}

	namespace, isObject := rawNamespace.(map[string]any)
	if !isObject {
		return Configuration{}, failures.Newf(failures.CodeInvalidProjectConfig, namespaceShapeErrorTemplateConstant, NamespaceKey, sourceLabel)
	}

	return Decode(namespace)
}
