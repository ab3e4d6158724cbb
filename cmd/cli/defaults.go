package cli

import (
	"bytes"
	_ "embed"

	"github.com/groupby/gb-deployment-tools/internal/utils"
)

//go:embed default_config.yaml
var defaultConfigurationDocument []byte

// DefaultConfigurationDocument returns a copy of the embedded YAML defaults.
// gb-deploy.yaml, package.json, and GBDEPLOY_* variables are layered above it.
func DefaultConfigurationDocument() ([]byte, string) {
	return bytes.Clone(defaultConfigurationDocument), configurationTypeConstant
}

// fallbackConfigurationValues registers every common key with viper so the
// GBDEPLOY_COMMON_* variables bind even when no document names them.
// common.run_id is only ever set by a parent process for its stage workers.
func fallbackConfigurationValues() map[string]any {
	return map[string]any{
		commonLogLevelConfigKeyConstant:      string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:     string(utils.LogFormatConsole),
		commonRunIdentifierConfigKeyConstant: "",
	}
}
