package githubauth

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	// EnvReleaseToken is the default environment variable carrying the release host token.
	EnvReleaseToken = "GITHUB_CODE"
	// DefaultEnvironmentFile is consulted when the variable is absent from the process environment.
	DefaultEnvironmentFile = ".env"

	missingTokenTemplateConstant = "set %s in the environment or in %s"
)

// ResolveToken returns the token stored in environmentName. The process
// environment wins; the listed dotenv files are read in order otherwise.
// Absence is reported as MissingAccessToken.
func ResolveToken(environmentName string, environmentFiles ...string) (string, error) {
	variableName := strings.TrimSpace(environmentName)
	if len(variableName) == 0 {
		variableName = EnvReleaseToken
	}
	if len(environmentFiles) == 0 {
		environmentFiles = []string{DefaultEnvironmentFile}
	}

	if value, exists := os.LookupEnv(variableName); exists {
		if trimmed := strings.TrimSpace(value); len(trimmed) > 0 {
			return trimmed, nil
		}
	}

	for _, environmentFile := range environmentFiles {
		values, readError := godotenv.Read(environmentFile)
		if readError != nil {
			if errors.Is(readError, fs.ErrNotExist) {
				continue
			}
			return "", failures.Wrap(failures.CodeMissingAccessToken, readError)
		}
		if trimmed := strings.TrimSpace(values[variableName]); len(trimmed) > 0 {
			return trimmed, nil
		}
	}

	return "", failures.Newf(failures.CodeMissingAccessToken, missingTokenTemplateConstant, variableName, strings.Join(environmentFiles, ", "))
}
