// Package versioning classifies build versions and computes semantic version increments.
package versioning

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	versionPrefixConstant          = "v"
	zeroVersionConstant            = "0.0.0"
	releaseTypeMajorValueConstant  = "major"
	releaseTypeMinorValueConstant  = "minor"
	releaseTypePatchValueConstant  = "patch"
	invalidVersionTemplateConstant = "invalid semantic version %q: %w"
	unknownReleaseTypeTemplate     = "unknown release type %q"
)

// ReleaseType selects which semantic version component a release increments.
type ReleaseType string

// Supported release types.
const (
	ReleaseTypeMajor ReleaseType = ReleaseType(releaseTypeMajorValueConstant)
	ReleaseTypeMinor ReleaseType = ReleaseType(releaseTypeMinorValueConstant)
	ReleaseTypePatch ReleaseType = ReleaseType(releaseTypePatchValueConstant)
)

// ReleaseTypeChoices lists the accepted release type spellings for error messages.
var ReleaseTypeChoices = []string{"Major", "Minor", "Patch"}

// IsRelease reports whether version is a strict semantic version, allowing a leading "v".
func IsRelease(version string) bool {
	_, parseError := parse(version)
	return parseError == nil
}

// ParseReleaseType validates raw case-insensitively by incrementing the zero version.
func ParseReleaseType(raw string) (ReleaseType, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", failures.New(failures.CodeMissingReleaseType)
	}

	releaseType := ReleaseType(strings.ToLower(trimmed))
	if _, incrementError := Increment(zeroVersionConstant, releaseType); incrementError != nil {
		return "", failures.WithChoices(failures.CodeInvalidReleaseType, ReleaseTypeChoices)
	}
	return releaseType, nil
}

// Increment returns current bumped by releaseType, preserving a leading "v" when present.
func Increment(current string, releaseType ReleaseType) (string, error) {
	parsed, parseError := parse(current)
	if parseError != nil {
		return "", parseError
	}

	var next semver.Version
	switch releaseType {
	case ReleaseTypeMajor:
		next = parsed.IncMajor()
	case ReleaseTypeMinor:
		next = parsed.IncMinor()
	case ReleaseTypePatch:
		next = parsed.IncPatch()
	default:
		return "", fmt.Errorf(unknownReleaseTypeTemplate, releaseType)
	}

	if strings.HasPrefix(strings.TrimSpace(current), versionPrefixConstant) {
		return versionPrefixConstant + next.String(), nil
	}
	return next.String(), nil
}

// TrimPrefix strips the conventional "v" tag prefix from a version.
func TrimPrefix(version string) string {
	return strings.TrimPrefix(strings.TrimSpace(version), versionPrefixConstant)
}

func parse(version string) (*semver.Version, error) {
	parsed, parseError := semver.StrictNewVersion(TrimPrefix(version))
	if parseError != nil {
		return nil, fmt.Errorf(invalidVersionTemplateConstant, version, parseError)
	}
	return parsed, nil
}
