package failures

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	errorWithMessageTemplateConstant = "%s: %s"
	errorWithCauseTemplateConstant   = "%s: %v"
	choicesTemplateConstant          = "%s: <%s>"
	choicesSeparatorConstant         = "|"
)

// Code identifies a failure kind.
type Code string

// Precondition failure codes.
const (
	CodeRepoUnclean                 Code = Code("RepoUnclean")
	CodeRepoOutOfSync               Code = Code("RepoOutOfSync")
	CodeInvalidProjectConfig        Code = Code("InvalidProjectConfig")
	CodeInvalidBuilds               Code = Code("InvalidBuilds")
	CodeInvalidEnvironment          Code = Code("InvalidEnvironment")
	CodeMissingVersionForProduction Code = Code("MissingVersionForProduction")
	CodeInvalidReleaseBranch        Code = Code("InvalidReleaseBranch")
	CodeMissingReleaseType          Code = Code("MissingReleaseType")
	CodeInvalidReleaseType          Code = Code("InvalidReleaseType")
	CodeMissingRepoOwner            Code = Code("MissingRepoOwner")
	CodeMissingRepoName             Code = Code("MissingRepoName")
	CodeMissingAccessToken          Code = Code("MissingAccessToken")
)

// Stage failure codes.
const (
	CodeCloneFailed   Code = Code("CloneFailed")
	CodeBuildFailed   Code = Code("BuildFailed")
	CodeMigrateFailed Code = Code("MigrateFailed")
	CodeCommitFailed  Code = Code("CommitFailed")
	CodeCleanupFailed Code = Code("CleanupFailed")
)

// Release workflow failure codes.
const (
	CodeVersionBumpFailed   Code = Code("VersionBumpFailed")
	CodeBranchArchiveFailed Code = Code("BranchArchiveFailed")
	CodeBranchRefreshFailed Code = Code("BranchRefreshFailed")
	CodeReleaseFailed       Code = Code("ReleaseFailed")
)

// Default human-readable messages per code.
var defaultMessages = map[Code]string{
	CodeRepoUnclean:                 "Whoops, looks like this project has a dirty repo. Please commit or stash your changes before deploying.",
	CodeRepoOutOfSync:               "Whoops, please ensure that the local repository is in sync with the remote.",
	CodeInvalidProjectConfig:        "Whoops, looks like this project is not set up for use with gb-deploy",
	CodeInvalidBuilds:               "Must include one or more valid builds",
	CodeInvalidEnvironment:          "Must include a valid environment",
	CodeMissingVersionForProduction: "When deploying to production, all builds must include a semver-compliant version identifier (ie. `<build>@<version>`)",
	CodeInvalidReleaseBranch:        "Whoops, releases may only be created from the production branch.",
	CodeMissingReleaseType:          "Please include a release type.",
	CodeInvalidReleaseType:          "Whoops, the release type is invalid.",
	CodeMissingRepoOwner:            "Please include the owner of the remote repository (either via the command line, or within the project configuration)",
	CodeMissingRepoName:             "Please include the name of the remote repository (either via the command line, or within the project configuration)",
	CodeMissingAccessToken:          "Please provide a release host access token.",
	CodeCloneFailed:                 "Failed to clone repository. Please ensure that the project contains valid `repoSrc` and `repoDest` data.",
	CodeBuildFailed:                 "Failed to build. Please ensure that the target environment includes a valid `buildScript`",
	CodeMigrateFailed:               "Failed to migrate files. Please ensure that all file references are valid.",
	CodeCommitFailed:                "Failed to deploy updates.",
	CodeCleanupFailed:               "Failed to clean up.",
	CodeVersionBumpFailed:           "Failed to increment the project version.",
	CodeBranchArchiveFailed:         "Failed to archive the development branch.",
	CodeBranchRefreshFailed:         "Failed to refresh the development branch.",
	CodeReleaseFailed:               "Failed to release.",
}

// Error is the terminal failure surfaced by the pipelines.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error describes the failure, preferring the explicit message over the code default.
func (failure *Error) Error() string {
	message := failure.Message
	if len(message) == 0 {
		message = DefaultMessage(failure.Code)
	}
	if failure.Cause == nil {
		return message
	}
	return fmt.Sprintf(errorWithCauseTemplateConstant, message, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure *Error) Unwrap() error {
	return failure.Cause
}

// Is matches another *Error or a bare Code by failure code.
func (failure *Error) Is(target error) bool {
	switch typedTarget := target.(type) {
	case *Error:
		return typedTarget.Code == failure.Code
	case Code:
		return typedTarget == failure.Code
	default:
		return false
	}
}

// Error lets a Code act as a sentinel for errors.Is.
func (code Code) Error() string {
	return string(code)
}

// DefaultMessage returns the stock description for code.
func DefaultMessage(code Code) string {
	if message, exists := defaultMessages[code]; exists {
		return message
	}
	return string(code)
}

// New constructs a failure carrying the default message for code.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Newf constructs a failure whose message appends detail to the code default.
func Newf(code Code, detailTemplate string, arguments ...any) *Error {
	detail := fmt.Sprintf(detailTemplate, arguments...)
	return &Error{Code: code, Message: fmt.Sprintf(errorWithMessageTemplateConstant, DefaultMessage(code), detail)}
}

// Wrap constructs a failure for code caused by cause.
func Wrap(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

// WithChoices constructs a failure whose message enumerates the valid choices.
func WithChoices(code Code, choices []string) *Error {
	sortedChoices := append([]string{}, choices...)
	sort.Strings(sortedChoices)
	return &Error{Code: code, Message: fmt.Sprintf(choicesTemplateConstant, DefaultMessage(code), strings.Join(sortedChoices, choicesSeparatorConstant))}
}

// CodeOf extracts the failure code from err, reporting false when err carries none.
func CodeOf(err error) (Code, bool) {
	var failure *Error
	if errors.As(err, &failure) {
		return failure.Code, true
	}
	return "", false
}
