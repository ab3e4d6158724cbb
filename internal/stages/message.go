package stages

import (
	"encoding/json"
	"fmt"

	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	payloadEncodeErrorTemplateConstant = "unable to encode %s payload: %w"
	payloadDecodeErrorTemplateConstant = "unable to decode %s payload: %w"
)

// Action names a stage.
type Action string

// Supported stage actions.
const (
	ActionClone   Action = Action("CLONE")
	ActionBuild   Action = Action("BUILD")
	ActionMigrate Action = Action("MIGRATE")
	ActionCommit  Action = Action("DEPLOY")
	ActionCleanup Action = Action("CLEANUP")
)

var actionFailureCodes = map[Action]failures.Code{
	ActionClone:   failures.CodeCloneFailed,
	ActionBuild:   failures.CodeBuildFailed,
	ActionMigrate: failures.CodeMigrateFailed,
	ActionCommit:  failures.CodeCommitFailed,
	ActionCleanup: failures.CodeCleanupFailed,
}

// FailureCode returns the generic failure code attributed to action.
func (action Action) FailureCode() failures.Code {
	if code, exists := actionFailureCodes[action]; exists {
		return code
	}
	return failures.Code(action)
}

// Message is the unit exchanged across the stage isolation boundary.
type Message struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage encodes payload for action.
func NewMessage(action Action, payload any) (Message, error) {
	encodedPayload, encodeError := json.Marshal(payload)
	if encodeError != nil {
		return Message{}, fmt.Errorf(payloadEncodeErrorTemplateConstant, action, encodeError)
	}
	return Message{Action: action, Payload: encodedPayload}, nil
}

// FailurePayload is written to standard output by a failing stage worker.
type FailurePayload struct {
	Code    failures.Code `json:"code"`
	Message string        `json:"message"`
}

// ClonePayload is the input of the clone stage.
type ClonePayload struct {
	RepoSource      string `json:"repoSrc"`
	RepoDestination string `json:"repoDest"`
	Branch          string `json:"branch,omitempty"`

	// TokenEnvironment names the variable holding the token for HTTP(S) sources.
	TokenEnvironment string `json:"tokenEnvironment,omitempty"`
}

// BuildPayload is the input of the build stage.
type BuildPayload struct {
	BuildScript      string `json:"buildScript"`
	WorkingDirectory string `json:"workingDirectory"`
}

// PathPair is one copy operation of the migrate stage.
type PathPair struct {
	Source      string `json:"src"`
	Destination string `json:"dest"`
}

// MigratePayload is the input of the migrate stage.
type MigratePayload struct {
	Paths []PathPair `json:"paths"`
}

// CommitType distinguishes deploy commits from release commits.
type CommitType string

// Supported commit types.
const (
	CommitTypeDeploy  CommitType = CommitType("deploy")
	CommitTypeRelease CommitType = CommitType("release")
)

// CommitBuild is the portion of a build descriptor the commit stage needs.
type CommitBuild struct {
	Name               string   `json:"name"`
	Version            string   `json:"version"`
	ResolvedFileNames  []string `json:"resolvedFiles"`
	ResolvedFilePrefix string   `json:"resolvedFilePrefix,omitempty"`
}

// CommitPayload is the input of the commit stage.
type CommitPayload struct {
	Type            CommitType    `json:"type"`
	Builds          []CommitBuild `json:"builds"`
	RepoDestination string        `json:"repoDest"`
	RepoBuildsPath  string        `json:"repoBuildsPath"`
	RemoteName      string        `json:"remoteName"`
	Branch          string        `json:"branch"`
	EnvironmentName string        `json:"environmentName"`
	Manifest        string        `json:"manifest"`
}

// CleanupPayload is the input of the cleanup stage.
type CleanupPayload struct {
	RepoDestination string `json:"repoDest"`
}

func decodePayload(action Action, payload json.RawMessage, target any) error {
	if decodeError := json.Unmarshal(payload, target); decodeError != nil {
		return failures.Wrap(action.FailureCode(), fmt.Errorf(payloadDecodeErrorTemplateConstant, action, decodeError))
	}
	return nil
}
