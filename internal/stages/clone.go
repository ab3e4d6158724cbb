package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/groupby/gb-deployment-tools/internal/failures"
	"github.com/groupby/gb-deployment-tools/internal/gitrepo"
)

const (
	clonePayloadIncompleteMessageConstant = "repoSrc and repoDest are required"
	cloneTokenErrorTemplateConstant       = "unable to read clone credentials from %s: %w"
)

// ErrClonerNotConfigured indicates the clone executor was constructed without a cloner.
var ErrClonerNotConfigured = errors.New("cloner not configured")

// RepositoryCloner clones a remote repository into a local directory.
type RepositoryCloner interface {
	Clone(executionContext context.Context, options gitrepo.CloneOptions) error
}

// TokenResolver reads an access token from the named environment variable.
type TokenResolver func(environmentName string) (string, error)

// CloneExecutor clones the artifact repository.
type CloneExecutor struct {
	cloner        RepositoryCloner
	tokenResolver TokenResolver
}

// NewCloneExecutor constructs a CloneExecutor. A nil tokenResolver clones
// HTTP(S) sources anonymously.
func NewCloneExecutor(cloner RepositoryCloner, tokenResolver TokenResolver) (*CloneExecutor, error) {
	if cloner == nil {
		return nil, ErrClonerNotConfigured
	}
	return &CloneExecutor{cloner: cloner, tokenResolver: tokenResolver}, nil
}

// Execute clones payload.RepoSource into payload.RepoDestination.
func (executor *CloneExecutor) Execute(executionContext context.Context, payload json.RawMessage) error {
	var clonePayload ClonePayload
	if decodeError := decodePayload(ActionClone, payload, &clonePayload); decodeError != nil {
		return decodeError
	}

	if len(strings.TrimSpace(clonePayload.RepoSource)) == 0 || len(strings.TrimSpace(clonePayload.RepoDestination)) == 0 {
		return failures.Newf(failures.CodeCloneFailed, clonePayloadIncompleteMessageConstant)
	}

	authentication, authenticationError := executor.authentication(clonePayload)
	if authenticationError != nil {
		return failures.Wrap(failures.CodeCloneFailed, authenticationError)
	}

	cloneError := executor.cloner.Clone(executionContext, gitrepo.CloneOptions{
		Source:      clonePayload.RepoSource,
		Destination: clonePayload.RepoDestination,
		Branch:      clonePayload.Branch,
		Auth:        authentication,
	})
	if cloneError != nil {
		return failures.Wrap(failures.CodeCloneFailed, cloneError)
	}
	return nil
}

// authentication returns token credentials for HTTP(S) sources. SSH sources
// and sources without a configured token use go-git defaults.
func (executor *CloneExecutor) authentication(clonePayload ClonePayload) (transport.AuthMethod, error) {
	if executor.tokenResolver == nil || !gitrepo.UsesHTTPTransport(clonePayload.RepoSource) {
		return nil, nil
	}
	accessToken, tokenError := executor.tokenResolver(clonePayload.TokenEnvironment)
	if tokenError != nil {
		if errors.Is(tokenError, failures.CodeMissingAccessToken) {
			return nil, nil
		}
		return nil, fmt.Errorf(cloneTokenErrorTemplateConstant, clonePayload.TokenEnvironment, tokenError)
	}
	return gitrepo.TokenAuthentication(accessToken), nil
}
