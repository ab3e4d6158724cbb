package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const (
	cloneSourceRequiredMessageConstant      = "clone source must be provided"
	cloneDestinationRequiredMessageConstant = "clone destination must be provided"
	cloneFailureTemplateConstant            = "clone %s into %s: %w"
	tokenAuthenticationUsernameConstant     = "x-access-token"
	httpSchemePrefixConstant                = "http://"
	httpsSchemePrefixConstant               = "https://"
)

var (
	// ErrCloneSourceRequired indicates the repository source was empty.
	ErrCloneSourceRequired = errors.New(cloneSourceRequiredMessageConstant)
	// ErrCloneDestinationRequired indicates the clone destination was empty.
	ErrCloneDestinationRequired = errors.New(cloneDestinationRequiredMessageConstant)
)

// CloneOptions describes a clone request.
type CloneOptions struct {
	Source      string
	Destination string
	// Branch, when set, is checked out instead of the remote default branch.
	Branch   string
	Progress io.Writer
	// Auth authenticates the transport. Nil lets go-git fall back to its
	// defaults, which use the SSH agent for SSH remotes.
	Auth transport.AuthMethod
}

// TokenAuthentication returns HTTP basic credentials carrying accessToken,
// as accepted by GitHub for HTTPS git operations.
func TokenAuthentication(accessToken string) transport.AuthMethod {
	return &githttp.BasicAuth{Username: tokenAuthenticationUsernameConstant, Password: accessToken}
}

// UsesHTTPTransport reports whether source is an http or https remote URL.
func UsesHTTPTransport(source string) bool {
	normalizedSource := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(normalizedSource, httpsSchemePrefixConstant) || strings.HasPrefix(normalizedSource, httpSchemePrefixConstant)
}

// Cloner clones repositories using go-git.
type Cloner struct{}

// NewCloner constructs a Cloner.
func NewCloner() *Cloner {
	return &Cloner{}
}

// Clone copies the source repository into the destination directory.
func (cloner *Cloner) Clone(executionContext context.Context, options CloneOptions) error {
	source := strings.TrimSpace(options.Source)
	if len(source) == 0 {
		return ErrCloneSourceRequired
	}
	destination := strings.TrimSpace(options.Destination)
	if len(destination) == 0 {
		return ErrCloneDestinationRequired
	}

	cloneOptions := &git.CloneOptions{URL: source, Progress: options.Progress, Auth: options.Auth}
	if branch := strings.TrimSpace(options.Branch); len(branch) > 0 {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(branch)
		cloneOptions.SingleBranch = true
	}

	if _, cloneError := git.PlainCloneContext(executionContext, destination, false, cloneOptions); cloneError != nil {
		return fmt.Errorf(cloneFailureTemplateConstant, source, destination, cloneError)
	}
	return nil
}
