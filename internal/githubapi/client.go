package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const (
	ownerFieldNameConstant                  = "owner"
	repositoryFieldNameConstant             = "repository"
	numberFieldNameConstant                 = "number"
	headFieldNameConstant                   = "head"
	baseFieldNameConstant                   = "base"
	tagFieldNameConstant                    = "tag"
	requiredValueMessageConstant            = "value required"
	positiveValueMessageConstant            = "must be positive"
	accessTokenMissingMessageConstant       = "github access token not configured"
	baseURLParseErrorTemplateConstant       = "invalid github base url %q: %w"
	trailingSlashConstant                   = "/"
	pullRequestStateOpenConstant            = "open"
	pullRequestStateClosedConstant          = "closed"
	pullRequestPageSizeConstant             = 100
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	repositoryNameTemplateConstant          = "%s/%s"
	listPullRequestsOperationNameConstant   = OperationName("ListPullRequests")
	closePullRequestOperationNameConstant   = OperationName("ClosePullRequest")
	createPullRequestOperationNameConstant  = OperationName("CreatePullRequest")
	createReleaseOperationNameConstant      = OperationName("CreateRelease")
)

// ErrAccessTokenRequired indicates the client was constructed without a token.
var ErrAccessTokenRequired = errors.New(accessTokenMissingMessageConstant)

// OperationName describes a named GitHub API workflow supported by the client.
type OperationName string

// Repository identifies a hosted repository.
type Repository struct {
	Owner string
	Name  string
}

// String renders owner/name.
func (repository Repository) String() string {
	return fmt.Sprintf(repositoryNameTemplateConstant, repository.Owner, repository.Name)
}

// PullRequest carries the pull request fields used by reconciliation.
type PullRequest struct {
	Number     int
	Title      string
	Body       string
	BaseBranch string
	HeadBranch string
	State      string
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title      string
	Body       string
	HeadBranch string
	BaseBranch string
}

// Release describes a release to create.
type Release struct {
	TagName string
	Name    string
	Body    string
}

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps GitHub API failures.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// Options configures a Client.
type Options struct {
	// BaseURL points the client at a GitHub Enterprise or test server.
	BaseURL string
	// HTTPClient replaces the token-authenticated transport when set.
	HTTPClient *http.Client
}

// Client coordinates GitHub REST calls.
type Client struct {
	restClient *github.Client
}

// NewClient constructs a Client authenticated with accessToken.
func NewClient(executionContext context.Context, accessToken string, options Options) (*Client, error) {
	trimmedToken := strings.TrimSpace(accessToken)
	if len(trimmedToken) == 0 {
		return nil, ErrAccessTokenRequired
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: trimmedToken})
		httpClient = oauth2.NewClient(executionContext, tokenSource)
	}

	githubClient := github.NewClient(httpClient)
	if baseURL := strings.TrimSpace(options.BaseURL); len(baseURL) > 0 {
		if !strings.HasSuffix(baseURL, trailingSlashConstant) {
			baseURL += trailingSlashConstant
		}
		parsedURL, parseError := url.Parse(baseURL)
		if parseError != nil {
			return nil, fmt.Errorf(baseURLParseErrorTemplateConstant, options.BaseURL, parseError)
		}
		githubClient.BaseURL = parsedURL
	}

	return &Client{restClient: githubClient}, nil
}

// ListOpenPullRequests returns every open pull request of repository.
func (client *Client) ListOpenPullRequests(executionContext context.Context, repository Repository) ([]PullRequest, error) {
	if validationError := validateRepository(repository); validationError != nil {
		return nil, validationError
	}

	listOptions := &github.PullRequestListOptions{
		State:       pullRequestStateOpenConstant,
		ListOptions: github.ListOptions{PerPage: pullRequestPageSizeConstant},
	}

	pullRequests := make([]PullRequest, 0)
	for {
		page, response, listError := client.restClient.PullRequests.List(executionContext, repository.Owner, repository.Name, listOptions)
		if listError != nil {
			return nil, OperationError{Operation: listPullRequestsOperationNameConstant, Cause: listError}
		}
		for _, pullRequest := range page {
			pullRequests = append(pullRequests, convertPullRequest(pullRequest))
		}
		if response == nil || response.NextPage == 0 {
			break
		}
		listOptions.Page = response.NextPage
	}
	return pullRequests, nil
}

// ClosePullRequest sets the state of pull request number to closed.
func (client *Client) ClosePullRequest(executionContext context.Context, repository Repository, number int) error {
	if validationError := validateRepository(repository); validationError != nil {
		return validationError
	}
	if number <= 0 {
		return InvalidInputError{FieldName: numberFieldNameConstant, Message: positiveValueMessageConstant}
	}

	_, _, editError := client.restClient.PullRequests.Edit(executionContext, repository.Owner, repository.Name, number, &github.PullRequest{
		State: github.String(pullRequestStateClosedConstant),
	})
	if editError != nil {
		return OperationError{Operation: closePullRequestOperationNameConstant, Cause: editError}
	}
	return nil
}

// CreatePullRequest opens a pull request.
func (client *Client) CreatePullRequest(executionContext context.Context, repository Repository, request NewPullRequest) (PullRequest, error) {
	if validationError := validateRepository(repository); validationError != nil {
		return PullRequest{}, validationError
	}
	if len(strings.TrimSpace(request.HeadBranch)) == 0 {
		return PullRequest{}, InvalidInputError{FieldName: headFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(request.BaseBranch)) == 0 {
		return PullRequest{}, InvalidInputError{FieldName: baseFieldNameConstant, Message: requiredValueMessageConstant}
	}

	created, _, createError := client.restClient.PullRequests.Create(executionContext, repository.Owner, repository.Name, &github.NewPullRequest{
		Title: github.String(request.Title),
		Body:  github.String(request.Body),
		Head:  github.String(request.HeadBranch),
		Base:  github.String(request.BaseBranch),
	})
	if createError != nil {
		return PullRequest{}, OperationError{Operation: createPullRequestOperationNameConstant, Cause: createError}
	}
	return convertPullRequest(created), nil
}

// CreateRelease publishes a release for an existing tag.
func (client *Client) CreateRelease(executionContext context.Context, repository Repository, release Release) error {
	if validationError := validateRepository(repository); validationError != nil {
		return validationError
	}
	if len(strings.TrimSpace(release.TagName)) == 0 {
		return InvalidInputError{FieldName: tagFieldNameConstant, Message: requiredValueMessageConstant}
	}

	releaseName := release.Name
	if len(strings.TrimSpace(releaseName)) == 0 {
		releaseName = release.TagName
	}

	_, _, createError := client.restClient.Repositories.CreateRelease(executionContext, repository.Owner, repository.Name, &github.RepositoryRelease{
		TagName: github.String(release.TagName),
		Name:    github.String(releaseName),
		Body:    github.String(release.Body),
	})
	if createError != nil {
		return OperationError{Operation: createReleaseOperationNameConstant, Cause: createError}
	}
	return nil
}

func validateRepository(repository Repository) error {
	if len(strings.TrimSpace(repository.Owner)) == 0 {
		return InvalidInputError{FieldName: ownerFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(repository.Name)) == 0 {
		return InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return nil
}

func convertPullRequest(pullRequest *github.PullRequest) PullRequest {
	if pullRequest == nil {
		return PullRequest{}
	}
	return PullRequest{
		Number:     pullRequest.GetNumber(),
		Title:      pullRequest.GetTitle(),
		Body:       pullRequest.GetBody(),
		BaseBranch: pullRequest.GetBase().GetRef(),
		HeadBranch: pullRequest.GetHead().GetRef(),
		State:      pullRequest.GetState(),
	}
}
