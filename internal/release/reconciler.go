package release

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/groupby/gb-deployment-tools/internal/githubapi"
)

const (
	reconcileConcurrencyLimitConstant     = 4
	logMessagePullRequestClosedConstant   = "Closed pull request"
	logMessagePullRequestOpenedConstant   = "Opened pull request"
	logMessagePullRequestFailedConstant   = "Pull request reconciliation failed"
	logMessagePullRequestListFailed       = "Unable to list open pull requests"
	logFieldPullRequestNumberConstant     = "pull_request"
	logFieldCreatedPullRequestConstant    = "created_pull_request"
	logFieldHeadBranchConstant            = "head_branch"
	logFieldReconcileActionConstant       = "reconcile_action"
	pullRequestHostMissingMessageConstant = "pull request host not configured"
)

// ErrPullRequestHostNotConfigured indicates the reconciler was constructed without a host.
var ErrPullRequestHostNotConfigured = errors.New(pullRequestHostMissingMessageConstant)

// PullRequestHost exposes the pull request operations used by reconciliation.
type PullRequestHost interface {
	ListOpenPullRequests(executionContext context.Context, repository githubapi.Repository) ([]githubapi.PullRequest, error)
	ClosePullRequest(executionContext context.Context, repository githubapi.Repository, number int) error
	CreatePullRequest(executionContext context.Context, repository githubapi.Repository, request githubapi.NewPullRequest) (githubapi.PullRequest, error)
}

// Branches names the production and development branches.
type Branches struct {
	Production  string
	Development string
}

// ReconcileAction names the operation applied to a pull request.
type ReconcileAction string

// Reconciliation actions.
const (
	ReconcileActionClose ReconcileAction = ReconcileAction("close")
	ReconcileActionOpen  ReconcileAction = ReconcileAction("open")
)

// PullRequestOutcome records the result of one reconciliation operation.
type PullRequestOutcome struct {
	Action     ReconcileAction
	Number     int
	HeadBranch string
	// CreatedNumber is the pull request opened against development.
	CreatedNumber int
	Error         error
}

// ReconciliationReport lists every attempted operation.
type ReconciliationReport struct {
	ListError error
	Outcomes  []PullRequestOutcome
}

// Failures returns the outcomes that carry an error.
func (report ReconciliationReport) Failures() []PullRequestOutcome {
	failed := make([]PullRequestOutcome, 0)
	for _, outcome := range report.Outcomes {
		if outcome.Error != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Reconciler migrates open pull requests after the development branch was reset.
type Reconciler struct {
	logger *zap.Logger
	host   PullRequestHost
}

// NewReconciler constructs a Reconciler.
func NewReconciler(logger *zap.Logger, host PullRequestHost) (*Reconciler, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if host == nil {
		return nil, ErrPullRequestHostNotConfigured
	}
	return &Reconciler{logger: logger, host: host}, nil
}

// Reconcile closes every open pull request based on the development branch,
// then opens a development-based copy of every pull request based on the
// production branch. The close batch finishes before the open batch starts.
// Individual failures are recorded and never stop the remaining operations.
func (reconciler *Reconciler) Reconcile(executionContext context.Context, repository githubapi.Repository, branches Branches) ReconciliationReport {
	openPullRequests, listError := reconciler.host.ListOpenPullRequests(executionContext, repository)
	if listError != nil {
		reconciler.logger.Warn(logMessagePullRequestListFailed, zap.Error(listError))
		return ReconciliationReport{ListError: listError}
	}

	developmentPullRequests := make([]githubapi.PullRequest, 0)
	productionPullRequests := make([]githubapi.PullRequest, 0)
	for _, pullRequest := range openPullRequests {
		switch pullRequest.BaseBranch {
		case branches.Development:
			developmentPullRequests = append(developmentPullRequests, pullRequest)
		case branches.Production:
			productionPullRequests = append(productionPullRequests, pullRequest)
		}
	}

	closeOutcomes := reconciler.runBatch(developmentPullRequests, func(pullRequest githubapi.PullRequest) PullRequestOutcome {
		outcome := PullRequestOutcome{Action: ReconcileActionClose, Number: pullRequest.Number, HeadBranch: pullRequest.HeadBranch}
		outcome.Error = reconciler.host.ClosePullRequest(executionContext, repository, pullRequest.Number)
		return outcome
	})

	openOutcomes := reconciler.runBatch(productionPullRequests, func(pullRequest githubapi.PullRequest) PullRequestOutcome {
		outcome := PullRequestOutcome{Action: ReconcileActionOpen, Number: pullRequest.Number, HeadBranch: pullRequest.HeadBranch}
		created, createError := reconciler.host.CreatePullRequest(executionContext, repository, githubapi.NewPullRequest{
			Title:      pullRequest.Title,
			Body:       pullRequest.Body,
			HeadBranch: pullRequest.HeadBranch,
			BaseBranch: branches.Development,
		})
		outcome.CreatedNumber = created.Number
		outcome.Error = createError
		return outcome
	})

	report := ReconciliationReport{Outcomes: append(closeOutcomes, openOutcomes...)}
	for _, outcome := range report.Outcomes {
		reconciler.logOutcome(outcome)
	}
	return report
}

func (reconciler *Reconciler) runBatch(pullRequests []githubapi.PullRequest, operation func(githubapi.PullRequest) PullRequestOutcome) []PullRequestOutcome {
	sort.Slice(pullRequests, func(leftIndex int, rightIndex int) bool {
		return pullRequests[leftIndex].Number < pullRequests[rightIndex].Number
	})

	outcomes := make([]PullRequestOutcome, len(pullRequests))
	var group errgroup.Group
	group.SetLimit(reconcileConcurrencyLimitConstant)
	for pullRequestIndex, pullRequest := range pullRequests {
		group.Go(func() error {
			outcomes[pullRequestIndex] = operation(pullRequest)
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

func (reconciler *Reconciler) logOutcome(outcome PullRequestOutcome) {
	fields := []zap.Field{
		zap.String(logFieldReconcileActionConstant, string(outcome.Action)),
		zap.Int(logFieldPullRequestNumberConstant, outcome.Number),
		zap.String(logFieldHeadBranchConstant, outcome.HeadBranch),
	}
	switch {
	case outcome.Error != nil:
		reconciler.logger.Warn(logMessagePullRequestFailedConstant, append(fields, zap.Error(outcome.Error))...)
	case outcome.Action == ReconcileActionClose:
		reconciler.logger.Info(logMessagePullRequestClosedConstant, fields...)
	default:
		reconciler.logger.Info(logMessagePullRequestOpenedConstant, append(fields, zap.Int(logFieldCreatedPullRequestConstant, outcome.CreatedNumber))...)
	}
}
