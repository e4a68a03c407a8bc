package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codehub/internal/submission/model"
	"codehub/internal/submission/repository"
	appErr "codehub/pkg/errors"
)

const (
	defaultHistoryLimit     = 50
	defaultLeaderboardLimit = 10
)

// QueryService serves the read side: catalogue, history and ranking.
type QueryService struct {
	problems    repository.ProblemRepository
	submissions repository.SubmissionReader
	leaderboard repository.LeaderboardRepository
	timeouts    TimeoutConfig
}

// NewQueryService creates a query service.
func NewQueryService(problems repository.ProblemRepository, submissions repository.SubmissionReader, leaderboard repository.LeaderboardRepository, timeouts TimeoutConfig) (*QueryService, error) {
	if problems == nil || submissions == nil || leaderboard == nil {
		return nil, fmt.Errorf("problem, submission and leaderboard repositories are required")
	}
	return &QueryService{problems: problems, submissions: submissions, leaderboard: leaderboard, timeouts: timeouts}, nil
}

// SubmissionDetail is a submission with its per test case rows.
type SubmissionDetail struct {
	Submission *model.Submission      `json:"submission"`
	Results    []model.TestCaseResult `json:"results"`
}

// ListProblems returns the catalogue with success rates. A non-empty search
// moves problems whose title contains any of its words to the front.
func (q *QueryService) ListProblems(ctx context.Context, search string) ([]model.ProblemSummary, error) {
	ctxDB := withTimeout(ctx, q.timeouts.DB)
	defer ctxDB.cancel()
	problems, err := q.problems.List(ctxDB.ctx)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list problems failed")
	}
	if problems == nil {
		problems = []model.ProblemSummary{}
	}
	return rankBySearch(problems, search), nil
}

func rankBySearch(problems []model.ProblemSummary, search string) []model.ProblemSummary {
	words := strings.Fields(strings.ToLower(search))
	if len(words) == 0 {
		return problems
	}
	matched := make([]model.ProblemSummary, 0, len(problems))
	var rest []model.ProblemSummary
	for _, p := range problems {
		title := strings.ToLower(p.Title)
		hit := false
		for _, w := range words {
			if strings.Contains(title, w) {
				hit = true
				break
			}
		}
		if hit {
			matched = append(matched, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(matched, rest...)
}

// GetProblem returns a problem with only its sample test cases visible.
func (q *QueryService) GetProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	ctxDB := withTimeout(ctx, q.timeouts.DB)
	defer ctxDB.cancel()
	problem, err := q.problems.GetByID(ctxDB.ctx, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound).WithMessage("problem not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}
	view := *problem
	view.TestCases = nil
	for _, tc := range problem.TestCases {
		if tc.IsSample {
			view.TestCases = append(view.TestCases, tc)
		}
	}
	return &view, nil
}

// History lists the caller's submissions for a problem, newest first.
func (q *QueryService) History(ctx context.Context, userID, problemID int64, limit int) ([]model.Submission, error) {
	if userID <= 0 {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	ctxDB := withTimeout(ctx, q.timeouts.DB)
	defer ctxDB.cancel()
	items, err := q.submissions.ListByUserProblem(ctxDB.ctx, userID, problemID, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	if items == nil {
		items = []model.Submission{}
	}
	return items, nil
}

// GetSubmission returns one of the caller's submissions with its results.
// Submissions of other users are reported as missing.
func (q *QueryService) GetSubmission(ctx context.Context, userID int64, submissionID string) (*SubmissionDetail, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, q.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := q.submissions.GetSubmission(ctxDB.ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	if submission.UserID != userID {
		return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
	}
	results, err := q.submissions.ListResults(ctxDB.ctx, submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list results failed")
	}
	if results == nil {
		results = []model.TestCaseResult{}
	}
	return &SubmissionDetail{Submission: submission, Results: results}, nil
}

// Leaderboard returns the top users by points.
func (q *QueryService) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	ctxDB := withTimeout(ctx, q.timeouts.DB)
	defer ctxDB.cancel()
	entries, err := q.leaderboard.Top(ctxDB.ctx, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load leaderboard failed")
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	return entries, nil
}

// Languages returns the supported language table.
func (q *QueryService) Languages() []model.Language {
	return model.Languages()
}
