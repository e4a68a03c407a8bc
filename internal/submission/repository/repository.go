package repository

import (
	"context"
	"errors"
	"time"

	"codehub/internal/submission/model"
)

var (
	ErrProblemNotFound    = errors.New("problem not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrUserNotFound       = errors.New("user not found")
)

// ProblemRepository reads problems with their ordered test cases.
type ProblemRepository interface {
	GetByID(ctx context.Context, problemID int64) (*model.Problem, error)
	List(ctx context.Context) ([]model.ProblemSummary, error)
}

// ResultStore is everything the evaluation path writes or checks.
type ResultStore interface {
	CreateSubmission(ctx context.Context, submission *model.Submission) error
	// AppendTestCaseResult is idempotent per (submission, test case).
	AppendTestCaseResult(ctx context.Context, result *model.TestCaseResult) error
	UpdateSubmissionFinal(ctx context.Context, submissionID string, update model.FinalUpdate) error
	// CountSubmissionsToday counts submissions of the pair made at or after since.
	CountSubmissionsToday(ctx context.Context, userID, problemID int64, since time.Time) (int, error)
	// ExistsPriorAccepted looks for an ACCEPTED submission of the pair ordered before excludingSubmissionID.
	ExistsPriorAccepted(ctx context.Context, userID, problemID int64, excludingSubmissionID string) (bool, error)
	// AwardPointsOnce adds points at most once per pair and reports whether it did.
	AwardPointsOnce(ctx context.Context, userID, problemID int64, points int) (bool, error)
}

// SubmissionReader serves the history endpoints.
type SubmissionReader interface {
	GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error)
	ListResults(ctx context.Context, submissionID string) ([]model.TestCaseResult, error)
	ListByUserProblem(ctx context.Context, userID, problemID int64, limit int) ([]model.Submission, error)
}

// LeaderboardRepository ranks users by points.
type LeaderboardRepository interface {
	Top(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}
