package service

import (
	"context"

	"go.uber.org/zap"

	"codehub/internal/submission/model"
	appErr "codehub/pkg/errors"
	"codehub/pkg/utils/logger"
)

// AwardStore is the part of the result store the award guard needs.
type AwardStore interface {
	ExistsPriorAccepted(ctx context.Context, userID, problemID int64, excludingSubmissionID string) (bool, error)
	AwardPointsOnce(ctx context.Context, userID, problemID int64, points int) (bool, error)
}

// AwardGuard credits a problem's points the first time a user solves it.
type AwardGuard struct {
	store AwardStore
}

// NewAwardGuard creates an award guard.
func NewAwardGuard(store AwardStore) *AwardGuard {
	return &AwardGuard{store: store}
}

// Award credits points for an accepted submission and reports whether this
// call did the crediting. The store's unique award row is the only gate, so an
// acceptance whose award write failed is still credited by the next one.
func (g *AwardGuard) Award(ctx context.Context, submission *model.Submission, points int) (bool, error) {
	if submission == nil || points <= 0 {
		return false, nil
	}
	awarded, err := g.store.AwardPointsOnce(ctx, submission.UserID, submission.ProblemID, points)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "award points failed")
	}
	if !awarded {
		return false, nil
	}
	fields := []zap.Field{
		zap.Int64("user_id", submission.UserID),
		zap.Int64("problem_id", submission.ProblemID),
		zap.Int("points", points),
	}
	prior, err := g.store.ExistsPriorAccepted(ctx, submission.UserID, submission.ProblemID, submission.ID)
	if err != nil {
		logger.Warn(ctx, "check prior accepted failed", zap.Error(err))
	} else if prior {
		logger.Warn(ctx, "points credited to a later acceptance", fields...)
	}
	logger.Info(ctx, "points awarded", fields...)
	return true, nil
}
