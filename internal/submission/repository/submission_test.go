package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"codehub/internal/common/cache"
	"codehub/internal/common/db"
	"codehub/internal/submission/model"
)

func newMockRepository(t *testing.T, dialect db.Dialect, cacheClient cache.Cache) (*SQLSubmissionRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("new sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
		_ = conn.Close()
	})
	return NewSubmissionRepository(db.NewSQLDatabase(conn, dialect), cacheClient), mock
}

func TestAwardPointsOnceCreditsFirstAward(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new redis cache: %v", err)
	}
	if err := mr.Set(leaderboardCacheKey, "[]"); err != nil {
		t.Fatalf("seed leaderboard: %v", err)
	}
	repo, mock := newMockRepository(t, db.DialectMySQL, c)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO problem_awards (user_id, problem_id, points, awarded_at) VALUES (?, ?, ?, ?)")).
		WithArgs(int64(7), int64(3), int64(100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET points = points + ? WHERE id = ?")).
		WithArgs(int64(100), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	awarded, err := repo.AwardPointsOnce(context.Background(), 7, 3, 100)
	if err != nil || !awarded {
		t.Fatalf("expected award, got %v %v", awarded, err)
	}
	if mr.Exists(leaderboardCacheKey) {
		t.Fatalf("expected leaderboard cache to be dropped after an award")
	}
}

func TestAwardPointsOnceSkipsExistingAward(t *testing.T) {
	repo, mock := newMockRepository(t, db.DialectMySQL, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO problem_awards")).
		WithArgs(int64(7), int64(3), int64(100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	awarded, err := repo.AwardPointsOnce(context.Background(), 7, 3, 100)
	if err != nil {
		t.Fatalf("AwardPointsOnce failed: %v", err)
	}
	if awarded {
		t.Fatalf("a duplicate award row must not credit points")
	}
}

func TestAwardPointsOnceRollsBackUnknownUser(t *testing.T) {
	repo, mock := newMockRepository(t, db.DialectMySQL, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO problem_awards")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET points")).
		WithArgs(int64(100), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	awarded, err := repo.AwardPointsOnce(context.Background(), 7, 3, 100)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if awarded {
		t.Fatalf("rolled back award must not report success")
	}
}

func TestAwardPointsOnceRollsBackOnInsertError(t *testing.T) {
	repo, mock := newMockRepository(t, db.DialectMySQL, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO problem_awards")).
		WillReturnError(errors.New("deadlock found"))
	mock.ExpectRollback()

	if awarded, err := repo.AwardPointsOnce(context.Background(), 7, 3, 100); err == nil || awarded {
		t.Fatalf("expected failure, got %v %v", awarded, err)
	}
}

func TestAwardPointsOncePostgres(t *testing.T) {
	repo, mock := newMockRepository(t, db.DialectPostgres, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO problem_awards (user_id, problem_id, points, awarded_at) VALUES ($1, $2, $3, $4) ON CONFLICT (user_id, problem_id) DO NOTHING")).
		WithArgs(int64(7), int64(3), int64(50), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET points = points + $1 WHERE id = $2")).
		WithArgs(int64(50), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if awarded, err := repo.AwardPointsOnce(context.Background(), 7, 3, 50); err != nil || !awarded {
		t.Fatalf("expected award, got %v %v", awarded, err)
	}
}

const priorAcceptedPredicate = "AND (s.submitted_at < cur.submitted_at OR (s.submitted_at = cur.submitted_at AND s.id < cur.id))"

func TestExistsPriorAccepted(t *testing.T) {
	cases := []struct {
		name string
		rows *sqlmock.Rows
		want bool
	}{
		{"earlier acceptance", sqlmock.NewRows([]string{"one"}).AddRow(1), true},
		{"first acceptance", sqlmock.NewRows([]string{"one"}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockRepository(t, db.DialectMySQL, nil)
			mock.ExpectQuery(regexp.QuoteMeta(priorAcceptedPredicate)).
				WithArgs("sub-2", int64(7), int64(3), string(model.StatusAccepted)).
				WillReturnRows(tc.rows)

			got, err := repo.ExistsPriorAccepted(context.Background(), 7, 3, "sub-2")
			if err != nil {
				t.Fatalf("ExistsPriorAccepted failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestExistsPriorAcceptedError(t *testing.T) {
	repo, mock := newMockRepository(t, db.DialectMySQL, nil)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN submissions cur ON cur.id = ?")).
		WillReturnError(errors.New("connection reset"))

	if _, err := repo.ExistsPriorAccepted(context.Background(), 7, 3, "sub-2"); err == nil {
		t.Fatalf("expected query error")
	}
}

func TestCountSubmissionsTodayUsesUTC(t *testing.T) {
	repo, mock := newMockRepository(t, db.DialectMySQL, nil)
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	since := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM submissions WHERE user_id = ? AND problem_id = ? AND submitted_at >= ?")).
		WithArgs(int64(7), int64(3), since.UTC()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountSubmissionsToday(context.Background(), 7, 3, since)
	if err != nil || count != 2 {
		t.Fatalf("expected 2, got %d %v", count, err)
	}
}

func TestAppendTestCaseResultIgnoresReplay(t *testing.T) {
	repo, mock := newMockRepository(t, db.DialectMySQL, nil)
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO submission_test_case_results")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AppendTestCaseResult(context.Background(), &model.TestCaseResult{
		SubmissionID: "sub-1", TestCaseID: 11, Ordinal: 1, Status: "Accepted",
	})
	if err != nil {
		t.Fatalf("replayed row should not fail: %v", err)
	}
}

func TestUpdateSubmissionFinalMissingRow(t *testing.T) {
	repo, mock := newMockRepository(t, db.DialectMySQL, nil)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateSubmissionFinal(context.Background(), "missing", model.FinalUpdate{Status: model.StatusAccepted})
	if !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}
