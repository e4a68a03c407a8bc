package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"codehub/internal/common/cache"
	"codehub/internal/common/db"
	"codehub/internal/submission/model"
)

const submissionColumns = `id, user_id, problem_id, source_code, language_id, language_name,
	submitted_at, status, time, memory, output, token`

// SQLSubmissionRepository is the SQL backed ResultStore and SubmissionReader.
type SQLSubmissionRepository struct {
	db    db.Database
	cache cache.Cache
}

// NewSubmissionRepository creates a submission repository. cacheClient is used
// to drop the leaderboard after an award and may be nil.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) *SQLSubmissionRepository {
	return &SQLSubmissionRepository{db: database, cache: cacheClient}
}

// CreateSubmission inserts the submission row.
func (r *SQLSubmissionRepository) CreateSubmission(ctx context.Context, s *model.Submission) error {
	query := `
		INSERT INTO submissions (id, user_id, problem_id, source_code, language_id, language_name, submitted_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.Exec(ctx, query,
		s.ID, s.UserID, s.ProblemID, s.SourceCode, s.LanguageID, s.LanguageName, s.SubmittedAt.UTC(), string(s.Status),
	); err != nil {
		return fmt.Errorf("create submission failed: %w", err)
	}
	return nil
}

// AppendTestCaseResult inserts a per test case row, ignoring a replay of the same row.
func (r *SQLSubmissionRepository) AppendTestCaseResult(ctx context.Context, result *model.TestCaseResult) error {
	query := r.db.Dialect().InsertIgnore(
		"submission_test_case_results",
		"submission_id, test_case_id, ordinal, is_sample, output, status, time, memory",
		"?, ?, ?, ?, ?, ?, ?, ?",
		"submission_id, test_case_id",
	)
	if _, err := r.db.Exec(ctx, query,
		result.SubmissionID, result.TestCaseID, result.Ordinal, result.IsSample,
		result.Output, result.Status, result.Time, result.Memory,
	); err != nil {
		return fmt.Errorf("append test case result failed: %w", err)
	}
	return nil
}

// UpdateSubmissionFinal writes the verdict back.
func (r *SQLSubmissionRepository) UpdateSubmissionFinal(ctx context.Context, submissionID string, update model.FinalUpdate) error {
	query := `UPDATE submissions SET status = ?, time = ?, memory = ?, output = ?, token = ? WHERE id = ?`
	res, err := r.db.Exec(ctx, query,
		string(update.Status), nullFloat(update.Time), nullInt(update.Memory),
		nullString(update.Output), nullString(update.Token), submissionID,
	)
	if err != nil {
		return fmt.Errorf("update submission failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission failed: %w", err)
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// CountSubmissionsToday counts the pair's submissions since the start of the day.
func (r *SQLSubmissionRepository) CountSubmissionsToday(ctx context.Context, userID, problemID int64, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM submissions WHERE user_id = ? AND problem_id = ? AND submitted_at >= ?`
	var count int
	if err := r.db.QueryRow(ctx, query, userID, problemID, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count submissions failed: %w", err)
	}
	return count, nil
}

// ExistsPriorAccepted orders submissions by (submitted_at, id) so that among
// concurrent accepted submissions exactly one sees no predecessor.
func (r *SQLSubmissionRepository) ExistsPriorAccepted(ctx context.Context, userID, problemID int64, excludingSubmissionID string) (bool, error) {
	query := `
		SELECT 1 FROM submissions s
		JOIN submissions cur ON cur.id = ?
		WHERE s.user_id = ? AND s.problem_id = ? AND s.status = ? AND s.id <> cur.id
			AND (s.submitted_at < cur.submitted_at OR (s.submitted_at = cur.submitted_at AND s.id < cur.id))
		LIMIT 1`
	var one int
	err := r.db.QueryRow(ctx, query, excludingSubmissionID, userID, problemID, string(model.StatusAccepted)).Scan(&one)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("check prior accepted failed: %w", err)
	}
	return true, nil
}

// AwardPointsOnce records the award and credits the user in one transaction.
// The unique (user_id, problem_id) key on problem_awards makes the insert the
// arbiter between concurrent callers.
func (r *SQLSubmissionRepository) AwardPointsOnce(ctx context.Context, userID, problemID int64, points int) (bool, error) {
	awarded := false
	insert := r.db.Dialect().InsertIgnore(
		"problem_awards",
		"user_id, problem_id, points, awarded_at",
		"?, ?, ?, ?",
		"user_id, problem_id",
	)
	err := r.db.Transaction(ctx, func(tx db.Transaction) error {
		res, err := tx.Exec(ctx, insert, userID, problemID, points, time.Now().UTC())
		if err != nil {
			return err
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if inserted == 0 {
			return nil
		}
		res, err = tx.Exec(ctx, `UPDATE users SET points = points + ? WHERE id = ?`, points, userID)
		if err != nil {
			return err
		}
		updated, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if updated == 0 {
			return ErrUserNotFound
		}
		awarded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("award points failed: %w", err)
	}
	if awarded && r.cache != nil {
		_ = r.cache.Del(ctx, leaderboardCacheKey)
	}
	return awarded, nil
}

// GetSubmission loads one submission.
func (r *SQLSubmissionRepository) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = ?`
	s, err := scanSubmission(r.db.QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("get submission failed: %w", err)
	}
	return s, nil
}

// ListResults returns the per test case rows in evaluation order.
func (r *SQLSubmissionRepository) ListResults(ctx context.Context, submissionID string) ([]model.TestCaseResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT submission_id, test_case_id, ordinal, is_sample, output, status, time, memory
		FROM submission_test_case_results WHERE submission_id = ? ORDER BY ordinal, test_case_id`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list results failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.TestCaseResult
	for rows.Next() {
		var res model.TestCaseResult
		if err := rows.Scan(&res.SubmissionID, &res.TestCaseID, &res.Ordinal, &res.IsSample,
			&res.Output, &res.Status, &res.Time, &res.Memory); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results failed: %w", err)
	}
	return out, nil
}

// ListByUserProblem returns the user's submissions for a problem, newest first.
func (r *SQLSubmissionRepository) ListByUserProblem(ctx context.Context, userID, problemID int64, limit int) ([]model.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions
		WHERE user_id = ? AND problem_id = ? ORDER BY submitted_at DESC, id DESC LIMIT ?`
	rows, err := r.db.Query(ctx, query, userID, problemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions failed: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row scanner) (*model.Submission, error) {
	var (
		s      model.Submission
		status string
		t      sql.NullFloat64
		mem    sql.NullInt64
		output sql.NullString
		token  sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.ProblemID, &s.SourceCode, &s.LanguageID, &s.LanguageName,
		&s.SubmittedAt, &status, &t, &mem, &output, &token); err != nil {
		return nil, err
	}
	s.Status = model.Status(status)
	if t.Valid {
		s.Time = &t.Float64
	}
	if mem.Valid {
		s.Memory = &mem.Int64
	}
	if output.Valid {
		s.Output = &output.String
	}
	if token.Valid {
		s.Token = &token.String
	}
	return &s, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
