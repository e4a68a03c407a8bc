package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"codehub/internal/common/cache"
	"codehub/internal/common/db"
	"codehub/internal/submission/model"
)

const (
	defaultProblemCacheTTL      = 30 * time.Minute
	defaultProblemCacheEmptyTTL = time.Minute
	problemCacheKeyPrefix       = "problem:"
)

// SQLProblemRepository reads problems from SQL with an optional cache in front.
type SQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a problem repository. cacheClient may be nil.
func NewProblemRepository(database db.Database, cacheClient cache.Cache, ttl time.Duration) *SQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	return &SQLProblemRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: defaultProblemCacheEmptyTTL,
	}
}

// GetByID returns the problem with test cases in evaluation order.
func (r *SQLProblemRepository) GetByID(ctx context.Context, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, ErrProblemNotFound
	}
	if r.cache == nil {
		return r.loadProblem(ctx, problemID)
	}
	problem, err := cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemCacheKey(problemID),
		cache.JitterTTL(r.ttl),
		r.emptyTTL,
		func(p *model.Problem) bool { return p == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*model.Problem, error) {
			p, err := r.loadProblem(ctx, problemID)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *SQLProblemRepository) loadProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	query := `SELECT id, title, slug, difficulty, points, time_limit, memory_limit FROM problems WHERE id = ?`
	problem := &model.Problem{}
	var difficulty string
	if err := r.db.QueryRow(ctx, query, problemID).Scan(
		&problem.ID,
		&problem.Title,
		&problem.Slug,
		&difficulty,
		&problem.Points,
		&problem.TimeLimit,
		&problem.MemoryLimit,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, fmt.Errorf("load problem failed: %w", err)
	}
	problem.Difficulty = model.Difficulty(difficulty)

	rows, err := r.db.Query(ctx, `
		SELECT id, problem_id, ordinal, input_data, expected_output, is_sample
		FROM test_cases WHERE problem_id = ? ORDER BY ordinal, id`, problemID)
	if err != nil {
		return nil, fmt.Errorf("load test cases failed: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Ordinal, &tc.Input, &tc.ExpectedOutput, &tc.IsSample); err != nil {
			return nil, err
		}
		problem.TestCases = append(problem.TestCases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test cases failed: %w", err)
	}
	return problem, nil
}

// List returns the catalogue with each problem's acceptance rate.
func (r *SQLProblemRepository) List(ctx context.Context) ([]model.ProblemSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.title, p.slug, p.difficulty, p.points,
			COUNT(s.id),
			COALESCE(SUM(CASE WHEN s.status = 'ACCEPTED' THEN 1 ELSE 0 END), 0)
		FROM problems p
		LEFT JOIN submissions s ON s.problem_id = p.id
		GROUP BY p.id, p.title, p.slug, p.difficulty, p.points
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("list problems failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ProblemSummary
	for rows.Next() {
		var (
			item       model.ProblemSummary
			difficulty string
			total      int64
			accepted   int64
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.Slug, &difficulty, &item.Points, &total, &accepted); err != nil {
			return nil, err
		}
		item.Difficulty = model.Difficulty(difficulty)
		item.SuccessRate = SuccessRate(accepted, total)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate problems failed: %w", err)
	}
	return out, nil
}

// SuccessRate is accepted/total as a percentage with one decimal, 0 without submissions.
func SuccessRate(accepted, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(accepted)/float64(total)*1000) / 10
}

func problemCacheKey(problemID int64) string {
	return problemCacheKeyPrefix + strconv.FormatInt(problemID, 10)
}

func marshalProblem(p *model.Problem) string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProblem(data string) (*model.Problem, error) {
	var p model.Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
