package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"codehub/internal/common/cache"
	"codehub/internal/common/db"
	"codehub/internal/submission/model"
)

var errUnexpectedQuery = errors.New("unexpected query")

// failingDB fails every call so tests prove the cache served the read.
type failingDB struct {
	calls int
}

type errRow struct{}

func (errRow) Scan(dest ...interface{}) error { return errUnexpectedQuery }

func (f *failingDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	f.calls++
	return nil, errUnexpectedQuery
}

func (f *failingDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	f.calls++
	return errRow{}
}

func (f *failingDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	f.calls++
	return nil, errUnexpectedQuery
}

func (f *failingDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	f.calls++
	return errUnexpectedQuery
}

func (f *failingDB) TransactionWithOptions(ctx context.Context, opts *db.TxOptions, fn func(tx db.Transaction) error) error {
	f.calls++
	return errUnexpectedQuery
}

func (f *failingDB) Dialect() db.Dialect            { return db.DialectMySQL }
func (f *failingDB) Ping(ctx context.Context) error { return nil }
func (f *failingDB) Close() error                   { return nil }

func newTestCache(t *testing.T) (*miniredis.Miniredis, cache.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestSuccessRate(t *testing.T) {
	cases := []struct {
		accepted, total int64
		want            float64
	}{
		{0, 0, 0},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{5, 5, 100},
		{0, 7, 0},
	}
	for _, tc := range cases {
		if got := SuccessRate(tc.accepted, tc.total); got != tc.want {
			t.Fatalf("SuccessRate(%d, %d): expected %v, got %v", tc.accepted, tc.total, tc.want, got)
		}
	}
}

func TestProblemRepositoryServesFromCache(t *testing.T) {
	mr, c := newTestCache(t)
	problem := &model.Problem{
		ID:          7,
		Title:       "Sum",
		Points:      100,
		TimeLimit:   1.5,
		MemoryLimit: 130000,
		TestCases: []model.TestCase{
			{ID: 1, ProblemID: 7, Ordinal: 1, Input: "1 2", ExpectedOutput: "3"},
			{ID: 2, ProblemID: 7, Ordinal: 2, Input: "2 2", ExpectedOutput: "4"},
		},
	}
	data, _ := json.Marshal(problem)
	if err := mr.Set(problemCacheKey(7), string(data)); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	database := &failingDB{}
	repo := NewProblemRepository(database, c, 0)
	got, err := repo.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if database.calls != 0 {
		t.Fatalf("expected no database calls, got %d", database.calls)
	}
	if len(got.TestCases) != 2 || got.TestCases[1].ExpectedOutput != "4" {
		t.Fatalf("unexpected test cases: %+v", got.TestCases)
	}
}

func TestProblemRepositoryCachedMiss(t *testing.T) {
	mr, c := newTestCache(t)
	if err := mr.Set(problemCacheKey(9), cache.NullCacheValue); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	repo := NewProblemRepository(&failingDB{}, c, 0)
	if _, err := repo.GetByID(context.Background(), 9); !errors.Is(err, ErrProblemNotFound) {
		t.Fatalf("expected ErrProblemNotFound, got %v", err)
	}
	if _, err := repo.GetByID(context.Background(), 0); !errors.Is(err, ErrProblemNotFound) {
		t.Fatalf("expected ErrProblemNotFound for id 0, got %v", err)
	}
}

func TestProblemRepositoryDatabaseError(t *testing.T) {
	repo := NewProblemRepository(&failingDB{}, nil, 0)
	_, err := repo.GetByID(context.Background(), 3)
	if err == nil || errors.Is(err, ErrProblemNotFound) {
		t.Fatalf("expected database error, got %v", err)
	}
}

func TestLeaderboardTruncatesCachedList(t *testing.T) {
	mr, c := newTestCache(t)
	entries := make([]model.LeaderboardEntry, 0, 12)
	for i := 1; i <= 12; i++ {
		entries = append(entries, model.LeaderboardEntry{Rank: i, UserID: int64(i), Points: int64(1000 - i)})
	}
	data, _ := json.Marshal(entries)
	if err := mr.Set(leaderboardCacheKey, string(data)); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	repo := NewLeaderboardRepository(&failingDB{}, c, 0)
	top, err := repo.Top(context.Background(), 10)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if len(top) != 10 || top[0].UserID != 1 || top[9].Rank != 10 {
		t.Fatalf("unexpected leaderboard: %+v", top)
	}
}

func TestNullHelpers(t *testing.T) {
	if nullFloat(nil).Valid || nullInt(nil).Valid || nullString(nil).Valid {
		t.Fatalf("nil pointers must map to NULL")
	}
	v := 0.25
	if got := nullFloat(&v); !got.Valid || got.Float64 != 0.25 {
		t.Fatalf("unexpected null float: %+v", got)
	}
}
