package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codehub/internal/common/cache"
	"codehub/internal/common/db"
	"codehub/internal/submission/model"
)

const (
	leaderboardCacheKey   = "leaderboard:top"
	leaderboardCacheLimit = 100
	defaultLeaderboardTTL = 5 * time.Minute
)

// SQLLeaderboardRepository ranks users by points with a cached top list.
type SQLLeaderboardRepository struct {
	db    db.Database
	cache cache.Cache
	ttl   time.Duration
}

// NewLeaderboardRepository creates a leaderboard repository. cacheClient may be nil.
func NewLeaderboardRepository(database db.Database, cacheClient cache.Cache, ttl time.Duration) *SQLLeaderboardRepository {
	if ttl <= 0 {
		ttl = defaultLeaderboardTTL
	}
	return &SQLLeaderboardRepository{db: database, cache: cacheClient, ttl: ttl}
}

// Top returns up to limit users ordered by points, ties broken by id.
func (r *SQLLeaderboardRepository) Top(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > leaderboardCacheLimit {
		limit = leaderboardCacheLimit
	}
	var (
		entries []model.LeaderboardEntry
		err     error
	)
	if r.cache == nil {
		entries, err = r.load(ctx)
	} else {
		entries, err = cache.GetWithCached[[]model.LeaderboardEntry](
			ctx,
			r.cache,
			leaderboardCacheKey,
			cache.JitterTTL(r.ttl),
			time.Minute,
			func(v []model.LeaderboardEntry) bool { return len(v) == 0 },
			marshalLeaderboard,
			unmarshalLeaderboard,
			r.load,
		)
	}
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *SQLLeaderboardRepository) load(ctx context.Context) ([]model.LeaderboardEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, username, points FROM users ORDER BY points DESC, id ASC LIMIT ?`, leaderboardCacheLimit)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Points); err != nil {
			return nil, err
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard failed: %w", err)
	}
	return out, nil
}

func marshalLeaderboard(v []model.LeaderboardEntry) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalLeaderboard(data string) ([]model.LeaderboardEntry, error) {
	var v []model.LeaderboardEntry
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, err
	}
	return v, nil
}
