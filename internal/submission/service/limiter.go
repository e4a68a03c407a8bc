package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/puzpuzpuz/xsync/v3"

	"codehub/internal/common/cache"
	appErr "codehub/pkg/errors"
)

const (
	DefaultDailyLimit   = 3
	defaultLockTTL      = 5 * time.Second
	defaultLockWait     = 2 * time.Second
	defaultLockInterval = 50 * time.Millisecond
	submitLockKeyPrefix = "submit:lock:"
)

// SubmissionCounter is the part of the result store the limiter needs.
type SubmissionCounter interface {
	CountSubmissionsToday(ctx context.Context, userID, problemID int64, since time.Time) (int, error)
}

// LimiterConfig configures the daily submission cap.
type LimiterConfig struct {
	DailyLimit int
	// Location fixes the day boundary. Defaults to UTC.
	Location *time.Location
	LockTTL  time.Duration
	LockWait time.Duration
	Now      func() time.Time
}

// DailyLimiter caps submissions per (user, problem) per calendar day.
// Counting and creating happen under a per pair lock so two concurrent
// requests cannot both observe the same count.
type DailyLimiter struct {
	counter SubmissionCounter
	locker  cache.LockOps
	local   *pairLocks
	cfg     LimiterConfig
}

// NewDailyLimiter builds a limiter. locker may be nil, in which case pairs
// are serialized in process only and several replicas can overshoot the cap.
func NewDailyLimiter(counter SubmissionCounter, locker cache.LockOps, cfg LimiterConfig) *DailyLimiter {
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DailyLimiter{counter: counter, locker: locker, local: newPairLocks(), cfg: cfg}
}

// Limit returns the configured daily cap.
func (l *DailyLimiter) Limit() int {
	return l.cfg.DailyLimit
}

// DayStart returns midnight of now in the configured location.
func (l *DailyLimiter) DayStart(now time.Time) time.Time {
	local := now.In(l.cfg.Location)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, l.cfg.Location)
}

// Reserve runs create only while the pair is under its daily cap.
// A rejected request creates nothing.
func (l *DailyLimiter) Reserve(ctx context.Context, userID, problemID int64, create func(ctx context.Context) error) error {
	if l.locker != nil {
		key := fmt.Sprintf("%s%d:%d", submitLockKeyPrefix, userID, problemID)
		token, err := l.acquire(ctx, key)
		if err != nil {
			return err
		}
		defer func() { _ = l.locker.Unlock(context.WithoutCancel(ctx), key, token) }()
	} else {
		unlock := l.local.lock([2]int64{userID, problemID})
		defer unlock()
	}

	count, err := l.counter.CountSubmissionsToday(ctx, userID, problemID, l.DayStart(l.cfg.Now()))
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "count submissions failed")
	}
	if count >= l.cfg.DailyLimit {
		return appErr.New(appErr.SubmitTooFrequently).
			WithMessagef("You have reached the daily submission limit of %d for this problem.", l.cfg.DailyLimit)
	}
	return create(ctx)
}

func (l *DailyLimiter) acquire(ctx context.Context, key string) (string, error) {
	var token string
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(defaultLockInterval), uint64(l.cfg.LockWait/defaultLockInterval)),
		ctx,
	)
	err := backoff.Retry(func() error {
		t, ok, err := l.locker.TryLock(ctx, key, l.cfg.LockTTL)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockBusy
		}
		token = t
		return nil
	}, policy)
	if err != nil {
		if errors.Is(err, errLockBusy) {
			return "", appErr.New(appErr.SubmissionBusy)
		}
		return "", appErr.Wrapf(err, appErr.LockFailed, "acquire submit lock failed")
	}
	return token, nil
}

var errLockBusy = errors.New("submit lock busy")

// pairLocks hands out one mutex per (user, problem), dropping it once no
// caller holds or waits on it.
type pairLocks struct {
	locks *xsync.MapOf[[2]int64, *pairLock]
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: xsync.NewMapOf[[2]int64, *pairLock]()}
}

func (p *pairLocks) lock(key [2]int64) func() {
	entry, _ := p.locks.Compute(key, func(old *pairLock, loaded bool) (*pairLock, bool) {
		if !loaded {
			old = &pairLock{}
		}
		old.refs++
		return old, false
	})
	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		p.locks.Compute(key, func(old *pairLock, loaded bool) (*pairLock, bool) {
			old.refs--
			return old, old.refs == 0
		})
	}
}
