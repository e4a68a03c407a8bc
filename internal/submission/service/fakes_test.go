package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"codehub/internal/common/mq"
	"codehub/internal/common/storage"
	"codehub/internal/execution"
	"codehub/internal/submission/model"
	"codehub/internal/submission/repository"
)

type memStore struct {
	mu          sync.Mutex
	submissions map[string]*model.Submission
	results     map[string][]model.TestCaseResult
	awards      map[[2]int64]int
	points      map[int64]int64
	appendErr   error
	awardErr    error
	awardCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		submissions: make(map[string]*model.Submission),
		results:     make(map[string][]model.TestCaseResult),
		awards:      make(map[[2]int64]int),
		points:      make(map[int64]int64),
	}
}

func (m *memStore) CreateSubmission(ctx context.Context, s *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.submissions[s.ID] = &cp
	return nil
}

func (m *memStore) AppendTestCaseResult(ctx context.Context, r *model.TestCaseResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, existing := range m.results[r.SubmissionID] {
		if existing.TestCaseID == r.TestCaseID {
			return nil
		}
	}
	m.results[r.SubmissionID] = append(m.results[r.SubmissionID], *r)
	return nil
}

func (m *memStore) UpdateSubmissionFinal(ctx context.Context, id string, u model.FinalUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return repository.ErrSubmissionNotFound
	}
	s.Status = u.Status
	s.Time = u.Time
	s.Memory = u.Memory
	s.Output = u.Output
	s.Token = u.Token
	return nil
}

func (m *memStore) CountSubmissionsToday(ctx context.Context, userID, problemID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.submissions {
		if s.UserID == userID && s.ProblemID == problemID && !s.SubmittedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ExistsPriorAccepted(ctx context.Context, userID, problemID int64, excluding string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.submissions[excluding]
	if !ok {
		return false, nil
	}
	for _, s := range m.submissions {
		if s.ID == cur.ID || s.UserID != userID || s.ProblemID != problemID || s.Status != model.StatusAccepted {
			continue
		}
		if s.SubmittedAt.Before(cur.SubmittedAt) || (s.SubmittedAt.Equal(cur.SubmittedAt) && s.ID < cur.ID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) AwardPointsOnce(ctx context.Context, userID, problemID int64, points int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awardCalls++
	if m.awardErr != nil {
		return false, m.awardErr
	}
	key := [2]int64{userID, problemID}
	if _, ok := m.awards[key]; ok {
		return false, nil
	}
	m.awards[key] = points
	m.points[userID] += int64(points)
	return true, nil
}

func (m *memStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListResults(ctx context.Context, id string) ([]model.TestCaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TestCaseResult(nil), m.results[id]...), nil
}

func (m *memStore) ListByUserProblem(ctx context.Context, userID, problemID int64, limit int) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Submission
	for _, s := range m.submissions {
		if s.UserID == userID && s.ProblemID == problemID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) submission(id string) model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.submissions[id]
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submissions)
}

func (m *memStore) pointsOf(userID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points[userID]
}

type fakeProblems struct {
	problems map[int64]*model.Problem
}

func (f *fakeProblems) GetByID(ctx context.Context, id int64) (*model.Problem, error) {
	p, ok := f.problems[id]
	if !ok {
		return nil, repository.ErrProblemNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProblems) List(ctx context.Context) ([]model.ProblemSummary, error) {
	var out []model.ProblemSummary
	for _, p := range f.problems {
		out = append(out, model.ProblemSummary{ID: p.ID, Title: p.Title, Points: p.Points})
	}
	return out, nil
}

type fakeLeaderboard struct {
	entries []model.LeaderboardEntry
}

func (f *fakeLeaderboard) Top(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

// fakeExecutor answers by stdin. A stdin without a scripted result times out.
type fakeExecutor struct {
	mu        sync.Mutex
	results   map[string]execution.RunResult
	submitErr error
	submitted []execution.RunRequest
	tokens    map[string]string
	delay     time.Duration
}

func newFakeExecutor(results map[string]execution.RunResult) *fakeExecutor {
	return &fakeExecutor{results: results, tokens: make(map[string]string)}
}

func (f *fakeExecutor) Submit(ctx context.Context, req execution.RunRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	token := "tok-" + req.Stdin
	f.tokens[token] = req.Stdin
	return token, nil
}

func (f *fakeExecutor) PollResult(ctx context.Context, token string, policy execution.PollPolicy) (*execution.RunResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[f.tokens[token]]
	if !ok {
		return nil, execution.ErrPollTimeout
	}
	res.Token = token
	return &res, nil
}

func (f *fakeExecutor) dispatched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type memObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemObjectStorage() *memObjectStorage {
	return &memObjectStorage{objects: make(map[string][]byte)}
}

func (m *memObjectStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memObjectStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjectStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectStat{}, errors.New("object not found")
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

type recordingProducer struct {
	mu       sync.Mutex
	topics   []string
	messages []*mq.Message
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, msg *mq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingProducer) PublishBatch(ctx context.Context, topic string, msgs []*mq.Message) error {
	for _, msg := range msgs {
		if err := p.Publish(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) published() []*mq.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*mq.Message(nil), p.messages...)
}

func (m *memStore) failAwards(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awardErr = err
}
