package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"codehub/internal/execution"
	"codehub/internal/submission/model"
	"codehub/internal/submission/repository"
	appErr "codehub/pkg/errors"
	"codehub/pkg/utils/contextkey"
	"codehub/pkg/utils/logger"
)

const (
	defaultMaxCodeBytes  = 64 * 1024
	defaultMaxConcurrent = 16
	defaultSlotWait      = 10 * time.Second
)

// TimeoutConfig bounds calls to the stores and side channels.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Storage time.Duration `yaml:"storage"`
	MQ      time.Duration `yaml:"mq"`
}

// Config holds submission service dependencies and settings.
type Config struct {
	Problems repository.ProblemRepository
	Store    repository.ResultStore
	Executor execution.Client
	Limiter  *DailyLimiter
	Awards   *AwardGuard

	// Optional side channels.
	Archiver SourceArchiver
	Events   EventPublisher
	Progress *ProgressHub

	PollPolicy execution.PollPolicy
	// StrictLanguages rejects language ids outside the known table.
	StrictLanguages bool
	MaxCodeBytes    int
	MaxConcurrent   int64
	SlotWait        time.Duration
	Timeouts        TimeoutConfig
	Now             func() time.Time
}

// SubmissionService runs submissions against a problem's test cases.
type SubmissionService struct {
	problems repository.ProblemRepository
	store    repository.ResultStore
	executor execution.Client
	limiter  *DailyLimiter
	awards   *AwardGuard
	archiver SourceArchiver
	events   EventPublisher
	progress *ProgressHub

	pollPolicy      execution.PollPolicy
	strictLanguages bool
	maxCodeBytes    int
	slotWait        time.Duration
	timeouts        TimeoutConfig
	now             func() time.Time

	slots    *semaphore.Weighted
	inflight sync.WaitGroup
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	UserID     int64
	ProblemID  int64
	LanguageID int
	SourceCode string
}

// SubmitResult is the outcome of a synchronous submission.
type SubmitResult struct {
	Submission    *model.Submission      `json:"submission"`
	Results       []model.TestCaseResult `json:"results"`
	PointsAwarded bool                   `json:"points_awarded"`
}

type evaluation struct {
	result *SubmitResult
	err    error
}

// NewSubmissionService creates a new submission service.
func NewSubmissionService(cfg Config) (*SubmissionService, error) {
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("execution client is required")
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewDailyLimiter(cfg.Store, nil, LimiterConfig{})
	}
	if cfg.Awards == nil {
		cfg.Awards = NewAwardGuard(cfg.Store)
	}
	if cfg.PollPolicy.MaxAttempts <= 0 || cfg.PollPolicy.Interval <= 0 {
		cfg.PollPolicy = execution.DefaultPollPolicy()
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.SlotWait <= 0 {
		cfg.SlotWait = defaultSlotWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SubmissionService{
		problems:        cfg.Problems,
		store:           cfg.Store,
		executor:        cfg.Executor,
		limiter:         cfg.Limiter,
		awards:          cfg.Awards,
		archiver:        cfg.Archiver,
		events:          cfg.Events,
		progress:        cfg.Progress,
		pollPolicy:      cfg.PollPolicy,
		strictLanguages: cfg.StrictLanguages,
		maxCodeBytes:    cfg.MaxCodeBytes,
		slotWait:        cfg.SlotWait,
		timeouts:        cfg.Timeouts,
		now:             cfg.Now,
		slots:           semaphore.NewWeighted(cfg.MaxConcurrent),
	}, nil
}

// Submit creates a submission and waits for its verdict. If ctx ends first
// the evaluation keeps running and ctx's error is returned.
func (s *SubmissionService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	_, done, err := s.start(ctx, input)
	if err != nil {
		return nil, err
	}
	select {
	case ev := <-done:
		return ev.result, ev.err
	case <-ctx.Done():
		return nil, appErr.Wrapf(ctx.Err(), appErr.Timeout, "evaluation still running")
	}
}

// SubmitAsync creates a submission and returns it in RUNNING state.
func (s *SubmissionService) SubmitAsync(ctx context.Context, input SubmitInput) (*model.Submission, error) {
	submission, _, err := s.start(ctx, input)
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// Wait blocks until every started evaluation has finished or ctx ends.
func (s *SubmissionService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SubmissionService) start(ctx context.Context, input SubmitInput) (*model.Submission, <-chan evaluation, error) {
	if err := s.validateInput(input); err != nil {
		return nil, nil, err
	}
	problem, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.acquireSlot(ctx); err != nil {
		return nil, nil, err
	}
	released := false
	release := func() {
		if !released {
			released = true
			s.slots.Release(1)
		}
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	submission := &model.Submission{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		ProblemID:    input.ProblemID,
		SourceCode:   input.SourceCode,
		LanguageID:   input.LanguageID,
		LanguageName: model.LanguageName(input.LanguageID),
		SubmittedAt:  s.now().UTC(),
		Status:       model.StatusRunning,
	}
	err = s.limiter.Reserve(ctx, input.UserID, input.ProblemID, func(ctx context.Context) error {
		ctxDB := withTimeout(ctx, s.timeouts.DB)
		defer ctxDB.cancel()
		if err := s.store.CreateSubmission(ctxDB.ctx, submission); err != nil {
			return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.progress.Open(submission.ID)
	done := make(chan evaluation, 1)
	evalCtx := context.WithValue(context.WithoutCancel(ctx), contextkey.SubmissionID, submission.ID)
	snapshot := *submission
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer release()
		result, evalErr := s.evaluate(evalCtx, &snapshot, problem)
		done <- evaluation{result: result, err: evalErr}
	}()
	return submission, done, nil
}

func (s *SubmissionService) validateInput(input SubmitInput) error {
	if input.UserID <= 0 {
		return appErr.ValidationError("user_id", "required")
	}
	if input.ProblemID <= 0 {
		return appErr.ValidationError("problem_id", "required")
	}
	if input.LanguageID <= 0 {
		return appErr.ValidationError("language_id", "invalid")
	}
	if s.strictLanguages && !model.IsSupportedLanguage(input.LanguageID) {
		return appErr.New(appErr.LanguageNotSupported).WithMessagef("language %d is not supported", input.LanguageID)
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if len(input.SourceCode) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	return nil
}

func (s *SubmissionService) loadProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	problem, err := s.problems.GetByID(ctxDB.ctx, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound).WithMessage("problem not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	return problem, nil
}

func (s *SubmissionService) acquireSlot(ctx context.Context) error {
	ctxWait := withTimeout(ctx, s.slotWait)
	defer ctxWait.cancel()
	if err := s.slots.Acquire(ctxWait.ctx, 1); err != nil {
		if ctx.Err() != nil {
			return appErr.Wrapf(ctx.Err(), appErr.Timeout, "request ended before evaluation started")
		}
		return appErr.New(appErr.EvaluationCapacityFull)
	}
	return nil
}

// evaluate dispatches test cases in order and stops at the first failure.
func (s *SubmissionService) evaluate(ctx context.Context, submission *model.Submission, problem *model.Problem) (*SubmitResult, error) {
	s.archive(ctx, submission)

	agg := NewAggregator()
	results := make([]model.TestCaseResult, 0, len(problem.TestCases))
	for _, tc := range problem.TestCases {
		outcome := s.runTestCase(ctx, submission, problem, tc)
		passed := agg.Add(outcome)

		row := model.TestCaseResult{
			SubmissionID: submission.ID,
			TestCaseID:   tc.ID,
			Ordinal:      tc.Ordinal,
			IsSample:     tc.IsSample,
			Output:       outcome.Stdout,
			Status:       outcome.ResultStatus(),
			Time:         outcome.Time,
			Memory:       outcome.Memory,
		}
		if err := s.appendResult(ctx, &row); err != nil {
			s.abort(ctx, submission, err)
			return nil, err
		}
		results = append(results, row)
		s.progress.Publish(ProgressEvent{Type: ProgressTestCase, SubmissionID: submission.ID, Result: &row})
		if !passed {
			break
		}
	}

	final := agg.Final()
	if err := s.writeBack(ctx, submission.ID, final); err != nil {
		s.abort(ctx, submission, err)
		return nil, err
	}
	applyFinal(submission, final)
	if agg.Dispatched() == 0 {
		logger.Warn(ctx, "problem has no test cases", zap.Int64("problem_id", problem.ID))
	}

	awarded := false
	if final.Status == model.StatusAccepted {
		var err error
		awarded, err = s.awards.Award(ctx, submission, problem.Points)
		if err != nil {
			s.finish(ctx, submission, agg.Dispatched(), false)
			return nil, err
		}
	}

	logger.Info(ctx, "submission evaluated",
		zap.String("status", string(final.Status)),
		zap.Int("test_cases_run", agg.Dispatched()),
		zap.Bool("points_awarded", awarded),
	)
	s.finish(ctx, submission, agg.Dispatched(), awarded)
	return &SubmitResult{Submission: submission, Results: results, PointsAwarded: awarded}, nil
}

func (s *SubmissionService) runTestCase(ctx context.Context, submission *model.Submission, problem *model.Problem, tc model.TestCase) Outcome {
	req := execution.RunRequest{
		SourceCode:     submission.SourceCode,
		LanguageID:     submission.LanguageID,
		Stdin:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		TimeLimit:      problem.TimeLimit,
		MemoryLimit:    problem.MemoryLimit,
	}
	token, err := s.executor.Submit(ctx, req)
	if err != nil {
		logger.Warn(ctx, "dispatch test case failed", zap.Int64("test_case_id", tc.ID), zap.Error(err))
		return OutcomeFromResult(nil)
	}
	result, err := s.executor.PollResult(ctx, token, s.pollPolicy)
	if err != nil {
		logger.Warn(ctx, "poll test case failed",
			zap.Int64("test_case_id", tc.ID),
			zap.String("token", token),
			zap.Error(err),
		)
		outcome := OutcomeFromResult(nil)
		outcome.Token = token
		return outcome
	}
	return OutcomeFromResult(result)
}

func (s *SubmissionService) appendResult(ctx context.Context, row *model.TestCaseResult) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.store.AppendTestCaseResult(ctxDB.ctx, row); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "persist test case result failed")
	}
	return nil
}

func (s *SubmissionService) writeBack(ctx context.Context, submissionID string, update model.FinalUpdate) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.store.UpdateSubmissionFinal(ctxDB.ctx, submissionID, update); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "write back submission failed")
	}
	return nil
}

// abort tries to leave the submission in SYSTEM_ERROR after a persistence failure.
func (s *SubmissionService) abort(ctx context.Context, submission *model.Submission, cause error) {
	logger.Error(ctx, "evaluation aborted", zap.Error(cause))
	update := model.FinalUpdate{Status: model.StatusSystemError}
	if err := s.writeBack(ctx, submission.ID, update); err != nil {
		logger.Error(ctx, "mark submission failed", zap.Error(err))
	}
	applyFinal(submission, update)
	s.finish(ctx, submission, 0, false)
}

func (s *SubmissionService) finish(ctx context.Context, submission *model.Submission, run int, awarded bool) {
	s.progress.Publish(ProgressEvent{
		Type:          ProgressFinished,
		SubmissionID:  submission.ID,
		Status:        submission.Status,
		Time:          submission.Time,
		Memory:        submission.Memory,
		PointsAwarded: awarded,
	})
	if s.events == nil {
		return
	}
	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	event := FinishedEvent{
		SubmissionID:  submission.ID,
		UserID:        submission.UserID,
		ProblemID:     submission.ProblemID,
		LanguageID:    submission.LanguageID,
		Status:        submission.Status,
		Time:          submission.Time,
		Memory:        submission.Memory,
		TestCasesRun:  run,
		PointsAwarded: awarded,
		FinishedAt:    s.now().UTC(),
	}
	if err := s.events.PublishFinished(ctxMQ.ctx, event); err != nil {
		logger.Warn(ctx, "publish finished event failed", zap.Error(err))
	}
}

func (s *SubmissionService) archive(ctx context.Context, submission *model.Submission) {
	if s.archiver == nil {
		return
	}
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	if err := s.archiver.Archive(ctxStorage.ctx, submission); err != nil {
		logger.Warn(ctx, "archive source failed", zap.Error(err))
	}
}

func applyFinal(submission *model.Submission, update model.FinalUpdate) {
	submission.Status = update.Status
	submission.Time = update.Time
	submission.Memory = update.Memory
	submission.Output = update.Output
	submission.Token = update.Token
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
