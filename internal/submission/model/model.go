package model

import "time"

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusRunning      Status = "RUNNING"
	StatusAccepted     Status = "ACCEPTED"
	StatusWrongAnswer  Status = "WRONG_ANSWER"
	StatusTLE          Status = "TLE"
	StatusRuntimeError Status = "RUNTIME_ERROR"
	StatusCompileError Status = "COMPILE_ERROR"
	StatusSystemError  Status = "SYSTEM_ERROR"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTLE, StatusRuntimeError, StatusCompileError, StatusSystemError:
		return true
	default:
		return false
	}
}

// Difficulty of a problem.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Problem is immutable while submissions are evaluated against it.
type Problem struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Slug       string     `json:"slug"`
	Difficulty Difficulty `json:"difficulty"`
	Points     int        `json:"points"`

	// TimeLimit is in seconds, MemoryLimit in KB.
	TimeLimit   float64    `json:"time_limit"`
	MemoryLimit int        `json:"memory_limit"`
	TestCases   []TestCase `json:"test_cases,omitempty"`
}

// TestCase belongs to exactly one problem. Ordinal fixes evaluation order.
type TestCase struct {
	ID             int64  `json:"id"`
	ProblemID      int64  `json:"problem_id"`
	Ordinal        int    `json:"ordinal"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
}

// Submission is one attempt of one user at one problem.
type Submission struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	ProblemID    int64     `json:"problem_id"`
	SourceCode   string    `json:"source_code,omitempty"`
	LanguageID   int       `json:"language_id"`
	LanguageName string    `json:"language_name"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Status       Status    `json:"status"`
	Time         *float64  `json:"time"`
	Memory       *int64    `json:"memory"`
	Output       *string   `json:"output"`
	Token        *string   `json:"token,omitempty"`
}

// TestCaseResult is appended once per evaluated test case.
type TestCaseResult struct {
	SubmissionID string  `json:"submission_id"`
	TestCaseID   int64   `json:"test_case_id"`
	Ordinal      int     `json:"ordinal"`
	IsSample     bool    `json:"is_sample"`
	Output       string  `json:"output"`
	Status       string  `json:"status"`
	Time         float64 `json:"time"`
	Memory       int64   `json:"memory"`
}

// MaxResultStatusLength bounds the stored per test case status text.
const MaxResultStatusLength = 55

// FinalUpdate is the write-back applied when a submission leaves RUNNING.
type FinalUpdate struct {
	Status Status
	Time   *float64
	Memory *int64
	Output *string
	Token  *string
}

// ProblemSummary is a catalogue row.
type ProblemSummary struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Difficulty  Difficulty `json:"difficulty"`
	Points      int        `json:"points"`
	SuccessRate float64    `json:"success_rate"`
}

// LeaderboardEntry is one row of the points ranking.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Points   int64  `json:"points"`
}
