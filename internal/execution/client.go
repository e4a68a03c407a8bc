// Package execution talks to the remote code execution service.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// StatusInQueue and StatusProcessing are the only non-terminal status ids.
	StatusInQueue    = 1
	StatusProcessing = 2
	// StatusAccepted is the id the service uses for a passing run.
	StatusAccepted = 3

	DefaultPollAttempts = 20
	DefaultPollInterval = 500 * time.Millisecond
)

// RunRequest is one program run against one input.
type RunRequest struct {
	SourceCode     string
	LanguageID     int
	Stdin          string
	ExpectedOutput string
	// TimeLimit is CPU seconds, MemoryLimit is KB. Zero falls back to the client defaults.
	TimeLimit   float64
	MemoryLimit int
}

// RunResult is the terminal outcome of one run.
type RunResult struct {
	Token       string
	StatusID    int
	Description string
	Stdout      string
	Time        float64
	Memory      int64
}

// Terminal reports whether the service finished the run.
func (r *RunResult) Terminal() bool {
	return r.StatusID != StatusInQueue && r.StatusID != StatusProcessing
}

// PollPolicy bounds how long PollResult waits for a terminal status.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPollPolicy returns 20 attempts spaced 500ms apart.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{MaxAttempts: DefaultPollAttempts, Interval: DefaultPollInterval}
}

func (p PollPolicy) normalized() PollPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPollAttempts
	}
	if p.Interval < 0 {
		p.Interval = 0
	}
	return p
}

// Client submits runs and polls their results.
type Client interface {
	Submit(ctx context.Context, req RunRequest) (string, error)
	PollResult(ctx context.Context, token string, policy PollPolicy) (*RunResult, error)
}

// ErrPollTimeout is returned when no terminal status arrived within the poll budget.
var ErrPollTimeout = errors.New("execution: result not terminal after poll budget")

// TransportError wraps network level failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("execution %s transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServiceError is a response the service produced but that cannot be used.
type ServiceError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("execution %s: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("execution %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// retryable reports whether a poll may try again after err.
func retryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.StatusCode >= 500 || serviceErr.StatusCode == 429
	}
	return false
}
