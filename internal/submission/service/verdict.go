package service

import (
	"strings"

	"codehub/internal/execution"
	"codehub/internal/submission/model"
)

// SystemErrorDescription is recorded when a test case produced no result.
const SystemErrorDescription = "System Error"

// StatusFromDescription maps an execution status description to a submission status.
func StatusFromDescription(description string) model.Status {
	switch d := strings.TrimSpace(description); {
	case d == "Accepted":
		return model.StatusAccepted
	case d == "Wrong Answer":
		return model.StatusWrongAnswer
	case d == "Time Limit Exceeded":
		return model.StatusTLE
	case d == "Compilation Error":
		return model.StatusCompileError
	case strings.HasPrefix(d, "Runtime Error"):
		return model.StatusRuntimeError
	default:
		return model.StatusSystemError
	}
}

// Outcome is what one dispatched test case reported.
type Outcome struct {
	Description string
	Stdout      string
	Time        float64
	Memory      int64
	Token       string
}

// OutcomeFromResult converts a run result; nil becomes a system error with zero metrics.
func OutcomeFromResult(result *execution.RunResult) Outcome {
	if result == nil {
		return Outcome{Description: SystemErrorDescription}
	}
	return Outcome{
		Description: result.Description,
		Stdout:      result.Stdout,
		Time:        result.Time,
		Memory:      result.Memory,
		Token:       result.Token,
	}
}

// Passed reports whether the test case was accepted.
func (o Outcome) Passed() bool {
	return StatusFromDescription(o.Description) == model.StatusAccepted
}

// ResultStatus is the description as stored on the test case row.
func (o Outcome) ResultStatus() string {
	d := o.Description
	if d == "" {
		d = SystemErrorDescription
	}
	return truncateRunes(d, model.MaxResultStatusLength)
}

func truncateRunes(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// Aggregator folds test case outcomes into a submission verdict.
// The first failure is sticky; metrics are maxima over every outcome seen.
type Aggregator struct {
	dispatched int
	failure    string
	maxTime    float64
	maxMemory  int64
	lastOutput string
	lastToken  string
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add folds one outcome and reports whether it passed.
func (a *Aggregator) Add(o Outcome) bool {
	a.dispatched++
	if o.Time > a.maxTime {
		a.maxTime = o.Time
	}
	if o.Memory > a.maxMemory {
		a.maxMemory = o.Memory
	}
	a.lastOutput = o.Stdout
	if o.Token != "" {
		a.lastToken = o.Token
	}
	passed := o.Passed()
	if !passed && a.failure == "" {
		a.failure = o.ResultStatus()
	}
	return passed
}

// Dispatched is the number of outcomes folded so far.
func (a *Aggregator) Dispatched() int {
	return a.dispatched
}

// Status is ACCEPTED only when at least one test case ran and none failed.
func (a *Aggregator) Status() model.Status {
	if a.dispatched == 0 {
		return model.StatusSystemError
	}
	if a.failure == "" {
		return model.StatusAccepted
	}
	return StatusFromDescription(a.failure)
}

// Final builds the write-back. Zero metrics are stored as NULL.
func (a *Aggregator) Final() model.FinalUpdate {
	update := model.FinalUpdate{Status: a.Status()}
	if a.dispatched == 0 {
		return update
	}
	if a.maxTime > 0 {
		t := a.maxTime
		update.Time = &t
	}
	if a.maxMemory > 0 {
		m := a.maxMemory
		update.Memory = &m
	}
	output := a.lastOutput
	update.Output = &output
	if a.lastToken != "" {
		token := a.lastToken
		update.Token = &token
	}
	return update
}
