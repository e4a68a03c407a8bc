package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "codehub/pkg/errors"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{CodeTooLarge, 400},
		{LanguageNotSupported, 400},
		{Unauthorized, 401},
		{Forbidden, 403},
		{ProblemNotFound, 404},
		{SubmissionNotFound, 404},
		{SubmissionBusy, 409},
		{SubmitTooFrequently, 429},
		{InternalServerError, 500},
		{DatabaseError, 500},
		{ExecutionTransportError, 502},
		{EvaluationCapacityFull, 503},
		{Timeout, 504},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestDailyLimitMessage(t *testing.T) {
	want := "You have reached the daily submission limit of 3 for this problem."
	if got := New(SubmitTooFrequently).Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ProblemNotFound, "problem %d not found", int64(123))
	if err.Error() != "problem 123 not found" {
		t.Errorf("Error() = %v", err.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrapf(originalErr, DatabaseError, "load submission %s failed", "abc")

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("wrapped error should match its cause")
	}
	if wrappedErr.Error() != "load submission abc failed" {
		t.Errorf("Error() = %v", wrappedErr.Error())
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(ValidationFailed).
		WithDetail("field", "source_code").
		WithDetail("reason", "empty")

	if err.Details["field"] != "source_code" || err.Details["reason"] != "empty" {
		t.Errorf("details not set: %v", err.Details)
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(SubmissionNotFound), want: SubmissionNotFound},
		{name: "wrapped custom error", err: fmt.Errorf("outer: %w", New(SubmitTooFrequently)), want: SubmitTooFrequently},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(SubmissionBusy)

	if !Is(err, SubmissionBusy) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, DatabaseError) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, SubmissionBusy) {
		t.Error("Is() should return false for nil error")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	if BadRequest("invalid input").Code != InvalidParams {
		t.Error("BadRequest should use InvalidParams code")
	}
	if NotFoundError("problem").Code != NotFound {
		t.Error("NotFoundError should use NotFound code")
	}
	if InternalError(errors.New("db error")).Code != InternalServerError {
		t.Error("InternalError should use InternalServerError code")
	}
	err := ValidationError("language_id", "must be positive")
	if err.Code != ValidationFailed || err.Details["field"] != "language_id" {
		t.Error("ValidationError should carry the field")
	}
}
