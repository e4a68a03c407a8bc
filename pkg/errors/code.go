package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: User & Auth errors
// 12000-12999: Problem errors
// 13000-13999: Submission & Execution errors

const (
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10303

	// Auth (11000-11099)
	UserNotFound ErrorCode = 11001
	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// Problems (12000-12099)
	ProblemNotFound ErrorCode = 12000

	// Submissions (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004
	SubmissionBusy         ErrorCode = 13005

	// Execution service (13100-13199)
	ExecutionTransportError ErrorCode = 13100
	ExecutionServiceError   ErrorCode = 13101
	ExecutionPollTimeout    ErrorCode = 13102
	EvaluationCapacityFull  ErrorCode = 13103
)

var errorMessages = map[ErrorCode]string{
	Success: "Success",

	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized",
	Forbidden:           "Forbidden",
	TooManyRequests:     "Too many requests",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:       "Database error",
	RecordNotFound:      "Record not found",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Transaction failed",

	CacheError: "Cache error",
	LockFailed: "Failed to acquire lock",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	UserNotFound: "User not found",
	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	ProblemNotFound: "Problem not found",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Source code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "You have reached the daily submission limit of 3 for this problem.",
	SubmissionBusy:         "Another submission for this problem is being created",

	ExecutionTransportError: "Execution service unreachable",
	ExecutionServiceError:   "Execution service rejected the request",
	ExecutionPollTimeout:    "Execution result not ready in time",
	EvaluationCapacityFull:  "Evaluation capacity exhausted",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus maps the error code to an HTTP status code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return http.StatusOK
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return http.StatusUnauthorized
	case c == Forbidden:
		return http.StatusForbidden
	case c == NotFound, c == RecordNotFound, c == UserNotFound, c == ProblemNotFound, c == SubmissionNotFound:
		return http.StatusNotFound
	case c == TooManyRequests, c == SubmitTooFrequently:
		return http.StatusTooManyRequests
	case c == SubmissionBusy, c == RecordAlreadyExists:
		return http.StatusConflict
	case c == ServiceUnavailable, c == EvaluationCapacityFull:
		return http.StatusServiceUnavailable
	case c == Timeout:
		return http.StatusGatewayTimeout
	case c >= 10300 && c < 10400: // Validation errors
		return http.StatusBadRequest
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported:
		return http.StatusBadRequest
	case c >= 13100 && c < 13200:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
