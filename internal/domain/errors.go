package domain

import "errors"

var (
	// ErrAttemptNotFound is returned when no live session exists for an attempt ID.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptClosed is returned for mutations after the attempt left NotSubmitted.
	ErrAttemptClosed = errors.New("attempt already submitted or submitting")
	// ErrPositionOutOfRange indicates a question position outside the attempt's question list.
	ErrPositionOutOfRange = errors.New("question position out of range")
	// ErrOptionOutOfRange indicates a selected option index outside the question's options.
	ErrOptionOutOfRange = errors.New("option index out of range")
	// ErrNoQuestions indicates the backend started an attempt with an empty question list.
	ErrNoQuestions = errors.New("no questions available")

	// ErrStartFailed is the fatal failure category for starting an attempt.
	ErrStartFailed = errors.New("start attempt failed")
	// ErrSubmitFailed is the retryable failure category after the submit call failed;
	// one more manual submit is permitted.
	ErrSubmitFailed = errors.New("submit attempt failed")
	// ErrSubmitTerminal is the unrecoverable submit failure after the retry was spent.
	// The backend may still have recorded the attempt; users are told to check history.
	ErrSubmitTerminal = errors.New("submit attempt failed permanently")
	// ErrResultFetchFailed is a recoverable failure while re-fetching a submitted result.
	ErrResultFetchFailed = errors.New("result fetch failed")
	// ErrMalformedResult indicates the backend response held nothing usable to build
	// even a degraded summary.
	ErrMalformedResult = errors.New("malformed result payload")
	// ErrResultNotFound indicates no stored or fetchable result for an attempt.
	ErrResultNotFound = errors.New("result not found")
)
