package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNotFound is returned by document stores when a key has no document.
	ErrNotFound = errors.New("document not found")
	// ErrMalformedQuestion rejects a question set at ingestion.
	ErrMalformedQuestion = errors.New("malformed question")
	// ErrIncompleteSubmission is returned for partial answers; no state changes.
	ErrIncompleteSubmission = errors.New("incomplete submission")
	// ErrAlreadyAnswered is an IncompleteSubmission: an index can be answered once.
	ErrAlreadyAnswered = fmt.Errorf("%w: question already answered", ErrIncompleteSubmission)
	// ErrInvalidAnswer indicates the answer shape does not fit the question type.
	ErrInvalidAnswer = errors.New("answer does not match question type")
	// ErrQuestionOutOfRange indicates a question index outside the quiz.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrPersistenceFailed wraps document store failures.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrGenerationFailed indicates the question source produced nothing usable.
	ErrGenerationFailed = errors.New("quiz generation failed")
	// ErrNoRemediationNeeded is returned when every answer was correct.
	ErrNoRemediationNeeded = errors.New("nothing to remediate")
	// ErrQuizIncomplete is returned when finalizing before every question is answered.
	ErrQuizIncomplete = errors.New("quiz has unanswered questions")
	// ErrInvalidRequest rejects a generation request before any source is called.
	ErrInvalidRequest = errors.New("invalid generation request")
	// ErrInvalidTransition indicates an operation not allowed in the current session state.
	ErrInvalidTransition = errors.New("operation not allowed in current session state")
)
