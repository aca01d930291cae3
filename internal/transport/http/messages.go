package http

import (
	"encoding/json"
	"errors"

	"studyquiz/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int           `json:"questionIndex"`
	Answer        domain.Answer `json:"answer"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrAlreadyAnswered, "alreadyAnswered"},
	{domain.ErrIncompleteSubmission, "incompleteSubmission"},
	{domain.ErrInvalidAnswer, "invalidAnswer"},
	{domain.ErrQuestionOutOfRange, "questionOutOfRange"},
	{domain.ErrQuizIncomplete, "quizIncomplete"},
	{domain.ErrInvalidTransition, "invalidTransition"},
	{domain.ErrNoRemediationNeeded, "noRemediationNeeded"},
	{domain.ErrPersistenceFailed, "persistenceFailed"},
	{domain.ErrQuizNotFound, "quizNotFound"},
	{domain.ErrSessionNotFound, "sessionNotFound"},
	{domain.ErrMalformedQuestion, "malformedQuestion"},
	{domain.ErrGenerationFailed, "generationFailed"},
	{domain.ErrInvalidRequest, "invalidRequest"},
}

// errorCode maps a domain error to a stable code for clients. Order matters:
// ErrAlreadyAnswered wraps ErrIncompleteSubmission.
func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Code: errorCode(err), Message: err.Error()}}
}
