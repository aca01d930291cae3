package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(questionVariant, Question{})
	return v
}

// questionVariant checks the fields that belong to the question's type.
func questionVariant(sl validator.StructLevel) {
	q := sl.Current().Interface().(Question)
	if strings.TrimSpace(q.Prompt) == "" {
		sl.ReportError(q.Prompt, "Prompt", "question", "notblank", "")
	}
	switch q.Type {
	case TypeMultipleChoice:
		if len(q.Options) == 0 {
			sl.ReportError(q.Options, "Options", "options", "min", "1")
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			sl.ReportError(q.CorrectAnswer, "CorrectAnswer", "correctAnswer", "inbounds", "")
		}
	case TypeShortAnswer:
		accepted := 0
		for _, a := range q.Answers {
			if strings.TrimSpace(a) != "" {
				accepted++
			}
		}
		if accepted == 0 {
			sl.ReportError(q.Answers, "Answers", "answers", "min", "1")
		}
	case TypeMatching:
		if len(q.Pairs) == 0 {
			sl.ReportError(q.Pairs, "Pairs", "pairs", "min", "1")
		}
	case TypePuzzle:
		if len(q.Steps) == 0 {
			sl.ReportError(q.Steps, "Steps", "steps", "min", "1")
		}
	}
}

// ValidateQuestions rejects the whole set if any question is malformed.
// Unknown type tags are rejected, never defaulted.
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrMalformedQuestion)
	}
	for i, q := range questions {
		if err := validate.Struct(q); err != nil {
			return fmt.Errorf("%w: question %d: %s", ErrMalformedQuestion, i, describe(err))
		}
	}
	return nil
}

// ValidateQuiz validates the question set of a quiz document.
func ValidateQuiz(q Quiz) error {
	return ValidateQuestions(q.Questions)
}

// ValidateRequest checks a generation request after defaults are applied.
func ValidateRequest(req GenerationRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
