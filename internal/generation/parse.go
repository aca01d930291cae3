package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"studyquiz/internal/domain"
)

// ExtractJSON returns the text between the first '{' and the last '}'.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in response", domain.ErrGenerationFailed)
	}
	return text[start : end+1], nil
}

// ParseQuestion decodes one generated question. A missing or unexpected type
// tag is an error; nothing is defaulted.
func ParseQuestion(text string, want domain.QuestionType) (domain.Question, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return domain.Question{}, err
	}
	var q domain.Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return domain.Question{}, fmt.Errorf("%w: decode question: %v", domain.ErrGenerationFailed, err)
	}
	if q.Type == "" {
		return domain.Question{}, fmt.Errorf("%w: question without type", domain.ErrGenerationFailed)
	}
	if want != "" && q.Type != want {
		return domain.Question{}, fmt.Errorf("%w: asked for %s, got %s", domain.ErrGenerationFailed, want, q.Type)
	}
	if err := domain.ValidateQuestions([]domain.Question{q}); err != nil {
		return domain.Question{}, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	return q, nil
}
