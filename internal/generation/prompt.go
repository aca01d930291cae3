package generation

import (
	"fmt"
	"strings"

	"studyquiz/internal/domain"
)

// MaxMaterialChars bounds how much study material is quoted in a prompt.
const MaxMaterialChars = 2000

const fallbackTitle = "Study Quiz"

var difficultyDescriptions = map[string]string{
	domain.DifficultyEasy:   "basic understanding of the material, suitable for beginners",
	domain.DifficultyMedium: "intermediate level that tests deeper comprehension",
	domain.DifficultyHard:   "challenging questions that require critical thinking and mastery of the subject",
}

var formats = map[domain.QuestionType]string{
	domain.TypeMultipleChoice: `{
  "type": "multipleChoice",
  "question": "The question text",
  "options": ["Option A", "Option B", "Option C", "Option D"],
  "correctAnswer": 0,
  "explanation": "Why the answer is correct"
}
"correctAnswer" is the 0-based index of the correct option.`,
	domain.TypeShortAnswer: `{
  "type": "shortAnswer",
  "question": "The question text",
  "answers": ["accepted answer", "accepted variant"],
  "explanation": "Why the answer is correct"
}
Accepted answers must be one to three words.`,
	domain.TypeMatching: `{
  "type": "matching",
  "question": "Match each term with its definition",
  "pairs": [{"term": "Term", "definition": "Definition"}],
  "explanation": "How the pairs relate"
}
Provide between three and five pairs.`,
	domain.TypePuzzle: `{
  "type": "puzzle",
  "question": "The problem to solve",
  "steps": [{"prompt": "First step", "answer": "short answer", "hint": "optional hint"}],
  "explanation": "How the steps lead to the solution"
}
Each step answer must be one to three words.`,
}

// BuildPrompt asks for question number index (0-based) of total.
func BuildPrompt(content, difficulty string, qtype domain.QuestionType, index, total int) string {
	material := content
	if len(material) > MaxMaterialChars {
		material = material[:MaxMaterialChars] + "..."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a single, direct %s question based on the following study material. ", qtype)
	fmt.Fprintf(&sb, "Make it %s difficulty (%s).\n\n", difficulty, difficultyDescriptions[difficulty])
	fmt.Fprintf(&sb, "Study Material: %q\n\n", material)
	sb.WriteString("Guidelines:\n")
	sb.WriteString("1. Write clear, concise questions of at most 20 words.\n")
	sb.WriteString("2. Do not add phrases like \"Based on the study material\". Ask the question directly.\n")
	sb.WriteString("3. Keep answers brief and distinct from each other.\n")
	sb.WriteString("4. Provide a very brief explanation.\n\n")
	sb.WriteString("Respond with a single JSON object of this shape:\n")
	sb.WriteString(formats[qtype])
	fmt.Fprintf(&sb, "\n\nThe \"type\" field must be %q. ", qtype)
	fmt.Fprintf(&sb, "Ensure the question differs from earlier ones. This is question %d of %d.\n", index+1, total)
	return sb.String()
}

// DeriveTitle builds a quiz title from the first line of the material.
func DeriveTitle(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return fallbackTitle
	}
	first, _, _ := strings.Cut(content, "\n")
	first = strings.TrimSpace(first)

	source := first
	if len([]rune(first)) <= 10 {
		source = content
	}
	runes := []rune(source)
	title := source
	if len(runes) > 50 {
		title = string(runes[:50])
	}
	if len([]rune(title)) < len([]rune(content)) {
		title = strings.TrimSpace(title) + "..."
	}
	return title
}
