package domain

import (
	"maps"
	"slices"
	"time"
)

// QuestionType is the tag of the question union as stored in quiz documents.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multipleChoice"
	TypeShortAnswer    QuestionType = "shortAnswer"
	TypeMatching       QuestionType = "matching"
	TypePuzzle         QuestionType = "puzzle"
)

// Difficulty levels accepted by question sources.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// MatchPair is one term/definition pair of a matching question.
type MatchPair struct {
	Term       string `json:"term" validate:"required"`
	Definition string `json:"definition" validate:"required"`
}

// PuzzleStep is one ordered step of a puzzle question.
type PuzzleStep struct {
	Prompt string `json:"prompt" validate:"required"`
	Answer string `json:"answer" validate:"required"`
	Hint   string `json:"hint,omitempty"`
}

// Question is a tagged union; only the fields of its Type are meaningful.
type Question struct {
	Type        QuestionType `json:"type" validate:"required,oneof=multipleChoice shortAnswer matching puzzle"`
	Prompt      string       `json:"question" validate:"required"`
	Explanation string       `json:"explanation,omitempty"`

	Options       []string `json:"options,omitempty" validate:"dive,required"`
	CorrectAnswer int      `json:"correctAnswer"`

	Answers []string `json:"answers,omitempty"`

	Pairs []MatchPair `json:"pairs,omitempty" validate:"dive"`

	Steps []PuzzleStep `json:"steps,omitempty" validate:"dive"`
}

// Quiz is the quiz document. ID is empty for ephemeral quizzes.
type Quiz struct {
	ID         string      `json:"id,omitempty"`
	UserID     string      `json:"userId,omitempty"`
	Title      string      `json:"title"`
	Questions  []Question  `json:"questions"`
	Difficulty string      `json:"difficulty,omitempty"`
	Completed  bool        `json:"completed"`
	Results    *QuizResult `json:"results,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Answer is a raw submitted value. Kind selects the populated field:
// Choice for multiple choice, Text for short answer, Slots/Matches for
// matching and Steps for puzzles. A nil Choice means no option was picked.
type Answer struct {
	Kind   QuestionType `json:"kind"`
	Choice *int         `json:"choice,omitempty"`
	Text   string       `json:"text,omitempty"`
	// Slots is the presented definition order: Slots[slot] is the original pair index.
	Slots []int `json:"slots,omitempty"`
	// Matches maps term index to the chosen definition slot.
	Matches map[int]int `json:"matches,omitempty"`
	Steps   []bool      `json:"steps,omitempty"`
}

func ChoiceAnswer(index int) Answer {
	return Answer{Kind: TypeMultipleChoice, Choice: &index}
}

func TextAnswer(text string) Answer {
	return Answer{Kind: TypeShortAnswer, Text: text}
}

func MatchingAnswer(slots []int, matches map[int]int) Answer {
	return Answer{Kind: TypeMatching, Slots: slots, Matches: matches}
}

func PuzzleAnswer(steps []bool) Answer {
	return Answer{Kind: TypePuzzle, Steps: steps}
}

// Equal reports whether two answers carry the same submitted value.
func (a Answer) Equal(b Answer) bool {
	return a.Kind == b.Kind &&
		equalChoice(a.Choice, b.Choice) &&
		a.Text == b.Text &&
		slices.Equal(a.Slots, b.Slots) &&
		maps.Equal(a.Matches, b.Matches) &&
		slices.Equal(a.Steps, b.Steps)
}

func equalChoice(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// AnswerRecord is the ledger entry for one question index.
type AnswerRecord struct {
	QuestionIndex int       `json:"questionIndex"`
	Answer        Answer    `json:"answer"`
	Correct       *bool     `json:"isCorrect,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ProgressSnapshot is the persisted resumable state of one attempt.
type ProgressSnapshot struct {
	QuizID               string         `json:"quizId"`
	Answers              []AnswerRecord `json:"answers"`
	LastUpdated          int64          `json:"lastUpdated"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
}

// ProgressKey is the document key of a user's progress on a quiz.
func ProgressKey(userID, quizID string) string {
	return userID + "_" + quizID
}

// QuestionOutcome is the evaluated correctness of one question.
type QuestionOutcome struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"isCorrect"`
}

// QuizResult is the terminal summary of a completed attempt.
type QuizResult struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId,omitempty"`
	QuizID         string            `json:"quizId,omitempty"`
	Title          string            `json:"title,omitempty"`
	Score          int               `json:"score"`
	TotalQuestions int               `json:"totalQuestions"`
	Answers        []QuestionOutcome `json:"answers"`
	TimeSpent      int64             `json:"timeSpent"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Percentage returns the score as a rounded percentage of the total.
func (r QuizResult) Percentage() int {
	if r.TotalQuestions == 0 {
		return 0
	}
	return (r.Score*100 + r.TotalQuestions/2) / r.TotalQuestions
}

// GenerationRequest asks a question source for a new quiz.
type GenerationRequest struct {
	Content       string         `json:"content" validate:"required"`
	Title         string         `json:"title,omitempty"`
	Difficulty    string         `json:"difficulty" validate:"oneof=easy medium hard"`
	QuestionCount int            `json:"questionCount" validate:"min=1,max=50"`
	Types         []QuestionType `json:"types,omitempty" validate:"dive,oneof=multipleChoice shortAnswer matching puzzle"`
}

// Stats summarizes a user's quizzes for the dashboard.
type Stats struct {
	TotalQuizzes     int   `json:"totalQuizzes"`
	CompletedQuizzes int   `json:"completedQuizzes"`
	CompletionRate   int   `json:"completionRate"`
	AverageScore     int   `json:"averageScore"`
	TotalTimeSpent   int64 `json:"totalTimeSpent"`
}
