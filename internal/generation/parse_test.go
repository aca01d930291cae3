package generation

import (
	"errors"
	"strings"
	"testing"

	"studyquiz/internal/domain"
)

func TestParseQuestionExtractsEmbeddedJSON(t *testing.T) {
	reply := "Here you go:\n```json\n" +
		`{"type":"multipleChoice","question":"Largest planet?","options":["Mars","Jupiter"],"correctAnswer":1,"explanation":"Jupiter is largest"}` +
		"\n```"
	q, err := ParseQuestion(reply, domain.TypeMultipleChoice)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Prompt != "Largest planet?" || q.CorrectAnswer != 1 || len(q.Options) != 2 {
		t.Fatalf("unexpected question %+v", q)
	}
}

func TestParseQuestionIsStrict(t *testing.T) {
	cases := map[string]string{
		"no json":      "I cannot help with that",
		"broken json":  `{"type": "multipleChoice", "question": }`,
		"missing type": `{"question":"2+2?","options":["4"],"correctAnswer":0}`,
		"wrong type":   `{"type":"shortAnswer","question":"2+2?","answers":["4"]}`,
		"unknown type": `{"type":"essay","question":"Discuss"}`,
		"out of range": `{"type":"multipleChoice","question":"2+2?","options":["4"],"correctAnswer":3}`,
	}
	for name, reply := range cases {
		if _, err := ParseQuestion(reply, domain.TypeMultipleChoice); !errors.Is(err, domain.ErrGenerationFailed) {
			t.Fatalf("%s: expected generation failure, got %v", name, err)
		}
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := DeriveTitle("   "); got != "Study Quiz" {
		t.Fatalf("expected fallback title, got %q", got)
	}
	if got := DeriveTitle("Photosynthesis basics\nPlants convert light."); got != "Photosynthesis basics..." {
		t.Fatalf("unexpected title %q", got)
	}
	if got := DeriveTitle("The French Revolution"); got != "The French Revolution" {
		t.Fatalf("expected whole line kept, got %q", got)
	}
	long := strings.Repeat("a", 80)
	if got := DeriveTitle(long); got != strings.Repeat("a", 50)+"..." {
		t.Fatalf("expected truncated title, got %q", got)
	}
	if got := DeriveTitle("Cells\nThe nucleus holds DNA."); !strings.HasPrefix(got, "Cells\nThe nucleus") {
		t.Fatalf("expected short first line to fall back to the content, got %q", got)
	}
}

func TestBuildPromptTruncatesMaterial(t *testing.T) {
	content := strings.Repeat("x", MaxMaterialChars+100)
	prompt := BuildPrompt(content, domain.DifficultyHard, domain.TypePuzzle, 2, 5)
	if strings.Contains(prompt, strings.Repeat("x", MaxMaterialChars+1)) {
		t.Fatalf("expected material truncated")
	}
	if !strings.Contains(prompt, "question 3 of 5") || !strings.Contains(prompt, `"puzzle"`) {
		t.Fatalf("prompt missing position or type: %s", prompt)
	}
	if !strings.Contains(prompt, "critical thinking") {
		t.Fatalf("prompt missing difficulty description")
	}
}
