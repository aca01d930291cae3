package generation

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const submitQuestionTool = "submit_question"

// OpenAICompleter talks to an OpenAI-compatible chat completion endpoint and
// forces the reply through the submit_question tool.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter builds a completer; an empty baseURL uses the OpenAI API.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAICompleter) Name() string { return "openai" }

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert quiz question generator. Submit exactly one question with the submit_question tool.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        submitQuestionTool,
					Description: "Submit one generated quiz question",
					Parameters:  questionSchema,
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: submitQuestionTool},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	message := resp.Choices[0].Message
	if len(message.ToolCalls) == 0 {
		return "", errors.New("no tool calls in response")
	}
	call := message.ToolCalls[0]
	if call.Function.Name != submitQuestionTool {
		return "", fmt.Errorf("unexpected tool call: %s", call.Function.Name)
	}
	return call.Function.Arguments, nil
}

var questionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"type": map[string]interface{}{
			"type": "string",
			"enum": []string{"multipleChoice", "shortAnswer", "matching", "puzzle"},
		},
		"question": map[string]interface{}{
			"type":        "string",
			"description": "The question text",
		},
		"options": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"correctAnswer": map[string]interface{}{
			"type":        "integer",
			"description": "0-based index of the correct option",
		},
		"answers": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"pairs": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"term":       map[string]interface{}{"type": "string"},
					"definition": map[string]interface{}{"type": "string"},
				},
				"required": []string{"term", "definition"},
			},
		},
		"steps": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt": map[string]interface{}{"type": "string"},
					"answer": map[string]interface{}{"type": "string"},
					"hint":   map[string]interface{}{"type": "string"},
				},
				"required": []string{"prompt", "answer"},
			},
		},
		"explanation": map[string]interface{}{
			"type": "string",
		},
	},
	"required": []string{"type", "question"},
}
