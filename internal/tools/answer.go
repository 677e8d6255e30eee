package tools

import (
	"context"
	"fmt"
)

// AnswerTool is the terminal action of a plan: it carries the agent's answer
// text instead of touching the browser.
type AnswerTool struct{}

func NewAnswerTool() *AnswerTool { return &AnswerTool{} }

func (t *AnswerTool) Name() string { return "answer" }

func (t *AnswerTool) Description() string {
	return "Provide the final answer to the user. Target is the answer text itself."
}

func (t *AnswerTool) Parameters() map[string]any {
	return targetParam("The complete answer to return to the user")
}

func (t *AnswerTool) Execute(ctx context.Context, input string) (string, error) {
	in, err := DecodeInput(input)
	if err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.Target == "" {
		return "", fmt.Errorf("answer requires the answer text as target")
	}
	return in.Target, nil
}
