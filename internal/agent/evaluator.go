package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/webpilot/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

const maxReportedGaps = 5

// Evaluation is the evaluator's verdict on a finished execution pass.
type Evaluation struct {
	Completeness   float64  `json:"completeness"`
	Gaps           []string `json:"gaps,omitempty"`
	OptimizedQuery string   `json:"optimized_query,omitempty"`
}

// Evaluator scores whether the accumulated results satisfy the objective.
type Evaluator struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewEvaluator(model llms.Model, prompts *PromptManager, logger *observability.Logger) *Evaluator {
	return &Evaluator{Model: model, Prompts: prompts, Logger: logger}
}

func reportEvaluationTool() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "report_evaluation",
			Description: "Report how completely the objective was satisfied.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"completeness": map[string]any{
						"type":        "number",
						"description": "Score in [0,1]: how completely the objective was met",
					},
					"gaps": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Up to five concrete gaps between objective and result",
					},
					"optimized_query": map[string]any{
						"type":        "string",
						"description": "A better query for the next planning cycle, if one is needed",
					},
				},
				"required": []string{"completeness"},
			},
		},
	}
}

// Evaluate scores completeness of the candidate answer against the objective.
// Any provider problem comes back as *EvaluationProviderError; the caller is
// expected to treat that fail-open.
func (ev *Evaluator) Evaluate(ctx context.Context, runID, objective string, diary []string, candidate string) (*Evaluation, error) {
	userPrompt := fmt.Sprintf("## Objective\n%s\n\n## Execution diary\n%s\n\n## Candidate answer\n%s",
		objective, strings.Join(diary, "\n"), candidate)

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(ev.Prompts.EvaluatorPrompt())},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	resp, err := ev.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{reportEvaluationTool()}))
	if err != nil {
		return nil, &EvaluationProviderError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &EvaluationProviderError{Err: fmt.Errorf("provider returned no choices")}
	}

	for _, tc := range resp.Choices[0].ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "report_evaluation" {
			continue
		}
		var eval Evaluation
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &eval); err != nil {
			return nil, &EvaluationProviderError{Err: fmt.Errorf("unparsable report_evaluation arguments: %w", err)}
		}
		eval.Completeness = clamp01(eval.Completeness)
		if len(eval.Gaps) > maxReportedGaps {
			eval.Gaps = eval.Gaps[:maxReportedGaps]
		}
		ev.Logger.LogEvaluation(runID, eval.Completeness, eval.Gaps)
		return &eval, nil
	}

	return nil, &EvaluationProviderError{Err: fmt.Errorf("provider did not call report_evaluation")}
}
