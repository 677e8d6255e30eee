package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/webpilot/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// Diagnosis is the structured post-mortem of a failed run.
type Diagnosis struct {
	Recap       string `json:"recap"`
	Blame       string `json:"blame"`
	Improvement string `json:"improvement"`
}

// Analyzer produces a failure diagnosis. It never fails: when the diagnostic
// provider is unavailable it falls back to a deterministic summary.
type Analyzer struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewAnalyzer(model llms.Model, prompts *PromptManager, logger *observability.Logger) *Analyzer {
	return &Analyzer{Model: model, Prompts: prompts, Logger: logger}
}

func reportDiagnosisTool() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "report_diagnosis",
			Description: "Report the post-mortem of the failed run.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"recap":       map[string]any{"type": "string"},
					"blame":       map[string]any{"type": "string"},
					"improvement": map[string]any{"type": "string"},
				},
				"required": []string{"recap", "blame", "improvement"},
			},
		},
	}
}

// AnalyzeFailure diagnoses why a run failed. The returned Diagnosis is always
// fully populated; provider failures are absorbed locally.
func (a *Analyzer) AnalyzeFailure(ctx context.Context, runID string, diary []string, query, finalAnswer, evaluatorFeedback string) Diagnosis {
	diag, err := a.analyze(ctx, diary, query, finalAnswer, evaluatorFeedback)
	if err != nil {
		diag = fallbackDiagnosis(len(diary), evaluatorFeedback)
	}
	a.Logger.LogDiagnosis(runID, diag)
	return diag
}

func (a *Analyzer) analyze(ctx context.Context, diary []string, query, finalAnswer, evaluatorFeedback string) (Diagnosis, error) {
	if a.Model == nil {
		return Diagnosis{}, fmt.Errorf("no diagnostic provider configured")
	}

	userPrompt := fmt.Sprintf("## Original task\n%s\n\n## Execution diary\n%s\n\n## Final answer\n%s",
		query, strings.Join(diary, "\n"), finalAnswer)
	if evaluatorFeedback != "" {
		userPrompt += "\n\n## Evaluator feedback\n" + evaluatorFeedback
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(a.Prompts.DiagnosisPrompt())},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	resp, err := a.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{reportDiagnosisTool()}))
	if err != nil {
		return Diagnosis{}, err
	}
	if len(resp.Choices) == 0 {
		return Diagnosis{}, fmt.Errorf("provider returned no choices")
	}

	for _, tc := range resp.Choices[0].ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "report_diagnosis" {
			continue
		}
		var diag Diagnosis
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &diag); err != nil {
			return Diagnosis{}, err
		}
		if diag.Recap == "" || diag.Blame == "" || diag.Improvement == "" {
			return Diagnosis{}, fmt.Errorf("diagnosis response incomplete")
		}
		return diag, nil
	}

	return Diagnosis{}, fmt.Errorf("provider did not call report_diagnosis")
}

// fallbackDiagnosis is the deterministic report used when the provider is
// unavailable. It must never be empty.
func fallbackDiagnosis(diaryEntries int, evaluatorFeedback string) Diagnosis {
	recap := fmt.Sprintf("The run recorded %d diary entries before failing.", diaryEntries)
	if evaluatorFeedback != "" {
		recap += " Evaluator feedback: " + evaluatorFeedback
	} else {
		recap += " No evaluator feedback was available."
	}
	return Diagnosis{
		Recap:       recap,
		Blame:       "Unable to analyze the failure: the diagnostic provider was unavailable.",
		Improvement: "Retry the task; if it keeps failing, simplify the objective or check tool and provider connectivity.",
	}
}
