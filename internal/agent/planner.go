package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// Planner asks the reasoning provider for a structured plan via the
// propose_plan function call and validates the result.
type Planner struct {
	Model    llms.Model
	Prompts  *PromptManager
	Registry *tools.Registry
	Logger   *observability.Logger
}

func NewPlanner(model llms.Model, registry *tools.Registry, prompts *PromptManager, logger *observability.Logger) *Planner {
	return &Planner{
		Model:    model,
		Prompts:  prompts,
		Registry: registry,
		Logger:   logger,
	}
}

// planPayload mirrors the propose_plan arguments.
type planPayload struct {
	Steps           []Step  `json:"steps"`
	EstimatedSteps  int     `json:"estimated_steps"`
	ComplexityScore float64 `json:"complexity_score"`
	Confidence      float64 `json:"confidence"`
}

func (p *Planner) actionNames() []string {
	var names []string
	for _, t := range p.Registry.List() {
		names = append(names, t.Name())
	}
	return names
}

func (p *Planner) proposePlanTool() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "propose_plan",
			Description: "Submit a structured plan of browser actions for the task.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"steps": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"index": map[string]any{
									"type":        "integer",
									"description": "1-based position in execution order",
								},
								"action": map[string]any{
									"type": "string",
									"enum": p.actionNames(),
								},
								"target": map[string]any{
									"type":        "string",
									"description": "Action-specific target: URL, CSS selector, or text",
								},
								"reasoning":           map[string]any{"type": "string"},
								"expected_outcome":    map[string]any{"type": "string"},
								"validation_criteria": map[string]any{"type": "string"},
							},
							"required": []string{"index", "action", "target"},
						},
					},
					"estimated_steps":  map[string]any{"type": "integer"},
					"complexity_score": map[string]any{"type": "number"},
					"confidence":       map[string]any{"type": "number"},
				},
				"required": []string{"steps", "estimated_steps", "complexity_score", "confidence"},
			},
		},
	}
}

// Plan transforms a query plus accumulated diary context into a validated
// Plan. Transport failures come back as *PlanningProviderError; structurally
// bad planner output comes back as *PlanningSchemaError.
func (p *Planner) Plan(ctx context.Context, runID, query string, diary []string) (*Plan, error) {
	var toolDescriptions []string
	for _, t := range p.Registry.List() {
		toolDescriptions = append(toolDescriptions, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
	}
	systemPrompt := fmt.Sprintf("%s\n\n## Available Actions:\n%s",
		p.Prompts.PlannerPrompt(), strings.Join(toolDescriptions, "\n"))

	userPrompt := query
	if len(diary) > 0 {
		userPrompt = fmt.Sprintf("%s\n\n## Progress so far:\n%s", query, strings.Join(diary, "\n"))
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{p.proposePlanTool()}))
	if err != nil {
		return nil, &PlanningProviderError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &PlanningProviderError{Err: fmt.Errorf("provider returned no choices")}
	}

	choice := resp.Choices[0]
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "propose_plan" {
			continue
		}

		var payload planPayload
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &payload); err != nil {
			return nil, &PlanningSchemaError{Detail: "propose_plan arguments are not valid JSON", Err: err}
		}

		plan := &Plan{
			Objective:       query,
			Steps:           payload.Steps,
			EstimatedSteps:  payload.EstimatedSteps,
			ComplexityScore: payload.ComplexityScore,
			Confidence:      payload.Confidence,
		}
		for i := range plan.Steps {
			plan.Steps[i].Status = StepPending
		}
		if err := plan.Validate(); err != nil {
			return nil, &PlanningSchemaError{Detail: err.Error()}
		}

		p.Logger.LogPlan(runID, plan)
		return plan, nil
	}

	// The model answered in prose instead of calling propose_plan: the
	// structured contract was violated, which is a schema failure.
	return nil, &PlanningSchemaError{Detail: "provider did not call propose_plan"}
}
