package agent

import (
	"fmt"

	"github.com/google/uuid"
)

// StepStatus tracks a step through execution. It is the only field of a
// validated plan that ever changes, and only the executor changes it.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step is one browser action within a Plan.
type Step struct {
	Index              int        `json:"index"`
	Action             string     `json:"action"`
	Target             string     `json:"target"`
	Reasoning          string     `json:"reasoning,omitempty"`
	ExpectedOutcome    string     `json:"expected_outcome,omitempty"`
	ValidationCriteria string     `json:"validation_criteria,omitempty"`
	Status             StepStatus `json:"status"`
}

// Plan is a validated, ordered sequence of intended browser actions for one
// planning cycle. Everything except step statuses is immutable once Validate
// has accepted it.
type Plan struct {
	ID              string  `json:"id"`
	Objective       string  `json:"objective"`
	Steps           []Step  `json:"steps"`
	EstimatedSteps  int     `json:"estimated_steps"`
	ComplexityScore float64 `json:"complexity_score"`
	Confidence      float64 `json:"confidence"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Validate checks structural well-formedness and normalizes the scalar
// fields. Step indices must be exactly 1..len(steps); confidence and
// complexity are clamped to [0,1] rather than rejected; estimatedSteps is
// raised to at least the real step count.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Index != i+1 {
			return fmt.Errorf("step %d has index %d, want %d", i, s.Index, i+1)
		}
		if s.Action == "" {
			return fmt.Errorf("step %d has no action", s.Index)
		}
		if s.Status == "" {
			s.Status = StepPending
		}
	}

	p.Confidence = clamp01(p.Confidence)
	p.ComplexityScore = clamp01(p.ComplexityScore)
	if p.EstimatedSteps < len(p.Steps) {
		p.EstimatedSteps = len(p.Steps)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// DirectAnswerPlan is the degenerate single-step plan used when the planner
// is unavailable and the policy allows answering without browsing.
func DirectAnswerPlan(objective string) *Plan {
	return &Plan{
		ID:        uuid.NewString(),
		Objective: objective,
		Steps: []Step{{
			Index:  1,
			Action: "answer",
			Target: objective,
			Status: StepPending,
		}},
		EstimatedSteps:  1,
		ComplexityScore: 0,
		Confidence:      0.1,
	}
}
