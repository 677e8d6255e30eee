package agent

import "fmt"

// PlanningSchemaError means the planner returned output that does not fit the
// plan schema. It is fatal to the planning cycle and never retried.
type PlanningSchemaError struct {
	Detail string
	Err    error
}

func (e *PlanningSchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planner returned malformed plan: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("planner returned malformed plan: %s", e.Detail)
}

func (e *PlanningSchemaError) Unwrap() error { return e.Err }

// PlanningProviderError is a transient failure of the reasoning provider
// during planning (timeout, rate limit, transport). Subject to bounded retry.
type PlanningProviderError struct {
	Err error
}

func (e *PlanningProviderError) Error() string {
	return fmt.Sprintf("planning provider failed: %v", e.Err)
}

func (e *PlanningProviderError) Unwrap() error { return e.Err }

// EvaluationProviderError is a transient evaluator failure. The orchestrator
// treats it fail-open: the current answer is accepted rather than blocking.
type EvaluationProviderError struct {
	Err error
}

func (e *EvaluationProviderError) Error() string {
	return fmt.Sprintf("evaluation provider failed: %v", e.Err)
}

func (e *EvaluationProviderError) Unwrap() error { return e.Err }

// UnknownToolError marks a step whose action has no registered tool. The step
// fails, but the run continues unless the step was critical.
type UnknownToolError struct {
	Action string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("no tool registered for action %q", e.Action)
}
