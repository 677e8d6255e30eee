package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/webpilot/internal/events"
	"github.com/rahul/webpilot/internal/governance"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/tools"
)

// ExecutedStep is the final outcome of one plan step. Retried attempts
// collapse into a single record; only the last outcome is kept.
type ExecutedStep struct {
	Step     Step          `json:"step"`
	Success  bool          `json:"success"`
	URL      string        `json:"url,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Output   string        `json:"output,omitempty"`
}

// ExecutionResult is everything the executor hands back to the orchestrator.
type ExecutionResult struct {
	Steps           []ExecutedStep
	Diary           []string
	CriticalFailure bool
	CriticalReason  string
	// FailureSignatures counts identical action/target/error failures so the
	// evaluator and analyzer can spot the agent looping on the same mistake.
	FailureSignatures map[string]int
	FinalAnswer       string
}

// Executor walks a validated plan strictly sequentially, invoking tools
// through the registry and reporting progress on the event broker.
type Executor struct {
	Registry    *tools.Registry
	Broker      *events.Broker
	Policy      governance.PolicyEngine
	Logger      *observability.Logger
	StepTimeout time.Duration
	// StepRetries is how many extra attempts a failing step gets with the
	// same target before it is marked failed.
	StepRetries int
	// CriticalActions marks actions whose failure on the first step makes
	// the rest of the plan pointless.
	CriticalActions map[string]bool
	// OnStep, when set, observes every step status change.
	OnStep func(step Step, status StepStatus)
}

func (e *Executor) critical(step Step) bool {
	return step.Index == 1 && e.CriticalActions[step.Action]
}

func (e *Executor) notify(step Step, status StepStatus) {
	if e.OnStep != nil {
		e.OnStep(step, status)
	}
}

func truncateTarget(target string) string {
	if len(target) > 120 {
		return target[:120] + "..."
	}
	return target
}

// Execute runs the plan. It returns a non-nil result even on error; the only
// error it returns is the context's, when the run deadline fires or the run
// is cancelled mid-plan.
func (e *Executor) Execute(ctx context.Context, runID string, plan *Plan) (*ExecutionResult, error) {
	result := &ExecutionResult{
		FailureSignatures: make(map[string]int),
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]

		if err := ctx.Err(); err != nil {
			e.skipRemaining(plan, i, result, "run deadline reached")
			return result, err
		}

		step.Status = StepRunning
		e.notify(*step, StepRunning)
		e.Logger.LogStep(runID, step.Index, step.Action, string(StepRunning))

		record := e.executeStep(ctx, runID, step)

		if record.Success {
			step.Status = StepSucceeded
			if step.Action == "answer" {
				result.FinalAnswer = record.Output
			}
		} else {
			step.Status = StepFailed
			sig := fmt.Sprintf("%s|%s|%s", step.Action, step.Target, record.Error)
			result.FailureSignatures[sig]++
		}
		// The record carries the step's terminal status, not the transient
		// running status it had while the tool was in flight.
		record.Step.Status = step.Status
		result.Steps = append(result.Steps, record)

		e.notify(*step, step.Status)
		e.Logger.LogStep(runID, step.Index, step.Action, string(step.Status))

		result.Diary = append(result.Diary, narrate(step.Index, step.Action, step.Target, record))

		if err := ctx.Err(); err != nil {
			e.skipRemaining(plan, i+1, result, "run deadline reached")
			return result, err
		}

		if !record.Success && e.critical(*step) {
			result.CriticalFailure = true
			result.CriticalReason = fmt.Sprintf("critical step %d (%s) failed: %s", step.Index, step.Action, record.Error)
			e.skipRemaining(plan, i+1, result, result.CriticalReason)
			return result, nil
		}
	}

	return result, nil
}

func (e *Executor) skipRemaining(plan *Plan, from int, result *ExecutionResult, reason string) {
	for i := from; i < len(plan.Steps); i++ {
		if plan.Steps[i].Status == StepPending {
			plan.Steps[i].Status = StepSkipped
			e.notify(plan.Steps[i], StepSkipped)
		}
	}
	if from < len(plan.Steps) {
		result.Diary = append(result.Diary,
			fmt.Sprintf("Steps %d-%d skipped: %s", plan.Steps[from].Index, len(plan.Steps), reason))
	}
}

// executeStep runs one step with the retry policy. Every attempt gets a fresh
// toolCallId so the broker's per-call phase ordering invariant holds.
func (e *Executor) executeStep(ctx context.Context, runID string, step *Step) ExecutedStep {
	record := ExecutedStep{Step: *step}
	start := time.Now()
	defer func() {
		record.Duration = time.Since(start)
	}()

	// Governance check happens before any tool is touched. A denied step is
	// a failed step, never a crashed run.
	if e.Policy != nil {
		res, err := e.Policy.Evaluate(ctx, governance.Request{Action: step.Action, Target: step.Target})
		if err == nil && res.Effect == governance.EffectDeny {
			e.Logger.LogPolicyCheck(runID, step.Action, step.Target, string(res.Effect), res.Reason)
			record.Error = res.Reason
			return record
		}
	}

	tool := e.Registry.Get(step.Action)
	if tool == nil {
		record.Error = (&UnknownToolError{Action: step.Action}).Error()
		return record
	}

	input := tools.EncodeInput(step.Target)

	for attempt := 1; attempt <= e.StepRetries+1; attempt++ {
		record.Attempts = attempt
		callID := uuid.NewString()

		e.Broker.Publish(events.ToolExecutionEvent{
			ToolCallID: callID,
			ToolName:   step.Action,
			Phase:      events.PhaseStarting,
		})
		e.Logger.LogToolCall(runID, callID, step.Action, input)

		// The executing phase marks the point of no return: everything after
		// this event is the blocking call itself.
		e.Broker.Publish(events.ToolExecutionEvent{
			ToolCallID: callID,
			ToolName:   step.Action,
			Phase:      events.PhaseExecuting,
		})

		stepCtx := ctx
		var cancel context.CancelFunc
		if e.StepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, e.StepTimeout)
		}
		output, err := tool.Execute(stepCtx, input)
		if cancel != nil {
			cancel()
		}

		e.Logger.LogToolResult(runID, callID, step.Action, output, err)

		if err == nil {
			e.Broker.Publish(events.ToolExecutionEvent{
				ToolCallID: callID,
				ToolName:   step.Action,
				Phase:      events.PhaseCompleted,
			})
			record.Success = true
			record.Output = output
			record.Error = ""
			if step.Action == "navigate" {
				record.URL = output
			}
			return record
		}

		e.Broker.Publish(events.ToolExecutionEvent{
			ToolCallID: callID,
			ToolName:   step.Action,
			Phase:      events.PhaseError,
			Error:      err.Error(),
		})
		record.Error = err.Error()

		// The run deadline or a cancellation ends retrying immediately.
		if ctx.Err() != nil {
			return record
		}
	}

	return record
}

func narrate(index int, action, target string, record ExecutedStep) string {
	status := "succeeded"
	if !record.Success {
		status = "failed"
	}
	entry := fmt.Sprintf("Step %d: %s %q -> %s (%dms)", index, action, truncateTarget(target), status, record.Duration.Milliseconds())
	if record.Error != "" {
		entry += fmt.Sprintf(" [%s]", record.Error)
	}
	return entry
}
