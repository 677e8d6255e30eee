package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/webpilot/internal/events"
	"github.com/rahul/webpilot/internal/governance"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// Phase is the orchestrator's position in the run state machine.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseExecuting   Phase = "executing"
	PhaseEvaluating  Phase = "evaluating"
	PhaseReplanning  Phase = "replanning"
	PhaseSummarizing Phase = "summarizing"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
)

// Policy collects every tunable the state machine depends on. The zero value
// is not useful; start from DefaultPolicy.
type Policy struct {
	RunTimeout            time.Duration
	StepTimeout           time.Duration
	PlanningRetries       int
	StepRetries           int
	MaxReplanCycles       int
	CompletenessThreshold float64
	CriticalActions       []string
	// TimeoutFailsRun decides whether the global run timeout yields a
	// degraded success (false) or a failed run (true).
	TimeoutFailsRun bool
	// FallbackDirectAnswer lets a run whose planning provider stays down
	// degrade to a single-step answer plan instead of failing outright.
	FallbackDirectAnswer bool
}

func DefaultPolicy() Policy {
	return Policy{
		RunTimeout:            5 * time.Minute,
		StepTimeout:           60 * time.Second,
		PlanningRetries:       2,
		StepRetries:           1,
		MaxReplanCycles:       2,
		CompletenessThreshold: 0.7,
		CriticalActions:       []string{"navigate"},
		TimeoutFailsRun:       false,
		FallbackDirectAnswer:  true,
	}
}

// WorkflowState is the run-scoped state owned exclusively by the
// orchestrator. Stages receive read-only views and return new data.
type WorkflowState struct {
	Phase         Phase
	CurrentPlan   *Plan
	Diary         []string
	ExecutedSteps []ExecutedStep
	Confidence    float64
	FinalAnswer   string
	Error         string
	ReplanCount   int
	// Transitions records every phase in order, for inspection and tests.
	Transitions []Phase
}

// RunResult is the contract returned to whoever started the run. Every run,
// including degraded and failed ones, yields a fully populated result.
type RunResult struct {
	RunID       string     `json:"run_id"`
	Success     bool       `json:"success"`
	Degraded    bool       `json:"degraded,omitempty"`
	Steps       int        `json:"steps"`
	FinalURL    string     `json:"final_url,omitempty"`
	FinalAnswer string     `json:"final_answer,omitempty"`
	Error       string     `json:"error,omitempty"`
	Diagnosis   *Diagnosis `json:"diagnosis,omitempty"`
}

// ProgressStatus matches what task-queue style UIs expect.
type ProgressStatus string

const (
	ProgressPending    ProgressStatus = "pending"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressError      ProgressStatus = "error"
)

// ProgressRecord is one logical task shown to the user, updated as the
// orchestrator's phase and step statuses change.
type ProgressRecord struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      ProgressStatus `json:"status"`
}

// ProgressFunc receives the full record list after every change.
type ProgressFunc func([]ProgressRecord)

// RunRecorder persists terminal run outcomes. Implemented by store.Journal.
type RunRecorder interface {
	RecordRun(sessionID, runID, objective string, result RunResult, steps []ExecutedStep) error
}

// Orchestrator drives exactly one run through the
// planning -> executing -> evaluating -> {replanning | summarizing | failed}
// state machine. Build one per run via Engine.
type Orchestrator struct {
	RunID     string
	SessionID string
	Planner   *Planner
	Executor  *Executor
	Evaluator *Evaluator
	Analyzer  *Analyzer
	Broker    *events.Broker
	Logger    *observability.Logger
	Recorder  RunRecorder
	Policy    Policy
	Progress  ProgressFunc

	state   WorkflowState
	records []ProgressRecord
}

// State returns a snapshot of the workflow state.
func (o *Orchestrator) State() WorkflowState {
	snap := o.state
	snap.Diary = append([]string(nil), o.state.Diary...)
	snap.ExecutedSteps = append([]ExecutedStep(nil), o.state.ExecutedSteps...)
	snap.Transitions = append([]Phase(nil), o.state.Transitions...)
	return snap
}

func (o *Orchestrator) setPhase(p Phase) {
	o.state.Phase = p
	o.state.Transitions = append(o.state.Transitions, p)
	observability.SetStatus(string(p), o.state.objective())
}

func (s *WorkflowState) objective() string {
	if s.CurrentPlan != nil {
		return s.CurrentPlan.Objective
	}
	return ""
}

// Run executes the state machine to a terminal phase. It never returns an
// error; failures are reported through the RunResult.
func (o *Orchestrator) Run(ctx context.Context, query string) RunResult {
	runCtx := ctx
	if o.Policy.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.Policy.RunTimeout)
		defer cancel()
	}

	o.setPhase(PhasePlanning)
	currentQuery := query
	var lastEval *Evaluation

	for cycle := 0; ; cycle++ {
		plan, err := o.planWithRetry(runCtx, currentQuery)
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(query)
			}
			if runCtx.Err() != nil {
				return o.timedOut(query)
			}
			return o.fail(ctx, query, err.Error(), lastEval)
		}

		o.state.CurrentPlan = plan
		o.initProgress(plan)

		o.setPhase(PhaseExecuting)
		execRes, execErr := o.Executor.Execute(runCtx, o.RunID, plan)
		o.absorb(execRes)
		if execErr != nil {
			if ctx.Err() != nil {
				return o.cancelled(query)
			}
			// Only the run deadline interrupts execution mid-plan.
			return o.timedOut(query)
		}
		if execRes.CriticalFailure {
			return o.fail(ctx, query, execRes.CriticalReason, lastEval)
		}

		o.setPhase(PhaseEvaluating)
		candidate := o.state.FinalAnswer
		if candidate == "" {
			candidate = FallbackSummary(o.state.ExecutedSteps)
		}
		eval, err := o.Evaluator.Evaluate(runCtx, o.RunID, query, o.state.Diary, candidate)
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(query)
			}
			// Evaluation is fail-open: an unavailable evaluator must not
			// block completion, so the current answer is accepted as-is.
			eval = &Evaluation{Completeness: o.Policy.CompletenessThreshold}
		}
		lastEval = eval
		o.state.Confidence = eval.Completeness

		if eval.Completeness >= o.Policy.CompletenessThreshold {
			return o.complete(query, candidate, false)
		}
		if cycle < o.Policy.MaxReplanCycles {
			o.setPhase(PhaseReplanning)
			o.state.ReplanCount++
			if eval.OptimizedQuery != "" {
				currentQuery = eval.OptimizedQuery
			}
			o.setPhase(PhasePlanning)
			continue
		}
		// Replanning budget exhausted: degraded completion, not failure.
		return o.complete(query, candidate, true)
	}
}

func (o *Orchestrator) planWithRetry(ctx context.Context, query string) (*Plan, error) {
	var lastErr error
	for attempt := 0; attempt <= o.Policy.PlanningRetries; attempt++ {
		plan, err := o.Planner.Plan(ctx, o.RunID, query, o.state.Diary)
		if err == nil {
			return plan, nil
		}
		lastErr = err

		var schemaErr *PlanningSchemaError
		if errors.As(err, &schemaErr) {
			// Malformed structured output is fatal, never retried.
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}

	// The provider stayed down through every retry. When allowed, degrade to
	// the single-step answer plan rather than failing the whole run.
	var provErr *PlanningProviderError
	if o.Policy.FallbackDirectAnswer && errors.As(lastErr, &provErr) {
		plan := DirectAnswerPlan(query)
		o.Logger.LogPlan(o.RunID, plan)
		return plan, nil
	}
	return nil, lastErr
}

func (o *Orchestrator) absorb(res *ExecutionResult) {
	if res == nil {
		return
	}
	o.state.Diary = append(o.state.Diary, res.Diary...)
	o.state.ExecutedSteps = append(o.state.ExecutedSteps, res.Steps...)
	if res.FinalAnswer != "" {
		o.state.FinalAnswer = res.FinalAnswer
	}
	for sig, n := range res.FailureSignatures {
		if n > 1 {
			o.state.Diary = append(o.state.Diary,
				fmt.Sprintf("Repeated failure (%dx): %s", n, sig))
		}
	}
}

func (o *Orchestrator) finalURL() string {
	for i := len(o.state.ExecutedSteps) - 1; i >= 0; i-- {
		if s := o.state.ExecutedSteps[i]; s.Success && s.URL != "" {
			return s.URL
		}
	}
	return ""
}

func (o *Orchestrator) complete(query, answer string, degraded bool) RunResult {
	o.setPhase(PhaseSummarizing)
	if o.state.FinalAnswer == "" {
		o.state.FinalAnswer = answer
	}
	o.setPhase(PhaseCompleted)
	o.finishProgress(ProgressCompleted)

	return o.finish(query, RunResult{
		Success:     true,
		Degraded:    degraded,
		FinalAnswer: o.state.FinalAnswer,
	})
}

// timedOut handles the global wall-clock timeout: a deterministic summary
// built from executed steps, with no further network calls.
func (o *Orchestrator) timedOut(query string) RunResult {
	o.setPhase(PhaseSummarizing)
	summary := FallbackSummary(o.state.ExecutedSteps)
	if o.state.FinalAnswer == "" {
		o.state.FinalAnswer = summary
	}

	if o.Policy.TimeoutFailsRun {
		o.setPhase(PhaseFailed)
		o.state.Error = "run timed out"
		o.finishProgress(ProgressError)
		return o.finish(query, RunResult{
			Success:     false,
			FinalAnswer: o.state.FinalAnswer,
			Error:       o.state.Error,
		})
	}

	o.setPhase(PhaseCompleted)
	o.finishProgress(ProgressCompleted)
	return o.finish(query, RunResult{
		Success:     true,
		Degraded:    true,
		FinalAnswer: o.state.FinalAnswer,
	})
}

// cancelled is terminal failure without diagnostics: an external cancellation
// is not a diagnosable fault.
func (o *Orchestrator) cancelled(query string) RunResult {
	o.setPhase(PhaseFailed)
	o.state.Error = "cancelled"
	o.finishProgress(ProgressError)
	return o.finish(query, RunResult{
		Success: false,
		Error:   o.state.Error,
	})
}

func (o *Orchestrator) fail(ctx context.Context, query, reason string, lastEval *Evaluation) RunResult {
	o.setPhase(PhaseFailed)
	o.state.Error = reason
	o.finishProgress(ProgressError)

	feedback := ""
	if lastEval != nil && len(lastEval.Gaps) > 0 {
		feedback = fmt.Sprintf("completeness %.2f, gaps: %v", lastEval.Completeness, lastEval.Gaps)
	}
	diag := o.Analyzer.AnalyzeFailure(ctx, o.RunID, o.state.Diary, query, o.state.FinalAnswer, feedback)

	return o.finish(query, RunResult{
		Success:     false,
		FinalAnswer: o.state.FinalAnswer,
		Error:       reason,
		Diagnosis:   &diag,
	})
}

// finish fills the shared result fields, persists the run, and logs it.
func (o *Orchestrator) finish(query string, result RunResult) RunResult {
	result.RunID = o.RunID
	result.Steps = len(o.state.ExecutedSteps)
	result.FinalURL = o.finalURL()
	observability.SetStatus("idle", "")

	if o.Recorder != nil {
		if err := o.Recorder.RecordRun(o.SessionID, o.RunID, query, result, o.state.ExecutedSteps); err != nil {
			o.Logger.Log(observability.Event{
				Type:  observability.EventTypeRunResult,
				RunID: o.RunID,
				Data:  map[string]string{"journal_error": err.Error()},
			})
		}
	}
	o.Logger.LogRunResult(o.SessionID, o.RunID, result)
	if o.Broker != nil {
		o.Logger.Log(observability.Event{
			Type:  observability.EventTypeRunResult,
			RunID: o.RunID,
			Data:  map[string]any{"tool_usage": o.Broker.ToolUsage()},
		})
	}
	return result
}

// --- progress records -------------------------------------------------------

func (o *Orchestrator) initProgress(plan *Plan) {
	o.records = o.records[:0]
	for _, s := range plan.Steps {
		o.records = append(o.records, ProgressRecord{
			ID:          fmt.Sprintf("%s-step-%d", plan.ID, s.Index),
			Title:       s.Action,
			Description: s.Target,
			Status:      ProgressPending,
		})
	}
	o.pushProgress()
}

func (o *Orchestrator) onStep(step Step, status StepStatus) {
	if step.Index < 1 || step.Index > len(o.records) {
		return
	}
	rec := &o.records[step.Index-1]
	switch status {
	case StepRunning:
		rec.Status = ProgressInProgress
	case StepSucceeded:
		rec.Status = ProgressCompleted
	case StepFailed, StepSkipped:
		rec.Status = ProgressError
	default:
		rec.Status = ProgressPending
	}
	o.pushProgress()
}

func (o *Orchestrator) finishProgress(status ProgressStatus) {
	for i := range o.records {
		if o.records[i].Status == ProgressPending || o.records[i].Status == ProgressInProgress {
			o.records[i].Status = status
		}
	}
	o.pushProgress()
}

func (o *Orchestrator) pushProgress() {
	if o.Progress == nil {
		return
	}
	out := make([]ProgressRecord, len(o.records))
	copy(out, o.records)
	o.Progress(out)
}

// --- engine ------------------------------------------------------------------

// Engine builds one Orchestrator per run. Runs share the read-only registry,
// prompts, policy engine, and journal, but each gets its own Broker so
// concurrent sessions never observe each other's events.
type Engine struct {
	Model        llms.Model
	Registry     *tools.Registry
	PolicyEngine governance.PolicyEngine
	Prompts      *PromptManager
	Logger       *observability.Logger
	Recorder     RunRecorder
	Policy       Policy
}

func NewEngine(model llms.Model, registry *tools.Registry, policyEngine governance.PolicyEngine, prompts *PromptManager, logger *observability.Logger, recorder RunRecorder, policy Policy) *Engine {
	return &Engine{
		Model:        model,
		Registry:     registry,
		PolicyEngine: policyEngine,
		Prompts:      prompts,
		Logger:       logger,
		Recorder:     recorder,
		Policy:       policy,
	}
}

// NewRun assembles a fresh orchestrator with its own event broker.
func (e *Engine) NewRun(sessionID string, progress ProgressFunc) *Orchestrator {
	runID := uuid.NewString()
	broker := events.NewBroker()
	broker.Subscribe(func(evt events.ToolExecutionEvent) {
		e.Logger.Log(observability.Event{
			Type:  observability.EventTypeToolEvent,
			RunID: runID,
			Data:  evt,
		})
	})

	critical := make(map[string]bool, len(e.Policy.CriticalActions))
	for _, a := range e.Policy.CriticalActions {
		critical[a] = true
	}

	o := &Orchestrator{
		RunID:     runID,
		SessionID: sessionID,
		Planner:   NewPlanner(e.Model, e.Registry, e.Prompts, e.Logger),
		Evaluator: NewEvaluator(e.Model, e.Prompts, e.Logger),
		Analyzer:  NewAnalyzer(e.Model, e.Prompts, e.Logger),
		Broker:    broker,
		Logger:    e.Logger,
		Recorder:  e.Recorder,
		Policy:    e.Policy,
		Progress:  progress,
	}
	o.Executor = &Executor{
		Registry:        e.Registry,
		Broker:          broker,
		Policy:          e.PolicyEngine,
		Logger:          e.Logger,
		StepTimeout:     e.Policy.StepTimeout,
		StepRetries:     e.Policy.StepRetries,
		CriticalActions: critical,
		OnStep:          o.onStep,
	}
	return o
}

// Execute runs one task to completion. It satisfies the gateway Runner
// contract: the result is always populated, never an error.
func (e *Engine) Execute(ctx context.Context, sessionID, query string) RunResult {
	return e.ExecuteWithProgress(ctx, sessionID, query, nil)
}

func (e *Engine) ExecuteWithProgress(ctx context.Context, sessionID, query string, progress ProgressFunc) RunResult {
	return e.NewRun(sessionID, progress).Run(ctx, query)
}
