package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rahul/webpilot/internal/events"
	"github.com/rahul/webpilot/internal/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executorFor(broker *events.Broker, ts ...*fakeTool) *Executor {
	registry := testRegistry()
	for _, t := range ts {
		registry.Register(t)
	}
	return &Executor{
		Registry:        registry,
		Broker:          broker,
		StepTimeout:     time.Second,
		StepRetries:     1,
		CriticalActions: map[string]bool{"navigate": true},
	}
}

func mustValidate(t *testing.T, p *Plan) *Plan {
	t.Helper()
	require.NoError(t, p.Validate())
	return p
}

func TestExecutorHappyPath(t *testing.T) {
	broker := events.NewBroker()
	exec := executorFor(broker,
		staticTool("navigate", "https://example.com/pricing"),
		staticTool("answer", "the basic plan costs $5"),
	)

	plan := mustValidate(t, &Plan{
		Objective: "find the price",
		Steps: []Step{
			{Index: 1, Action: "navigate", Target: "https://example.com"},
			{Index: 2, Action: "answer", Target: "the basic plan costs $5"},
		},
	})

	res, err := exec.Execute(context.Background(), "run-1", plan)
	require.NoError(t, err)

	require.Len(t, res.Steps, 2)
	assert.True(t, res.Steps[0].Success)
	assert.Equal(t, "https://example.com/pricing", res.Steps[0].URL)
	assert.Equal(t, "the basic plan costs $5", res.FinalAnswer)
	assert.False(t, res.CriticalFailure)
	assert.Len(t, res.Diary, 2)
	assert.Equal(t, StepSucceeded, plan.Steps[0].Status)
	assert.Equal(t, StepSucceeded, res.Steps[0].Step.Status,
		"recorded steps carry their terminal status, not the transient running status")
	assert.Equal(t, StepSucceeded, res.Steps[1].Step.Status)

	history := broker.History()
	require.Len(t, history, 6, "two steps, three phases each")
	wantPhases := []events.Phase{
		events.PhaseStarting, events.PhaseExecuting, events.PhaseCompleted,
		events.PhaseStarting, events.PhaseExecuting, events.PhaseCompleted,
	}
	for i, evt := range history {
		assert.Equal(t, wantPhases[i], evt.Phase, "event %d", i)
	}
	assert.NotEqual(t, history[0].ToolCallID, history[3].ToolCallID)
}

func TestExecutorRetriesWithFreshCallID(t *testing.T) {
	broker := events.NewBroker()
	attempts := 0
	flaky := &fakeTool{name: "click", fn: func(ctx context.Context, target string) (string, error) {
		attempts++
		if attempts == 1 {
			return "", fmt.Errorf("element not found")
		}
		return "clicked", nil
	}}
	exec := executorFor(broker, flaky)

	plan := mustValidate(t, &Plan{
		Objective: "press the button",
		Steps:     []Step{{Index: 1, Action: "click", Target: "button.go"}},
	})

	res, err := exec.Execute(context.Background(), "run-1", plan)
	require.NoError(t, err)

	require.Len(t, res.Steps, 1)
	assert.True(t, res.Steps[0].Success)
	assert.Equal(t, 2, res.Steps[0].Attempts)
	assert.Empty(t, res.Steps[0].Error, "a later success clears the earlier attempt's error")

	history := broker.History()
	require.Len(t, history, 6, "two attempts, three phases each")
	assert.Equal(t, events.PhaseError, history[2].Phase)
	assert.Equal(t, events.PhaseCompleted, history[5].Phase)
	assert.NotEqual(t, history[0].ToolCallID, history[3].ToolCallID,
		"each attempt gets its own tool call ID")
}

func TestExecutorUnknownAction(t *testing.T) {
	broker := events.NewBroker()
	exec := executorFor(broker)

	plan := mustValidate(t, &Plan{
		Objective: "use a tool that does not exist",
		Steps:     []Step{{Index: 1, Action: "teleport", Target: "anywhere"}},
	})
	exec.CriticalActions = nil

	res, err := exec.Execute(context.Background(), "run-1", plan)
	require.NoError(t, err)

	require.Len(t, res.Steps, 1)
	assert.False(t, res.Steps[0].Success)
	assert.Contains(t, res.Steps[0].Error, "teleport")
	assert.Empty(t, broker.History(), "no events for a tool that never ran")
}

func TestExecutorPolicyDeny(t *testing.T) {
	broker := events.NewBroker()
	exec := executorFor(broker, staticTool("navigate", "https://intranet.local"))
	gov := governance.NewDefaultPolicyEngine()
	require.NoError(t, gov.DenyTarget(`^file://`))
	exec.Policy = gov
	exec.CriticalActions = nil

	plan := mustValidate(t, &Plan{
		Objective: "read a local file",
		Steps:     []Step{{Index: 1, Action: "navigate", Target: "file:///etc/passwd"}},
	})

	res, err := exec.Execute(context.Background(), "run-1", plan)
	require.NoError(t, err)

	require.Len(t, res.Steps, 1)
	assert.False(t, res.Steps[0].Success)
	assert.Contains(t, res.Steps[0].Error, "restricted")
	assert.Zero(t, res.Steps[0].Attempts, "a denied step never reaches the tool")
	assert.Empty(t, broker.History())
}

func TestExecutorCriticalFailureSkipsRest(t *testing.T) {
	broker := events.NewBroker()
	exec := executorFor(broker,
		failingTool("navigate", "dns lookup failed"),
		staticTool("click", "clicked"),
	)
	exec.StepRetries = 0

	plan := mustValidate(t, &Plan{
		Objective: "open the site",
		Steps: []Step{
			{Index: 1, Action: "navigate", Target: "https://doesnotresolve.example"},
			{Index: 2, Action: "click", Target: "a"},
			{Index: 3, Action: "click", Target: "b"},
		},
	})

	res, err := exec.Execute(context.Background(), "run-1", plan)
	require.NoError(t, err)

	assert.True(t, res.CriticalFailure)
	assert.Contains(t, res.CriticalReason, "critical step 1")
	require.Len(t, res.Steps, 1, "no steps run after a critical failure")
	assert.Equal(t, StepSkipped, plan.Steps[1].Status)
	assert.Equal(t, StepSkipped, plan.Steps[2].Status)
}

func TestExecutorNonCriticalFailureContinues(t *testing.T) {
	broker := events.NewBroker()
	exec := executorFor(broker,
		failingTool("click", "not clickable"),
		staticTool("answer", "partial answer"),
	)
	exec.StepRetries = 0

	plan := mustValidate(t, &Plan{
		Objective: "click then answer",
		Steps: []Step{
			{Index: 1, Action: "click", Target: "button"},
			{Index: 2, Action: "answer", Target: "partial answer"},
		},
	})

	res, err := exec.Execute(context.Background(), "run-1", plan)
	require.NoError(t, err)

	require.Len(t, res.Steps, 2)
	assert.False(t, res.Steps[0].Success)
	assert.True(t, res.Steps[1].Success)
	assert.Equal(t, StepFailed, res.Steps[0].Step.Status)
	assert.Equal(t, StepSucceeded, res.Steps[1].Step.Status)
	assert.Equal(t, 1, res.FailureSignatures["click|button|not clickable"])
}

func TestExecutorCancellationMidPlan(t *testing.T) {
	broker := events.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	exec := executorFor(broker,
		&fakeTool{name: "navigate", fn: func(ctx context.Context, target string) (string, error) {
			cancel()
			return "https://example.com", nil
		}},
		staticTool("click", "clicked"),
	)

	plan := mustValidate(t, &Plan{
		Objective: "cancelled mid-plan",
		Steps: []Step{
			{Index: 1, Action: "navigate", Target: "https://example.com"},
			{Index: 2, Action: "click", Target: "a"},
		},
	})

	res, err := exec.Execute(ctx, "run-1", plan)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, res.Steps, 1, "the in-flight step finishes, later ones do not start")
	assert.Equal(t, StepSkipped, plan.Steps[1].Status)
}
