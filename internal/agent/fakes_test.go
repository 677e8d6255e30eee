package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rahul/webpilot/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// scripted is one canned provider turn: either a function-call payload, a
// prose reply (empty args), or a transport error.
type scripted struct {
	args  string
	prose string
	err   error
}

func callWith(args string) scripted { return scripted{args: args} }
func proseReply() scripted          { return scripted{prose: "I think the answer is 42."} }
func failWith(msg string) scripted  { return scripted{err: fmt.Errorf("%s", msg)} }

// fakeModel dispatches on the structured-output tool each stage requests, so
// one model instance can script planner, evaluator, and analyzer turns
// independently. Exhausted scripts replay their last entry.
type fakeModel struct {
	mu      sync.Mutex
	scripts map[string][]scripted
	calls   map[string]int
	prompts map[string][]string
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		scripts: make(map[string][]scripted),
		calls:   make(map[string]int),
		prompts: make(map[string][]string),
	}
}

func (m *fakeModel) on(tool string, turns ...scripted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[tool] = append(m.scripts[tool], turns...)
}

func (m *fakeModel) callCount(tool string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[tool]
}

func (m *fakeModel) promptAt(tool string, i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.prompts[tool]) {
		return ""
	}
	return m.prompts[tool][i]
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if len(opts.Tools) == 0 || opts.Tools[0].Function == nil {
		return nil, fmt.Errorf("no structured-output tool requested")
	}
	name := opts.Tools[0].Function.Name

	var human string
	for _, msg := range messages {
		if msg.Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				human += text.Text
			}
		}
	}

	m.mu.Lock()
	m.calls[name]++
	m.prompts[name] = append(m.prompts[name], human)
	queue := m.scripts[name]
	if len(queue) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("no scripted response for %s", name)
	}
	turn := queue[0]
	if len(queue) > 1 {
		m.scripts[name] = queue[1:]
	}
	m.mu.Unlock()

	if turn.err != nil {
		return nil, turn.err
	}
	if turn.args == "" {
		return &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: turn.prose}},
		}, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   "call-1",
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      name,
					Arguments: turn.args,
				},
			}},
		}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", fmt.Errorf("legacy Call is not supported")
}

// fakeTool runs an arbitrary function as a registered action.
type fakeTool struct {
	name string
	fn   func(ctx context.Context, target string) (string, error)
}

func (t *fakeTool) Name() string               { return t.name }
func (t *fakeTool) Description() string        { return "test double for " + t.name }
func (t *fakeTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (t *fakeTool) Execute(ctx context.Context, input string) (string, error) {
	in, err := tools.DecodeInput(input)
	if err != nil {
		return "", err
	}
	return t.fn(ctx, in.Target)
}

func staticTool(name, output string) *fakeTool {
	return &fakeTool{name: name, fn: func(ctx context.Context, target string) (string, error) {
		return output, nil
	}}
}

func failingTool(name, msg string) *fakeTool {
	return &fakeTool{name: name, fn: func(ctx context.Context, target string) (string, error) {
		return "", fmt.Errorf("%s", msg)
	}}
}

// blockingTool waits for the context to expire, simulating a hung page.
func blockingTool(name string) *fakeTool {
	return &fakeTool{name: name, fn: func(ctx context.Context, target string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
}

func testRegistry(ts ...tools.Tool) *tools.Registry {
	r := tools.NewRegistry()
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// planArgs builds a propose_plan payload from (action, target) pairs.
func planArgs(estimated int, confidence float64, steps ...[2]string) string {
	payload := map[string]any{
		"estimated_steps":  estimated,
		"complexity_score": 0.3,
		"confidence":       confidence,
	}
	var out []map[string]any
	for i, s := range steps {
		out = append(out, map[string]any{
			"index":  i + 1,
			"action": s[0],
			"target": s[1],
		})
	}
	payload["steps"] = out
	data, _ := json.Marshal(payload)
	return string(data)
}

func evalArgs(completeness float64, optimized string, gaps ...string) string {
	payload := map[string]any{"completeness": completeness}
	if optimized != "" {
		payload["optimized_query"] = optimized
	}
	if len(gaps) > 0 {
		payload["gaps"] = gaps
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

// fakeRecorder captures the terminal journal write.
type fakeRecorder struct {
	mu        sync.Mutex
	sessionID string
	runID     string
	objective string
	result    RunResult
	steps     []ExecutedStep
	records   int
}

func (r *fakeRecorder) RecordRun(sessionID, runID, objective string, result RunResult, steps []ExecutedStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = sessionID
	r.runID = runID
	r.objective = objective
	r.result = result
	r.steps = append([]ExecutedStep(nil), steps...)
	r.records++
	return nil
}
