package agent

import (
	"os"
	"path/filepath"
	"strings"
)

// Built-in prompts used when the prompts directory has no override file, so
// the engine works out of the box.
const (
	defaultPlannerPrompt = `You are the planning module of a browser-automation agent.
Given a task, produce a plan of browser actions by calling propose_plan exactly once.
Each step has an action (one of the available tools), a target string, your reasoning,
the expected outcome, and validation criteria. Keep plans short and concrete. Finish
plans with an 'answer' step that states the result for the user.`

	defaultEvaluatorPrompt = `You are the evaluation module of a browser-automation agent.
Given the original objective, the execution diary, and the candidate answer, score how
completely the objective was met by calling report_evaluation exactly once. List at most
five concrete gaps. If the objective was not met, propose an optimized_query that a
fresh planning cycle should use instead.`

	defaultDiagnosisPrompt = `You are the failure-analysis module of a browser-automation agent.
A run has failed. Given the chronological diary and the final answer, call
report_diagnosis exactly once with: recap (what happened), blame (the most likely root
cause), and improvement (what to change next time). Be specific and brief.`
)

// PromptManager loads stage prompts from markdown files, falling back to the
// built-in defaults when a file is missing.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) load(name, fallback string) string {
	if pm == nil || pm.Directory == "" {
		return fallback
	}
	data, err := os.ReadFile(filepath.Join(pm.Directory, name))
	if err != nil {
		return fallback
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fallback
	}
	return text
}

// PlannerPrompt is the system prompt for the planning stage. An identity.md
// file, when present, is prepended so deployments can brand the agent.
func (pm *PromptManager) PlannerPrompt() string {
	base := pm.load("planner.md", defaultPlannerPrompt)
	if identity := pm.load("identity.md", ""); identity != "" {
		return identity + "\n\n---\n\n" + base
	}
	return base
}

// EvaluatorPrompt is the system prompt for the evaluation stage.
func (pm *PromptManager) EvaluatorPrompt() string {
	return pm.load("evaluator.md", defaultEvaluatorPrompt)
}

// DiagnosisPrompt is the system prompt for the error-analysis stage.
func (pm *PromptManager) DiagnosisPrompt() string {
	return pm.load("diagnosis.md", defaultDiagnosisPrompt)
}
