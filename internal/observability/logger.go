package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypeToolEvent   EventType = "tool_event"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeEvaluation  EventType = "evaluation"
	EventTypeDiagnosis   EventType = "diagnosis"
	EventTypeRunResult   EventType = "run_result"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger is valid and silent, so
// stages never need to guard their log calls.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(runID string, plan any) {
	l.Log(Event{Type: EventTypePlan, RunID: runID, Data: plan})
}

func (l *Logger) LogStep(runID string, index int, action, status string) {
	l.Log(Event{
		Type:  EventTypeStep,
		RunID: runID,
		Data: map[string]any{
			"index":  index,
			"action": action,
			"status": status,
		},
	})
}

func (l *Logger) LogToolCall(runID, toolCallID, tool, args string) {
	l.Log(Event{
		Type:  EventTypeToolCall,
		RunID: runID,
		Data: map[string]string{
			"tool_call_id": toolCallID,
			"tool":         tool,
			"args":         args,
		},
	})
}

func (l *Logger) LogToolResult(runID, toolCallID, tool, result string, err error) {
	data := map[string]string{
		"tool_call_id": toolCallID,
		"tool":         tool,
		"result":       result,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeToolResult, RunID: runID, Data: data})
}

func (l *Logger) LogPolicyCheck(runID, action, target, effect, reason string) {
	l.Log(Event{
		Type:  EventTypePolicyCheck,
		RunID: runID,
		Data: map[string]string{
			"action": action,
			"target": target,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogEvaluation(runID string, completeness float64, gaps []string) {
	l.Log(Event{
		Type:  EventTypeEvaluation,
		RunID: runID,
		Data: map[string]any{
			"completeness": completeness,
			"gaps":         gaps,
		},
	})
}

func (l *Logger) LogDiagnosis(runID string, diagnosis any) {
	l.Log(Event{Type: EventTypeDiagnosis, RunID: runID, Data: diagnosis})
}

func (l *Logger) LogRunResult(sessionID, runID string, result any) {
	l.Log(Event{Type: EventTypeRunResult, SessionID: sessionID, RunID: runID, Data: result})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(runID string, stage string, response string, toolCalls any) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Data: map[string]any{
			"stage":      stage,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
