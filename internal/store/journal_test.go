package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rahul/webpilot/internal/agent"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndListRuns(t *testing.T) {
	j := newTestJournal(t)

	result := agent.RunResult{
		RunID:       "run-1",
		Success:     true,
		Steps:       2,
		FinalURL:    "https://example.com/done",
		FinalAnswer: "found it",
	}
	steps := []agent.ExecutedStep{
		{
			Step:     agent.Step{Index: 1, Action: "navigate", Target: "https://example.com"},
			Success:  true,
			Duration: 800 * time.Millisecond,
			Attempts: 1,
		},
		{
			Step:     agent.Step{Index: 2, Action: "answer", Target: "found it"},
			Success:  true,
			Duration: 5 * time.Millisecond,
			Attempts: 1,
		},
	}

	if err := j.RecordRun("chat-1", "run-1", "find the thing", result, steps); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := j.RecentRuns("chat-1", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != "run-1" || !r.Success || r.Steps != 2 || r.Objective != "find the thing" {
		t.Errorf("unexpected run row: %+v", r)
	}

	var stepCount int
	if err := j.DB.QueryRow(`SELECT COUNT(*) FROM run_steps WHERE run_id = ?`, "run-1").Scan(&stepCount); err != nil {
		t.Fatalf("count steps: %v", err)
	}
	if stepCount != 2 {
		t.Errorf("got %d step rows, want 2", stepCount)
	}

	other, err := j.RecentRuns("chat-2", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("run history leaked across sessions: %+v", other)
	}
}

func TestTaskQueueLifecycle(t *testing.T) {
	j := newTestJournal(t)

	if err := j.AddTask("chat-1", "check the weather", 60); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := j.AddTask("chat-1", "one-time check", 0); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	tasks, err := j.PendingTasks()
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d pending tasks, want 2", len(tasks))
	}

	// A just-run interval task leaves the pending set until it is due again.
	if err := j.MarkTaskRun(tasks[0].ID); err != nil {
		t.Fatalf("MarkTaskRun: %v", err)
	}
	tasks, err = j.PendingTasks()
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d pending tasks after mark, want 1", len(tasks))
	}

	if err := j.DeleteTask("chat-1", tasks[0].ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	tasks, err = j.PendingTasks()
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("got %d pending tasks after delete, want 0", len(tasks))
	}
}

func TestClearTasks(t *testing.T) {
	j := newTestJournal(t)

	if err := j.AddTask("chat-1", "a", 10); err != nil {
		t.Fatal(err)
	}
	if err := j.AddTask("chat-2", "b", 10); err != nil {
		t.Fatal(err)
	}
	if err := j.ClearTasks("chat-1"); err != nil {
		t.Fatalf("ClearTasks: %v", err)
	}

	tasks, err := j.PendingTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].SessionID != "chat-2" {
		t.Errorf("ClearTasks removed the wrong rows: %+v", tasks)
	}
}
