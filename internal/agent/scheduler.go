package agent

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Messenger is the slice of the gateway the scheduler needs to notify users.
type Messenger interface {
	Send(sessionID string, text string) error
}

// QueuedTask is one scheduled browser task waiting to run.
type QueuedTask struct {
	ID              int
	SessionID       string
	Description     string
	IntervalSeconds int
}

// TaskQueue is implemented by the store journal.
type TaskQueue interface {
	PendingTasks() ([]QueuedTask, error)
	MarkTaskRun(id int) error
	DeleteTask(sessionID string, id int) error
}

// Scheduler polls the task queue and launches orchestrator runs for due
// tasks, notifying the owning session through the gateway.
type Scheduler struct {
	Engine  *Engine
	Queue   TaskQueue
	Gateway Messenger
}

func NewScheduler(engine *Engine, queue TaskQueue, gateway Messenger) *Scheduler {
	return &Scheduler{
		Engine:  engine,
		Queue:   queue,
		Gateway: gateway,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log.Println("Task scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndExecute(ctx)
		}
	}
}

func (s *Scheduler) pollAndExecute(ctx context.Context) {
	tasks, err := s.Queue.PendingTasks()
	if err != nil {
		log.Printf("Error polling tasks: %v", err)
		return
	}

	for _, t := range tasks {
		log.Printf("Executing scheduled task %d for session %s: %s", t.ID, t.SessionID, t.Description)

		result := s.Engine.Execute(ctx, t.SessionID, t.Description)

		if err := s.Queue.MarkTaskRun(t.ID); err != nil {
			log.Printf("Error updating last run for task %d: %v", t.ID, err)
		}

		// One-time tasks (interval = 0) are removed after they run.
		if t.IntervalSeconds == 0 {
			if err := s.Queue.DeleteTask(t.SessionID, t.ID); err != nil {
				log.Printf("Error deleting one-time task %d: %v", t.ID, err)
			}
		}

		if s.Gateway != nil {
			text := result.FinalAnswer
			if !result.Success {
				text = fmt.Sprintf("Scheduled task failed: %s", result.Error)
			}
			s.Gateway.Send(t.SessionID, "⏰ *Scheduled Task Output*\n\n"+text)
		}
	}
}
