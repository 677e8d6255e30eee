package store

import (
	"database/sql"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/webpilot/internal/agent"
)

// Journal persists terminal run outcomes and the scheduled-task queue. It
// implements agent.RunRecorder and agent.TaskQueue.
type Journal struct {
	DB *sql.DB
}

func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			objective TEXT,
			success INTEGER,
			degraded INTEGER,
			steps INTEGER,
			final_url TEXT,
			final_answer TEXT,
			error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			run_id TEXT,
			idx INTEGER,
			action TEXT,
			target TEXT,
			success INTEGER,
			duration_ms INTEGER,
			attempts INTEGER,
			error TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			description TEXT,
			interval_seconds INTEGER,
			last_run DATETIME,
			status TEXT DEFAULT 'active'
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &Journal{DB: db}, nil
}

func (j *Journal) Close() error {
	return j.DB.Close()
}

// RecordRun stores the terminal outcome of one run plus its per-step records.
func (j *Journal) RecordRun(sessionID, runID, objective string, result agent.RunResult, steps []agent.ExecutedStep) error {
	tx, err := j.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, session_id, objective, success, degraded, steps, final_url, final_answer, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, sessionID, objective, boolInt(result.Success), boolInt(result.Degraded),
		result.Steps, result.FinalURL, result.FinalAnswer, result.Error,
	)
	if err != nil {
		return err
	}

	for _, s := range steps {
		_, err = tx.Exec(
			`INSERT INTO run_steps (run_id, idx, action, target, success, duration_ms, attempts, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, s.Step.Index, s.Step.Action, s.Step.Target,
			boolInt(s.Success), s.Duration.Milliseconds(), s.Attempts, s.Error,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RunSummary is one row of run history shown to gateways.
type RunSummary struct {
	ID          string
	Objective   string
	Success     bool
	Steps       int
	FinalURL    string
	FinalAnswer string
	Error       string
	CreatedAt   time.Time
}

func (j *Journal) RecentRuns(sessionID string, limit int) ([]RunSummary, error) {
	rows, err := j.DB.Query(
		`SELECT id, objective, success, steps, final_url, final_answer, error, created_at
		 FROM runs WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var success int
		if err := rows.Scan(&r.ID, &r.Objective, &success, &r.Steps, &r.FinalURL, &r.FinalAnswer, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Success = success != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- task queue ---------------------------------------------------------

func (j *Journal) AddTask(sessionID string, description string, intervalSeconds int) error {
	query := `INSERT INTO tasks (session_id, description, interval_seconds, last_run) VALUES (?, ?, ?, datetime('now', '-365 days'))`
	_, err := j.DB.Exec(query, sessionID, description, intervalSeconds)
	return err
}

func (j *Journal) PendingTasks() ([]agent.QueuedTask, error) {
	query := `
		SELECT id, session_id, description, interval_seconds
		FROM tasks
		WHERE status = 'active'
		AND (last_run IS NULL OR (julianday('now') - julianday(last_run)) * 86400 >= interval_seconds)`
	rows, err := j.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []agent.QueuedTask
	for rows.Next() {
		var t agent.QueuedTask
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Description, &t.IntervalSeconds); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (j *Journal) MarkTaskRun(id int) error {
	query := `UPDATE tasks SET last_run = datetime('now') WHERE id = ?`
	_, err := j.DB.Exec(query, id)
	return err
}

func (j *Journal) DeleteTask(sessionID string, id int) error {
	query := `DELETE FROM tasks WHERE session_id = ? AND id = ?`
	_, err := j.DB.Exec(query, sessionID, id)
	return err
}

func (j *Journal) ClearTasks(sessionID string) error {
	query := `DELETE FROM tasks WHERE session_id = ?`
	_, err := j.DB.Exec(query, sessionID)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
