package gateway

import (
	"fmt"
	"strings"

	"github.com/rahul/webpilot/internal/agent"
)

// formatResult renders a run result as a chat reply.
func formatResult(result agent.RunResult) string {
	var b strings.Builder

	switch {
	case result.Success && result.Degraded:
		b.WriteString("⚠️ *Partial result*\n\n")
	case result.Success:
		b.WriteString("✅ *Done*\n\n")
	default:
		b.WriteString("❌ *Task failed*\n\n")
	}

	if result.FinalAnswer != "" {
		b.WriteString(result.FinalAnswer)
	} else if result.Error != "" {
		b.WriteString(result.Error)
	}

	if result.FinalURL != "" {
		fmt.Fprintf(&b, "\n\n🔗 %s", result.FinalURL)
	}
	if !result.Success && result.Diagnosis != nil {
		fmt.Fprintf(&b, "\n\n*What went wrong:* %s\n*Next time:* %s",
			result.Diagnosis.Blame, result.Diagnosis.Improvement)
	}
	fmt.Fprintf(&b, "\n\n_%d steps, run %s_", result.Steps, shortID(result.RunID))
	return b.String()
}

// formatProgress renders the live step checklist shown while a run executes.
func formatProgress(records []agent.ProgressRecord) string {
	var b strings.Builder
	b.WriteString("🛰️ *Working...*\n")
	for _, r := range records {
		icon := "◻️"
		switch r.Status {
		case agent.ProgressInProgress:
			icon = "⏳"
		case agent.ProgressCompleted:
			icon = "✅"
		case agent.ProgressError:
			icon = "❌"
		}
		fmt.Fprintf(&b, "\n%s %s", icon, r.Title)
		if r.Description != "" {
			fmt.Fprintf(&b, ": %s", truncate(r.Description, 60))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
