package agent

import (
	"fmt"
	"strings"
)

// FallbackSummary renders a deterministic run summary from the executed
// steps, with no provider involvement. Replaying the same steps always
// produces byte-identical text, so it is safe for timeouts, journals, and
// degraded completions alike.
func FallbackSummary(steps []ExecutedStep) string {
	if len(steps) == 0 {
		return "No steps were executed."
	}

	succeeded := 0
	finalURL := ""
	for _, s := range steps {
		if s.Success {
			succeeded++
			if s.URL != "" {
				finalURL = s.URL
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Executed %d of %d steps successfully.", succeeded, len(steps))
	if finalURL != "" {
		fmt.Fprintf(&b, " Final URL: %s.", finalURL)
	}
	b.WriteString("\nTrajectory:")
	for _, s := range steps {
		outcome := "ok"
		if !s.Success {
			outcome = "failed"
		}
		fmt.Fprintf(&b, "\n  %d. %s %s -> %s (%dms)", s.Step.Index, s.Step.Action, truncateTarget(s.Step.Target), outcome, s.Duration.Milliseconds())
		if s.Error != "" {
			fmt.Fprintf(&b, " [%s]", s.Error)
		}
	}
	return b.String()
}
