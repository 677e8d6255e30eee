package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFallbackSummaryDeterministic(t *testing.T) {
	steps := []ExecutedStep{
		{
			Step:     Step{Index: 1, Action: "navigate", Target: "https://example.com"},
			Success:  true,
			URL:      "https://example.com/home",
			Duration: 1200 * time.Millisecond,
		},
		{
			Step:     Step{Index: 2, Action: "click", Target: "a.broken"},
			Success:  false,
			Error:    "element not found",
			Duration: 300 * time.Millisecond,
		},
	}

	first := FallbackSummary(steps)
	second := FallbackSummary(steps)
	assert.Equal(t, first, second, "same steps must render byte-identical summaries")

	assert.Contains(t, first, "Executed 1 of 2 steps successfully.")
	assert.Contains(t, first, "Final URL: https://example.com/home.")
	assert.Contains(t, first, "element not found")
}

func TestFallbackSummaryNoSteps(t *testing.T) {
	assert.Equal(t, "No steps were executed.", FallbackSummary(nil))
}
