package gateway

import (
	"context"

	"github.com/rahul/webpilot/internal/agent"
)

// Gateway is a chat surface that accepts browser tasks and reports results.
type Gateway interface {
	// Start begins the message listening loop. It blocks until Stop.
	Start() error
	// Send delivers a message to a session (chat or channel ID).
	Send(sessionID string, text string) error
	// Stop gracefully shuts down the gateway.
	Stop() error
}

// Runner is the slice of the engine a gateway needs: fire one run, get one
// result. The result is always populated, even for failed runs.
type Runner interface {
	Execute(ctx context.Context, sessionID, query string) agent.RunResult
	ExecuteWithProgress(ctx context.Context, sessionID, query string, progress agent.ProgressFunc) agent.RunResult
}
