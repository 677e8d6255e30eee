package tools

import (
	"context"
	"testing"
	"time"
)

func TestBrowserSessionSerializesActionBatches(t *testing.T) {
	s := NewBrowserSession(true)
	defer s.Close()

	// Hold the batch lock as a concurrent run would, then confirm another
	// caller cannot interleave until it is released.
	s.runMu.Lock()

	done := make(chan struct{})
	go func() {
		s.CurrentURL(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("action batch ran while another batch held the session")
	case <-time.After(50 * time.Millisecond):
	}

	s.runMu.Unlock()

	// The blocked batch now proceeds. It may still fail to start a browser
	// in this environment; only the ordering matters here.
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("action batch never proceeded after the session was released")
	}
}
