package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
)

// BrowserSession owns one Chrome instance shared by every browser tool.
// Browser state is not concurrency-safe: steps within a run are already
// strictly sequential, and runMu serializes action batches across concurrent
// runs (gateway sessions, scheduler) sharing the instance.
type BrowserSession struct {
	mu            sync.Mutex // guards lazy initialization and teardown
	runMu         sync.Mutex // serializes whole action batches
	headless      bool
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowserSession(headless bool) *BrowserSession {
	return &BrowserSession{headless: headless}
}

func (s *BrowserSession) init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browserCtx != nil {
		select {
		case <-s.browserCtx.Done():
			s.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", s.headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)

	return chromedp.Run(s.browserCtx)
}

func (s *BrowserSession) cleanup() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.allocCtx = nil
}

// Close tears down the Chrome instance. Safe to call more than once.
func (s *BrowserSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup()
}

// run executes chromedp actions against the shared browser, honoring the
// caller's deadline and cancellation. The action context derives from the
// browser context (chromedp requires that), so the caller's ctx is bridged in.
func (s *BrowserSession) run(ctx context.Context, actions ...chromedp.Action) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.init(ctx); err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}

	actionCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		actionCtx, cancel = context.WithDeadline(s.browserCtx, dl)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(actionCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// CurrentURL reports the page the browser is on, or "" before any navigation.
func (s *BrowserSession) CurrentURL(ctx context.Context) string {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return ""
	}
	return loc
}

func targetParam(desc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target": map[string]any{
				"type":        "string",
				"description": desc,
			},
		},
		"required": []string{"target"},
	}
}

// ---------------------------------------------------------------------------
// navigate
// ---------------------------------------------------------------------------

type NavigateTool struct {
	Session *BrowserSession
}

func NewNavigateTool(s *BrowserSession) *NavigateTool { return &NavigateTool{Session: s} }

func (t *NavigateTool) Name() string { return "navigate" }

func (t *NavigateTool) Description() string {
	return "Open a URL in the browser. The page stays loaded for subsequent actions."
}

func (t *NavigateTool) Parameters() map[string]any {
	return targetParam("The full URL to navigate to (e.g. https://example.com)")
}

func (t *NavigateTool) Execute(ctx context.Context, input string) (string, error) {
	in, err := DecodeInput(input)
	if err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.Target == "" {
		return "", fmt.Errorf("navigate requires a URL target")
	}

	var loc string
	if err := t.Session.run(ctx, chromedp.Navigate(in.Target), chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// ---------------------------------------------------------------------------
// click
// ---------------------------------------------------------------------------

type ClickTool struct {
	Session *BrowserSession
}

func NewClickTool(s *BrowserSession) *ClickTool { return &ClickTool{Session: s} }

func (t *ClickTool) Name() string { return "click" }

func (t *ClickTool) Description() string {
	return "Click the element matching a CSS selector on the current page."
}

func (t *ClickTool) Parameters() map[string]any {
	return targetParam("CSS selector of the element to click (e.g. #submit, a.next)")
}

func (t *ClickTool) Execute(ctx context.Context, input string) (string, error) {
	in, err := DecodeInput(input)
	if err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.Target == "" {
		return "", fmt.Errorf("click requires a CSS selector target")
	}

	if err := t.Session.run(ctx, chromedp.Click(in.Target, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return fmt.Sprintf("clicked %s", in.Target), nil
}

// ---------------------------------------------------------------------------
// type
// ---------------------------------------------------------------------------

type TypeTool struct {
	Session *BrowserSession
}

func NewTypeTool(s *BrowserSession) *TypeTool { return &TypeTool{Session: s} }

func (t *TypeTool) Name() string { return "type" }

func (t *TypeTool) Description() string {
	return "Type text into an input field. Target format: \"<css selector> => <text>\"."
}

func (t *TypeTool) Parameters() map[string]any {
	return targetParam("Selector and text separated by ' => ', e.g. \"input[name=q] => golang\"")
}

// SplitTypeTarget separates the "<selector> => <text>" target form.
func SplitTypeTarget(target string) (selector, text string, err error) {
	parts := strings.SplitN(target, "=>", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("type target must be \"<selector> => <text>\", got %q", target)
	}
	selector = strings.TrimSpace(parts[0])
	text = strings.TrimSpace(parts[1])
	if selector == "" || text == "" {
		return "", "", fmt.Errorf("type target needs both a selector and text, got %q", target)
	}
	return selector, text, nil
}

func (t *TypeTool) Execute(ctx context.Context, input string) (string, error) {
	in, err := DecodeInput(input)
	if err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	selector, text, err := SplitTypeTarget(in.Target)
	if err != nil {
		return "", err
	}

	if err := t.Session.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return fmt.Sprintf("typed %q into %s", text, selector), nil
}

// ---------------------------------------------------------------------------
// scroll
// ---------------------------------------------------------------------------

type ScrollTool struct {
	Session *BrowserSession
}

func NewScrollTool(s *BrowserSession) *ScrollTool { return &ScrollTool{Session: s} }

func (t *ScrollTool) Name() string { return "scroll" }

func (t *ScrollTool) Description() string {
	return "Scroll the page. Target is a CSS selector to scroll into view, or empty to scroll to the bottom."
}

func (t *ScrollTool) Parameters() map[string]any {
	return targetParam("CSS selector to scroll to, or \"\" for the page bottom")
}

func (t *ScrollTool) Execute(ctx context.Context, input string) (string, error) {
	in, err := DecodeInput(input)
	if err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	if in.Target != "" {
		if err := t.Session.run(ctx, chromedp.ScrollIntoView(in.Target, chromedp.ByQuery)); err != nil {
			return "", err
		}
		return fmt.Sprintf("scrolled to %s", in.Target), nil
	}

	if err := t.Session.run(ctx, chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil)); err != nil {
		return "", err
	}
	return "scrolled to bottom", nil
}
