package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxContextChars = 50000

// PageContextTool extracts the readable content of the page the browser is
// currently on. The raw DOM goes through readability and a strict sanitizer
// so the planner and evaluator see clean text instead of markup.
type PageContextTool struct {
	Session *BrowserSession
}

func NewPageContextTool(s *BrowserSession) *PageContextTool {
	return &PageContextTool{Session: s}
}

func (t *PageContextTool) Name() string { return "getPageContext" }

func (t *PageContextTool) Description() string {
	return "Read the current page and return its main content as clean, sanitized text."
}

func (t *PageContextTool) Parameters() map[string]any {
	return targetParam("Optional hint describing what to look for; may be empty")
}

func (t *PageContextTool) Execute(ctx context.Context, input string) (string, error) {
	if _, err := DecodeInput(input); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	var html, loc string
	err := t.Session.run(ctx,
		chromedp.Location(&loc),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", err
	}

	pageURL, err := url.Parse(loc)
	if err != nil {
		pageURL = &url.URL{}
	}

	sanitizer := bluemonday.StrictPolicy()

	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		// Readability gives up on some pages (empty bodies, frames); fall
		// back to the sanitized raw document so the step still yields text.
		return Truncate(sanitizer.Sanitize(html), maxContextChars), nil
	}

	output := fmt.Sprintf("URL: %s\nTITLE: %s\n", loc, article.Title)
	if article.Excerpt != "" {
		output += fmt.Sprintf("EXCERPT: %s\n", article.Excerpt)
	}
	output += "\n-- CONTENT --\n"
	output += Truncate(sanitizer.Sanitize(article.TextContent), maxContextChars)

	return output, nil
}

// Truncate caps tool output so a single page cannot blow the model context.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... (content truncated) ..."
}
