// Package session opens short-lived CDP sessions against a debugging port
// and runs single round-trip evaluations for the page-touching operations.
// The coordinator's own sessions dial the backend directly rather than
// through the proxy, so the proxy's connection set reflects only
// downstream clients; the CLI page commands are such clients and open
// their sessions on the proxy port.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// maxDocumentChars bounds full-document DOM extraction output.
const maxDocumentChars = 100_000

// Session is a live connection to the backend's CDP endpoint, attached to
// the active page target. Open one per operation and Close it when done.
type Session struct {
	browserCtx context.Context
	pageCtx    context.Context

	cancels []context.CancelFunc
}

// Open connects to the debugging endpoint on port and attaches to the
// first page target, creating a blank one if the browser has none.
func Open(ctx context.Context, port int) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx,
		fmt.Sprintf("http://127.0.0.1:%d", port))
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{browserCancel, allocCancel},
	}

	targetID, err := activePageTarget(browserCtx)
	if err != nil {
		s.Close()
		return nil, err
	}

	pageCtx, pageCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(targetID))
	s.pageCtx = pageCtx
	s.cancels = append([]context.CancelFunc{pageCancel}, s.cancels...)
	return s, nil
}

// Close detaches the session. Targets the session merely attached to are
// left running.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}

// activePageTarget returns a page target to attach to, creating one when
// the browser has no pages at all.
func activePageTarget(browserCtx context.Context) (target.ID, error) {
	infos, err := chromedp.Targets(browserCtx)
	if err != nil {
		return "", fmt.Errorf("session: list targets: %w", err)
	}
	for _, info := range infos {
		if info.Type == "page" {
			return info.TargetID, nil
		}
	}

	var id target.ID
	err = chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, err = target.CreateTarget("about:blank").Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("session: create target: %w", err)
	}
	return id, nil
}

// Navigate drives the active page to url.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := chromedp.Run(withParent(s.pageCtx, ctx), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("session: navigate %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the active page's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := chromedp.Run(withParent(s.pageCtx, ctx), chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("session: read location: %w", err)
	}
	return url, nil
}

// GetDOM renders page HTML. With a selector it returns the matched
// element's outerHTML and fails when nothing matches. Without one it
// returns the document, depth-limited when depth > 0 and truncated to
// maxDocumentChars.
func (s *Session) GetDOM(ctx context.Context, selector string, depth int) (string, error) {
	var script string
	if selector != "" {
		script = fmt.Sprintf(selectorHTMLScript, embedJSON(selector))
	} else {
		script = fmt.Sprintf(documentHTMLScript, embedJSON(depth))
	}

	var html *string
	if err := s.evaluate(ctx, script, &html); err != nil {
		return "", fmt.Errorf("session: extract DOM: %w", err)
	}
	if html == nil {
		return "", fmt.Errorf("session: no element matches selector %q", selector)
	}
	out := *html
	if selector == "" {
		if runes := []rune(out); len(runes) > maxDocumentChars {
			out = string(runes[:maxDocumentChars])
		}
	}
	return out, nil
}

// SelectElement injects the element picker into the active page and
// waits (bounded by ctx) for the user to click an element. The returned
// record describes the picked element.
func (s *Session) SelectElement(ctx context.Context) (*PickedElement, error) {
	var raw string
	if err := s.evaluate(ctx, elementPickerScript, &raw); err != nil {
		return nil, fmt.Errorf("session: element picker: %w", err)
	}
	var picked PickedElement
	if err := json.Unmarshal([]byte(raw), &picked); err != nil {
		return nil, fmt.Errorf("session: decode picked element: %w", err)
	}
	return &picked, nil
}

// PickedElement describes the element chosen by the in-page picker.
type PickedElement struct {
	Selector string  `json:"selector"`
	Tag      string  `json:"tag"`
	ID       string  `json:"id,omitempty"`
	Classes  string  `json:"classes,omitempty"`
	Text     string  `json:"text,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// evaluate runs one script on the active page, awaiting promises and
// unmarshalling the by-value result into out.
func (s *Session) evaluate(ctx context.Context, script string, out any) error {
	return chromedp.Run(withParent(s.pageCtx, ctx),
		chromedp.Evaluate(script, out, awaitPromise))
}

// withParent bounds a chromedp context by the caller's deadline and
// cancellation without discarding the target attachment.
func withParent(chromedpCtx, caller context.Context) context.Context {
	if caller == nil {
		return chromedpCtx
	}
	ctx, cancel := context.WithCancel(chromedpCtx)
	go func() {
		select {
		case <-caller.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
