package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"browserpilot/internal/logging"
)

// ErrOriginMismatch means the transient tab ended up on a different
// origin than requested, usually a silent redirect. Running the fetch
// there would attach the wrong cookies, so the operation refuses.
var ErrOriginMismatch = errors.New("session: origin mismatch")

// DefaultFetchTimeout bounds a fetch operation when the caller supplies
// none.
const DefaultFetchTimeout = 30 * time.Second

// FetchOptions describe an in-browser HTTP request.
type FetchOptions struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

// Fetch opens a short-lived background tab on the target's origin and
// runs the request from page context so cookies ride along. The tab is
// closed on every exit path.
func (s *Session) Fetch(ctx context.Context, opts FetchOptions) (string, error) {
	origin, err := OriginOf(opts.URL)
	if err != nil {
		return "", fmt.Errorf("session: fetch url: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// A fresh tab keeps the user's visible page untouched. chromedp
	// created this target, so cancelling tabCtx closes it.
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()
	defer func() {
		if err := chromedp.Cancel(tabCtx); err != nil {
			logging.Debugf("session: close fetch tab: %v", err)
		}
	}()

	runCtx := withParent(tabCtx, opCtx)

	// Land on the origin first; Navigate returns once the top frame has
	// navigated and settled.
	if err := chromedp.Run(runCtx, chromedp.Navigate(origin+"/")); err != nil {
		return "", fmt.Errorf("session: open origin %s: %w", origin, err)
	}

	var actual string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(originScript, &actual)); err != nil {
		return "", fmt.Errorf("session: read origin: %w", err)
	}
	if !SameOrigin(origin, actual) {
		return "", fmt.Errorf("%w: requested %s but the page loaded %s; "+
			"the site likely redirects across origins — fetch the final origin directly",
			ErrOriginMismatch, origin, actual)
	}

	// The page has what we need; stop any straggling subresource loads
	// before running the fetch.
	if err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.StopLoading().Do(ctx)
	})); err != nil {
		logging.Debugf("session: stop loading: %v", err)
	}

	init := map[string]any{}
	if opts.Method != "" {
		init["method"] = opts.Method
	}
	if len(opts.Headers) > 0 {
		init["headers"] = opts.Headers
	}
	if opts.Body != "" {
		init["body"] = opts.Body
	}

	script := fmt.Sprintf(fetchScript, embedJSON(opts.URL), embedJSON(init))
	var result string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &result, awaitPromise)); err != nil {
		return "", fmt.Errorf("session: fetch evaluation: %w", err)
	}
	return result, nil
}

// OriginOf extracts the normalised origin (scheme://host[:port], default
// ports elided) from rawURL.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || isDefaultPort(scheme, port) {
		return scheme + "://" + host, nil
	}
	return scheme + "://" + host + ":" + port, nil
}

// SameOrigin compares two origin strings after normalisation. Inputs
// that fail to parse compare by string equality.
func SameOrigin(a, b string) bool {
	na, errA := OriginOf(a)
	nb, errB := OriginOf(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return na == nb
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}
