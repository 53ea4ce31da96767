package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Clip is a capture rectangle in CSS pixels.
type Clip struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ScreenshotOptions select what to capture. Precedence: Clip, then
// Selector, then FullPage, then the viewport.
type ScreenshotOptions struct {
	Clip     *Clip
	Selector string
	FullPage bool
	Format   string // "png" (default) or "jpeg"
	Quality  int    // jpeg only, 0 = driver default
}

// ResolveFormat normalises the requested image format and returns the
// format name and file extension.
func ResolveFormat(format string) (string, string) {
	switch format {
	case "jpeg", "jpg":
		return "jpeg", "jpg"
	default:
		return "png", "png"
	}
}

// Screenshot captures the active page per opts and returns the encoded
// image bytes.
func (s *Session) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	clip := opts.Clip
	if clip == nil && opts.Selector != "" {
		var box *Clip
		script := fmt.Sprintf(boundingBoxScript, embedJSON(opts.Selector))
		if err := s.evaluate(ctx, script, &box); err != nil {
			return nil, fmt.Errorf("session: element bounds: %w", err)
		}
		if box == nil {
			return nil, fmt.Errorf("session: screenshot selector %q matches no element", opts.Selector)
		}
		clip = box
	}

	format, _ := ResolveFormat(opts.Format)

	var buf []byte
	err := chromedp.Run(withParent(s.pageCtx, ctx),
		chromedp.ActionFunc(func(ctx context.Context) error {
			params := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormat(format))
			if format == "jpeg" && opts.Quality > 0 {
				params = params.WithQuality(int64(opts.Quality))
			}
			if clip != nil {
				params = params.WithClip(&page.Viewport{
					X:      clip.X,
					Y:      clip.Y,
					Width:  clip.Width,
					Height: clip.Height,
					Scale:  1,
				})
			} else if opts.FullPage {
				params = params.WithCaptureBeyondViewport(true)
			}
			var err error
			buf, err = params.Do(ctx)
			return err
		}))
	if err != nil {
		return nil, fmt.Errorf("session: capture screenshot: %w", err)
	}
	return buf, nil
}
