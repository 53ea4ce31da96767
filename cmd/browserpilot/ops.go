package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"browserpilot/internal/rendezvous"
	sess "browserpilot/internal/session"
)

// liveProxyPort resolves the running coordinator's proxy port. Page
// operations ride through the stable port, so a first operation can
// trigger the coordinator's lazy launch like any other client.
func liveProxyPort() (int, error) {
	rec, ok := rendezvous.Read()
	if !ok {
		return 0, fmt.Errorf("no running coordinator found (start browserpilot first)")
	}
	return rec.Port, nil
}

func withSession(timeout time.Duration, fn func(ctx context.Context, s *sess.Session) error) error {
	port, err := liveProxyPort()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s, err := sess.Open(ctx, port)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, s)
}

func newNavigateCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "navigate <url>",
		Short: "Drive the coordinated browser to a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(timeout, func(ctx context.Context, s *sess.Session) error {
				if err := s.Navigate(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("navigated to %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "operation timeout")
	return cmd
}

func newDOMCmd() *cobra.Command {
	var (
		selector string
		depth    int
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dom",
		Short: "Print the current page's HTML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(timeout, func(ctx context.Context, s *sess.Session) error {
				html, err := s.GetDOM(ctx, selector, depth)
				if err != nil {
					return err
				}
				fmt.Println(html)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&selector, "selector", "", "CSS selector scoping the output")
	cmd.Flags().IntVar(&depth, "depth", 0, "depth limit for full-document output (0 = unlimited)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "operation timeout")
	return cmd
}

func newScreenshotCmd() *cobra.Command {
	var (
		selector  string
		fullPage  bool
		format    string
		outputDir string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture the current page to an image file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(timeout, func(ctx context.Context, s *sess.Session) error {
				data, err := s.Screenshot(ctx, sess.ScreenshotOptions{
					Selector: selector,
					FullPage: fullPage,
					Format:   format,
				})
				if err != nil {
					return err
				}
				path, err := saveScreenshot(data, format, outputDir)
				if err != nil {
					return err
				}
				fmt.Printf("saved %s (%d bytes)\n", path, len(data))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&selector, "selector", "", "capture only the matched element")
	cmd.Flags().BoolVar(&fullPage, "full-page", false, "capture beyond the viewport")
	cmd.Flags().StringVar(&format, "format", "png", "image format (png or jpeg)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to save into (default: workspace screenshot dir)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "operation timeout")
	return cmd
}

func newFetchCmd() *cobra.Command {
	var (
		method  string
		body    string
		headers []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Perform an HTTP request from inside the page (cookies included)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdrs, err := parseHeaderFlags(headers)
			if err != nil {
				return err
			}
			return withSession(timeout, func(ctx context.Context, s *sess.Session) error {
				result, err := s.Fetch(ctx, sess.FetchOptions{
					URL:     args[0],
					Method:  method,
					Headers: hdrs,
					Body:    body,
					Timeout: timeout,
				})
				if err != nil {
					return err
				}
				fmt.Println(result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "HTTP method (default GET)")
	cmd.Flags().StringVar(&body, "body", "", "request body")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "request header as 'Name: value' (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", sess.DefaultFetchTimeout, "operation timeout")
	return cmd
}
