package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"browserpilot/internal/browser"
)

func newBrowsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browsers",
		Short: "List installed browsers usable for automation",
		RunE: func(cmd *cobra.Command, args []string) error {
			list := browser.Detect()
			if len(list) == 0 {
				fmt.Println("no supported browsers found")
				return nil
			}
			for _, d := range list {
				proto := "cdp"
				if d.SpeaksBiDi {
					proto = "bidi"
				}
				fmt.Printf("%-10s %s (%s, %s)\n", d.Kind, d.Name, d.Path, proto)
			}
			return nil
		},
	}
}
