package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"browserpilot/internal/rendezvous"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a coordinator is running and on which port",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, ok := rendezvous.Read()
			if !ok {
				fmt.Println("coordinator: not running (no rendezvous record)")
				return nil
			}

			// The record is only a hint; the port is the authority.
			addr := fmt.Sprintf("127.0.0.1:%d", rec.Port)
			conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
			if err != nil {
				fmt.Printf("coordinator: stale record (pid %d, port %d not accepting)\n", rec.PID, rec.Port)
				return nil
			}
			_ = conn.Close()

			fmt.Printf("coordinator: running (pid %d)\nproxy port: %d\n", rec.PID, rec.Port)
			return nil
		},
	}
}
