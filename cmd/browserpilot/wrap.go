package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"browserpilot/internal/logging"
	"browserpilot/internal/rendezvous"
)

const (
	rendezvousPollEvery = 250 * time.Millisecond
	rendezvousPollFor   = 10 * time.Second
)

func newWrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wrap -- <program> [args...]",
		Short: "Run a program with {cdp_port}/{cdp_endpoint} substituted from the live coordinator",
		Long: `wrap waits for a running coordinator's rendezvous record, substitutes
{cdp_port} and {cdp_endpoint} in the program's arguments, and runs it
with inherited standard I/O. The child's exit code is propagated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrap(args)
		},
	}
	return cmd
}

func runWrap(args []string) error {
	rec, ok := awaitRendezvous(rendezvousPollFor)
	if !ok {
		return fmt.Errorf("no running coordinator found within %s (is browserpilot started?)", rendezvousPollFor)
	}

	substituted := substituteArgs(args, rec.Port)

	child := exec.Command(substituted[0], substituted[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Env = os.Environ()

	if err := child.Start(); err != nil {
		return fmt.Errorf("start %s: %w", substituted[0], err)
	}

	// Forward termination signals to the child.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if err := child.Process.Signal(sig); err != nil {
				logging.Debugf("wrap: forward %v: %v", sig, err)
			}
		}
	}()

	err := child.Wait()
	signal.Stop(sigCh)
	close(sigCh)

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Child exit codes pass through verbatim.
			os.Exit(exitErr.ExitCode())
		}
		return err
	}
	return nil
}

// awaitRendezvous polls the rendezvous record every rendezvousPollEvery
// until it appears or the window elapses.
func awaitRendezvous(window time.Duration) (rendezvous.Record, bool) {
	deadline := time.Now().Add(window)
	for {
		if rec, ok := rendezvous.Read(); ok {
			return rec, true
		}
		if time.Now().After(deadline) {
			return rendezvous.Record{}, false
		}
		time.Sleep(rendezvousPollEvery)
	}
}

// substituteArgs replaces the {cdp_port} and {cdp_endpoint} template
// substrings in every argument.
func substituteArgs(args []string, port int) []string {
	portStr := fmt.Sprintf("%d", port)
	endpoint := fmt.Sprintf("http://localhost:%d", port)
	out := make([]string, len(args))
	for i, arg := range args {
		arg = strings.ReplaceAll(arg, "{cdp_port}", portStr)
		arg = strings.ReplaceAll(arg, "{cdp_endpoint}", endpoint)
		out[i] = arg
	}
	return out
}
