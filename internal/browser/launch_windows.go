//go:build windows

package browser

import "os"

// terminate: Windows has no SIGTERM; Kill is the graceful path too.
func terminate(p *os.Process) error {
	return p.Kill()
}
