package ipc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "browserpilot"

// WorkspaceHash returns the first 8 hex characters of SHA-256 over the
// absolute workspace path. A convention, not a cryptographic requirement:
// it only needs a low collision rate across plausible workspace paths on
// one machine.
func WorkspaceHash(workspace string) string {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		abs = workspace
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:8]
}

// DataDir returns the per-user directory holding IPC socket files:
// $XDG_DATA_HOME/browserpilot, falling back to ~/.local/share/browserpilot.
func DataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("ipc: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// SocketPath returns the deterministic per-workspace endpoint path: a unix
// socket under DataDir on POSIX, a named pipe on Windows.
func SocketPath(workspace string) (string, error) {
	h := WorkspaceHash(workspace)
	if runtime.GOOS == "windows" {
		return `\\.\pipe\` + appName + "-" + h, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ipc-"+h+".sock"), nil
}
