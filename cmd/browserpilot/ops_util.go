package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"browserpilot/internal/ipc"
	sess "browserpilot/internal/session"
)

// saveScreenshot writes image bytes under dir (or the workspace-stable
// screenshot directory) with a timestamped name and returns the path.
func saveScreenshot(data []byte, format, dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(os.TempDir(), "browser-coordinator", "screenshots",
			ipc.WorkspaceHash(cwd))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}

	_, ext := sess.ResolveFormat(format)
	name := "screenshot-" + time.Now().UTC().Format("2006-01-02T15-04-05Z") + "." + ext
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save screenshot: %w", err)
	}
	return path, nil
}

// parseHeaderFlags turns repeated "Name: value" flags into a header map.
func parseHeaderFlags(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q (want 'Name: value')", f)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return out, nil
}
