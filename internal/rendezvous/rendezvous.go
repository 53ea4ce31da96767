// Package rendezvous publishes the coordinator's proxy port and pid in a
// well-known file so sibling processes can discover the proxy without a
// discovery protocol. The file is a hint, not an authority: the only truth
// is whether the proxy port accepts connections.
package rendezvous

import (
	"encoding/json"
	"os"
	"path/filepath"

	"browserpilot/internal/logging"
)

// Record describes the live proxy.
type Record struct {
	Port int `json:"port"`
	PID  int `json:"pid"`
}

// Path returns the rendezvous file location.
func Path() string {
	return filepath.Join(os.TempDir(), "browser-coordinator", "state.json")
}

// Write publishes the record, overwriting any previous one. The file is
// written beside its final path and renamed into place, so readers never
// see a partial record. Failure is logged and swallowed: the coordinator
// runs fine without the file.
func Write(rec Record) {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logging.Warnf("rendezvous: create dir: %v", err)
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		logging.Warnf("rendezvous: encode: %v", err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logging.Warnf("rendezvous: write %s: %v", path, err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		logging.Warnf("rendezvous: write %s: %v", path, err)
	}
}

// Read returns the published record. A missing file, invalid JSON, or a
// record without both integer fields all read as "not running".
func Read() (Record, bool) {
	data, err := os.ReadFile(Path())
	if err != nil {
		return Record{}, false
	}
	var raw struct {
		Port *int `json:"port"`
		PID  *int `json:"pid"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw.Port == nil || raw.PID == nil {
		return Record{}, false
	}
	return Record{Port: *raw.Port, PID: *raw.PID}, true
}

// Clear removes the record, best-effort.
func Clear() {
	_ = os.Remove(Path())
}
