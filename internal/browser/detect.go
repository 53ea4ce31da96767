// Package browser detects installed browsers and owns the lifecycle of a
// locally-launched instance: port preallocation, spawn with debugging
// flags and an isolated profile, readiness parsing from stderr, and
// two-phase termination.
package browser

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Kind identifies a browser family.
type Kind string

const (
	KindChrome   Kind = "chrome"
	KindEdge     Kind = "edge"
	KindChromium Kind = "chromium"
	KindBrave    Kind = "brave"
	KindFirefox  Kind = "firefox"
	KindOther    Kind = "other"
)

// Engine is the remote-debugging protocol family an instance speaks.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
)

// Descriptor is an installed browser binary. Immutable once created.
type Descriptor struct {
	Name       string
	Kind       Kind
	Path       string
	SpeaksCDP  bool
	SpeaksBiDi bool
}

// Engine returns the protocol family for the descriptor's kind.
func (d Descriptor) Engine() Engine {
	if d.Kind == KindFirefox {
		return EngineFirefox
	}
	return EngineChromium
}

type candidate struct {
	name string
	kind Kind
	path string
}

// pickOrder is the fallback priority when no kind is requested.
var pickOrder = []Kind{KindChrome, KindEdge, KindChromium, KindBrave}

// Detect enumerates installed browsers, ordered by kind priority. Walks a
// platform-keyed path table, emitting the first existing path per kind;
// on POSIX an empty result falls back to PATH lookup over a closed name
// set. Browsers without CDP or BiDi support never appear. Never fails:
// an empty slice means nothing usable was found.
func Detect() []Descriptor {
	var found []Descriptor
	seen := make(map[Kind]bool)
	for _, c := range platformCandidates() {
		if seen[c.kind] {
			continue
		}
		if !fileExists(c.path) {
			continue
		}
		seen[c.kind] = true
		found = append(found, newDescriptor(c.name, c.kind, c.path))
	}

	if len(found) == 0 && runtime.GOOS != "windows" {
		found = detectFromPath()
	}
	return found
}

// Pick selects a descriptor for the preferred kind, requiring the
// capability that kind's engine needs (CDP for the Chromium family, BiDi
// for Firefox). With no preference, the priority order is chrome, edge,
// chromium, brave. Returns nil when nothing fits.
func Pick(list []Descriptor, preferred Kind) *Descriptor {
	if preferred != "" {
		for i := range list {
			d := &list[i]
			if d.Kind != preferred {
				continue
			}
			if d.Kind == KindFirefox && d.SpeaksBiDi {
				return d
			}
			if d.Kind != KindFirefox && d.SpeaksCDP {
				return d
			}
		}
		return nil
	}
	for _, kind := range pickOrder {
		for i := range list {
			if list[i].Kind == kind && list[i].SpeaksCDP {
				return &list[i]
			}
		}
	}
	return nil
}

func newDescriptor(name string, kind Kind, path string) Descriptor {
	return Descriptor{
		Name:       name,
		Kind:       kind,
		Path:       path,
		SpeaksCDP:  kind != KindFirefox,
		SpeaksBiDi: kind == KindFirefox,
	}
}

// detectFromPath resolves a closed set of binary names through PATH and
// classifies each by substring.
func detectFromPath() []Descriptor {
	names := []string{
		"google-chrome", "google-chrome-stable", "chromium",
		"chromium-browser", "brave-browser", "microsoft-edge", "firefox",
	}
	var found []Descriptor
	seen := make(map[Kind]bool)
	for _, name := range names {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		kind := ClassifyName(name)
		if seen[kind] {
			continue
		}
		seen[kind] = true
		found = append(found, newDescriptor(displayName(kind), kind, path))
	}
	return found
}

// ClassifyName maps a binary name onto a Kind by substring match.
func ClassifyName(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "edge"):
		return KindEdge
	case strings.Contains(lower, "chromium"):
		return KindChromium
	case strings.Contains(lower, "firefox"):
		return KindFirefox
	case strings.Contains(lower, "brave"):
		return KindBrave
	default:
		return KindChrome
	}
}

func displayName(kind Kind) string {
	switch kind {
	case KindChrome:
		return "Google Chrome"
	case KindEdge:
		return "Microsoft Edge"
	case KindChromium:
		return "Chromium"
	case KindBrave:
		return "Brave"
	case KindFirefox:
		return "Firefox"
	default:
		return "Browser"
	}
}

func platformCandidates() []candidate {
	switch runtime.GOOS {
	case "darwin":
		return darwinCandidates()
	case "windows":
		return windowsCandidates()
	default:
		return linuxCandidates()
	}
}

func darwinCandidates() []candidate {
	home := os.Getenv("HOME")
	app := func(bundle, exe string) string {
		return filepath.Join("/Applications", bundle, "Contents", "MacOS", exe)
	}
	userApp := func(bundle, exe string) string {
		return filepath.Join(home, "Applications", bundle, "Contents", "MacOS", exe)
	}
	return []candidate{
		{"Google Chrome", KindChrome, app("Google Chrome.app", "Google Chrome")},
		{"Google Chrome", KindChrome, userApp("Google Chrome.app", "Google Chrome")},
		{"Microsoft Edge", KindEdge, app("Microsoft Edge.app", "Microsoft Edge")},
		{"Microsoft Edge", KindEdge, userApp("Microsoft Edge.app", "Microsoft Edge")},
		{"Chromium", KindChromium, app("Chromium.app", "Chromium")},
		{"Chromium", KindChromium, userApp("Chromium.app", "Chromium")},
		{"Brave", KindBrave, app("Brave Browser.app", "Brave Browser")},
		{"Brave", KindBrave, userApp("Brave Browser.app", "Brave Browser")},
		{"Firefox", KindFirefox, app("Firefox.app", "firefox")},
	}
}

func linuxCandidates() []candidate {
	return []candidate{
		{"Google Chrome", KindChrome, "/usr/bin/google-chrome"},
		{"Google Chrome", KindChrome, "/usr/bin/google-chrome-stable"},
		{"Microsoft Edge", KindEdge, "/usr/bin/microsoft-edge"},
		{"Microsoft Edge", KindEdge, "/usr/bin/microsoft-edge-stable"},
		{"Chromium", KindChromium, "/usr/bin/chromium"},
		{"Chromium", KindChromium, "/usr/bin/chromium-browser"},
		{"Chromium", KindChromium, "/snap/bin/chromium"},
		{"Brave", KindBrave, "/usr/bin/brave-browser"},
		{"Brave", KindBrave, "/usr/bin/brave-browser-stable"},
		{"Brave", KindBrave, "/snap/bin/brave"},
		{"Firefox", KindFirefox, "/usr/bin/firefox"},
		{"Firefox", KindFirefox, "/snap/bin/firefox"},
	}
}

func windowsCandidates() []candidate {
	localAppData := os.Getenv("LOCALAPPDATA")
	programFiles := os.Getenv("ProgramFiles")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	programFilesX86 := os.Getenv("ProgramFiles(x86)")
	if programFilesX86 == "" {
		programFilesX86 = `C:\Program Files (x86)`
	}

	var out []candidate
	if localAppData != "" {
		out = append(out,
			candidate{"Google Chrome", KindChrome, filepath.Join(localAppData, "Google", "Chrome", "Application", "chrome.exe")},
			candidate{"Microsoft Edge", KindEdge, filepath.Join(localAppData, "Microsoft", "Edge", "Application", "msedge.exe")},
			candidate{"Brave", KindBrave, filepath.Join(localAppData, "BraveSoftware", "Brave-Browser", "Application", "brave.exe")},
		)
	}
	out = append(out,
		candidate{"Google Chrome", KindChrome, filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe")},
		candidate{"Google Chrome", KindChrome, filepath.Join(programFilesX86, "Google", "Chrome", "Application", "chrome.exe")},
		candidate{"Microsoft Edge", KindEdge, filepath.Join(programFiles, "Microsoft", "Edge", "Application", "msedge.exe")},
		candidate{"Brave", KindBrave, filepath.Join(programFiles, "BraveSoftware", "Brave-Browser", "Application", "brave.exe")},
		candidate{"Firefox", KindFirefox, filepath.Join(programFiles, "Mozilla Firefox", "firefox.exe")},
	)
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
