package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func descriptors() []Descriptor {
	return []Descriptor{
		newDescriptor("Firefox", KindFirefox, "/usr/bin/firefox"),
		newDescriptor("Brave", KindBrave, "/usr/bin/brave-browser"),
		newDescriptor("Chromium", KindChromium, "/usr/bin/chromium"),
		newDescriptor("Microsoft Edge", KindEdge, "/usr/bin/microsoft-edge"),
		newDescriptor("Google Chrome", KindChrome, "/usr/bin/google-chrome"),
	}
}

func TestPickPriorityOrder(t *testing.T) {
	list := descriptors()

	got := Pick(list, "")
	if assert.NotNil(t, got) {
		assert.Equal(t, KindChrome, got.Kind, "chrome wins the fallback order")
	}

	// Without chrome, edge is next, then chromium, then brave.
	got = Pick(list[:4], "")
	if assert.NotNil(t, got) {
		assert.Equal(t, KindEdge, got.Kind)
	}
	got = Pick(list[:3], "")
	if assert.NotNil(t, got) {
		assert.Equal(t, KindChromium, got.Kind)
	}
	got = Pick(list[:2], "")
	if assert.NotNil(t, got) {
		assert.Equal(t, KindBrave, got.Kind)
	}
}

func TestPickPreferredKind(t *testing.T) {
	list := descriptors()

	got := Pick(list, KindEdge)
	if assert.NotNil(t, got) {
		assert.Equal(t, KindEdge, got.Kind)
	}

	got = Pick(list, KindFirefox)
	if assert.NotNil(t, got) {
		assert.Equal(t, KindFirefox, got.Kind)
		assert.True(t, got.SpeaksBiDi)
	}
}

func TestPickMissingKind(t *testing.T) {
	list := descriptors()[:2] // firefox + brave only
	assert.Nil(t, Pick(list, KindEdge))
}

func TestPickFirefoxNeverWinsFallback(t *testing.T) {
	list := []Descriptor{newDescriptor("Firefox", KindFirefox, "/usr/bin/firefox")}
	assert.Nil(t, Pick(list, ""), "fallback order is CDP-only")
}

func TestPickEmptyList(t *testing.T) {
	assert.Nil(t, Pick(nil, ""))
	assert.Nil(t, Pick(nil, KindChrome))
}

func TestCapabilityFlags(t *testing.T) {
	chrome := newDescriptor("Google Chrome", KindChrome, "/usr/bin/google-chrome")
	assert.True(t, chrome.SpeaksCDP)
	assert.False(t, chrome.SpeaksBiDi)
	assert.Equal(t, EngineChromium, chrome.Engine())

	firefox := newDescriptor("Firefox", KindFirefox, "/usr/bin/firefox")
	assert.False(t, firefox.SpeaksCDP)
	assert.True(t, firefox.SpeaksBiDi)
	assert.Equal(t, EngineFirefox, firefox.Engine())
}

func TestClassifyName(t *testing.T) {
	cases := map[string]Kind{
		"microsoft-edge":       KindEdge,
		"msedge":               KindEdge,
		"chromium-browser":     KindChromium,
		"chromium":             KindChromium,
		"firefox":              KindFirefox,
		"brave-browser":        KindBrave,
		"google-chrome":        KindChrome,
		"google-chrome-stable": KindChrome,
		"chrome":               KindChrome,
	}
	for name, want := range cases {
		assert.Equal(t, want, ClassifyName(name), "name %q", name)
	}
}

func TestDetectNeverFails(t *testing.T) {
	// Detect consults the real filesystem; whatever it finds, it must
	// not panic and must only report capable browsers.
	for _, d := range Detect() {
		assert.NotEmpty(t, d.Path)
		assert.True(t, d.SpeaksCDP || d.SpeaksBiDi)
	}
}
