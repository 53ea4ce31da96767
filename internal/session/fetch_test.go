package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginOf(t *testing.T) {
	cases := map[string]string{
		"https://a.example/x/y?q=1":   "https://a.example",
		"https://A.Example/x":         "https://a.example",
		"HTTPS://a.example":           "https://a.example",
		"https://a.example:443/x":     "https://a.example",
		"http://a.example:80/":        "http://a.example",
		"http://a.example:8080/":      "http://a.example:8080",
		"https://a.example:8443/path": "https://a.example:8443",
	}
	for raw, want := range cases {
		got, err := OriginOf(raw)
		require.NoError(t, err, "url %q", raw)
		assert.Equal(t, want, got, "url %q", raw)
	}
}

func TestOriginOfRejectsRelative(t *testing.T) {
	for _, raw := range []string{"/just/a/path", "no-scheme.example/x", ""} {
		_, err := OriginOf(raw)
		assert.Error(t, err, "url %q", raw)
	}
}

func TestSameOrigin(t *testing.T) {
	assert.True(t, SameOrigin("https://a.example", "https://a.example:443"))
	assert.True(t, SameOrigin("https://a.example/x", "https://A.EXAMPLE/"))
	assert.False(t, SameOrigin("https://a.example", "https://b.example"))
	assert.False(t, SameOrigin("http://a.example", "https://a.example"))
	assert.False(t, SameOrigin("https://a.example:8443", "https://a.example"))
}
