package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromBytes(t *testing.T) {
	c, err := LoadFromBytes([]byte(`
proxy_port: 41837
control_port: 7077
browser: edge
headless: false
no_sandbox: true
workspace: /projects/demo
disable_editor: true
`))
	require.NoError(t, err)

	assert.Equal(t, 41837, c.ProxyPort)
	assert.Equal(t, 7077, c.ControlPort)
	assert.Equal(t, "edge", c.Browser)
	require.NotNil(t, c.Headless)
	assert.False(t, *c.Headless)
	assert.True(t, c.NoSandbox)
	assert.Equal(t, "/projects/demo", c.Workspace)
	assert.True(t, c.DisableEditor)
}

func TestLoadFromBytesExpandsEnv(t *testing.T) {
	t.Setenv("DEMO_WORKSPACE", "/projects/from-env")

	c, err := LoadFromBytes([]byte("workspace: $DEMO_WORKSPACE\n"))
	require.NoError(t, err)
	assert.Equal(t, "/projects/from-env", c.Workspace)
}

func TestLoadFromBytesRejectsBadYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("proxy_port: [not an int\n"))
	assert.Error(t, err)
}

func TestResolveDefaults(t *testing.T) {
	r := Config{}.Resolve()

	assert.True(t, r.Headless, "headless defaults to true")
	assert.Zero(t, r.ProxyPort)
	assert.Zero(t, r.ControlPort)
	assert.False(t, r.DisableEditor)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, r.Workspace, "workspace defaults to cwd")
}

func TestResolveHeadlessOverride(t *testing.T) {
	f := false
	r := Config{Headless: &f}.Resolve()
	assert.False(t, r.Headless)
}

func TestResolveEnvOverrides(t *testing.T) {
	t.Setenv("BROWSERPILOT_PROXY_PORT", "41900")
	t.Setenv("BROWSERPILOT_CONTROL_PORT", "not-a-number")

	r := Config{ProxyPort: 1, ControlPort: 2}.Resolve()
	assert.Equal(t, 41900, r.ProxyPort, "env override wins")
	assert.Equal(t, 2, r.ControlPort, "unparseable env values are ignored")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser: brave\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "brave", c.Browser)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDefaultWithEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explicit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("proxy_port: 5150\n"), 0o644))
	t.Setenv("BROWSERPILOT_CONFIG", path)

	c, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, 5150, c.ProxyPort)
}
