package main

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserpilot/internal/rendezvous"
)

func TestSubstituteArgs(t *testing.T) {
	args := []string{
		"playwright",
		"--cdp-port={cdp_port}",
		"--endpoint={cdp_endpoint}",
		"{cdp_port}:{cdp_port}",
		"untouched",
	}

	got := substituteArgs(args, 41837)

	assert.Equal(t, []string{
		"playwright",
		"--cdp-port=41837",
		"--endpoint=http://localhost:41837",
		"41837:41837",
		"untouched",
	}, got)
}

func TestAwaitRendezvousFindsRecord(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("TMPDIR redirection")
	}
	t.Setenv("TMPDIR", t.TempDir())

	rendezvous.Write(rendezvous.Record{Port: 41837, PID: 1234})

	rec, ok := awaitRendezvous(time.Second)
	require.True(t, ok)
	assert.Equal(t, 41837, rec.Port)
}

func TestAwaitRendezvousTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("TMPDIR redirection")
	}
	t.Setenv("TMPDIR", t.TempDir())

	start := time.Now()
	_, ok := awaitRendezvous(400 * time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAwaitRendezvousPicksUpLateWrite(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("TMPDIR redirection")
	}
	t.Setenv("TMPDIR", t.TempDir())

	go func() {
		time.Sleep(300 * time.Millisecond)
		rendezvous.Write(rendezvous.Record{Port: 52100, PID: 99})
	}()

	rec, ok := awaitRendezvous(5 * time.Second)
	require.True(t, ok)
	assert.Equal(t, 52100, rec.Port)
}
