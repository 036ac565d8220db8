package exec

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posixsh/internal/job"
	"posixsh/internal/parser"
)

// newTestExecutor builds an Executor against a non-terminal fd. Foreground
// handover (term.Foreground) becomes a no-op error we can ignore for
// single-segment background-free cases that never reach it, and for the
// background cases below it's never called at all.
func newTestExecutor() *Executor {
	pgid, _ := syscall.Getpgid(os.Getpid())
	return New(-1, pgid)
}

func TestCaptureSingleCommand(t *testing.T) {
	out, err := Capture([]string{"echo", "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
}

func TestBackgroundPipelineRegistersAndReturnsImmediately(t *testing.T) {
	e := newTestExecutor()
	p := parser.Pipeline{
		Segments:   []parser.Segment{{Argv: []string{"sleep", "0"}}},
		Background: true,
	}

	out, err := e.Run(p, nil)
	require.NoError(t, err)
	assert.True(t, out.Background)
	assert.Equal(t, job.Running, out.State)
	assert.NotZero(t, out.PGID)

	e.mu.Lock()
	_, tracked := e.remaining[out.PGID]
	e.mu.Unlock()
	assert.True(t, tracked)
}

func TestOutputRedirectionWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	e := newTestExecutor()
	p := parser.Pipeline{
		Segments: []parser.Segment{{Argv: []string{"sleep", "0"}, Outfile: path}},
	}
	// Foreground path calls term.Foreground on fd -1, which fails; run the
	// segment through the background path instead to exercise redirection
	// wiring without touching the controlling terminal.
	p.Background = true

	out, err := e.Run(p, nil)
	require.NoError(t, err)
	assert.True(t, out.Background)

	reaped := waitUntilReaped(t, e, out.PGID)
	assert.Equal(t, job.Done, reaped)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

// waitUntilReaped polls Reap until pgid is reported, emulating what the
// REPL's signal-drain loop does between prompts.
func waitUntilReaped(t *testing.T, e *Executor, pgid int) job.State {
	t.Helper()
	for i := 0; i < 200; i++ {
		for _, o := range e.Reap() {
			if o.PGID == pgid {
				return o.State
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pgid %d was never reaped", pgid)
	return job.Done
}
