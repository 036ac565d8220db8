package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnterLeaveOnNonTerminalIsIdempotent(t *testing.T) {
	// fd -1 is never a terminal, so IsTerminal and the termios ioctls
	// behave predictably without needing a real pty in the test
	// environment.
	r := New(-1)
	assert.False(t, r.IsTerminal())

	// Enter/Leave on a bad fd should not panic; IoctlGetTermios will
	// error, and Raw must surface that rather than silently succeeding.
	err := r.Enter()
	assert.Error(t, err)

	// Leave without a saved state is always a no-op.
	assert.NoError(t, r.Leave())
}
