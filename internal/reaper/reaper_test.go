package reaper

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenDeliveredOnChildExit(t *testing.T) {
	r := New()
	defer r.Stop()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	defer cmd.Wait()

	select {
	case <-r.C():
	case <-time.After(2 * time.Second):
		t.Fatal("no token received after child exit")
	}
}

func TestCoalescedSignalsYieldOneToken(t *testing.T) {
	r := New()
	defer r.Stop()

	for i := 0; i < 3; i++ {
		cmd := exec.Command("true")
		require.NoError(t, cmd.Start())
		require.NoError(t, cmd.Wait())
	}

	select {
	case <-r.C():
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one coalesced token")
	}

	select {
	case <-r.C():
		t.Fatal("expected tokens to coalesce into one pending receive")
	default:
	}
}
