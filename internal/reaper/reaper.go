// Package reaper implements a channel-based self-pipe for SIGCHLD: a
// goroutine fed by signal.Notify posts a token per signal; all actual
// job-table mutation happens on the receiving side, in a normal
// (non-signal) context.
package reaper

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Reaper turns SIGCHLD delivery into channel tokens. It never touches a
// job table itself: original_source/src/main1.c's sigchld_handler is
// restricted to async-signal-safe field writes, and Go has no equivalent
// restricted-handler primitive. Here the "handler" goroutine does only a
// channel send; the REPL does the actual reaping between prompts, where
// full language access (allocation, logging, the job table) is safe.
type Reaper struct {
	sigCh  chan os.Signal
	tokens chan struct{}
	done   chan struct{}
}

// New installs the SIGCHLD handler and starts relaying it to C.
func New() *Reaper {
	r := &Reaper{
		sigCh:  make(chan os.Signal, 1),
		tokens: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	signal.Notify(r.sigCh, unix.SIGCHLD)
	go r.relay()
	return r
}

func (r *Reaper) relay() {
	for {
		select {
		case <-r.sigCh:
			select {
			case r.tokens <- struct{}{}:
			default:
				// A token is already pending; the REPL hasn't drained it
				// yet, and one drain reaps every exited child regardless
				// of how many SIGCHLDs coalesced since the last one.
			}
		case <-r.done:
			return
		}
	}
}

// C returns the channel the REPL selects on between prompts. A receive
// means "call exec.Executor.Reap and report what it finds."
func (r *Reaper) C() <-chan struct{} {
	return r.tokens
}

// Stop releases the signal handler and the relay goroutine.
func (r *Reaper) Stop() {
	signal.Stop(r.sigCh)
	close(r.done)
}
