// Package term puts the controlling terminal into character-at-a-time mode
// for the line editor and restores it on every exit path.
package term

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Raw owns the terminal's raw-mode lifecycle. Enter is idempotent: calling
// it twice without an intervening Leave keeps the state saved by the
// first call instead of clobbering it with a fresh termios snapshot.
type Raw struct {
	fd int

	mu    sync.Mutex
	saved *unix.Termios
}

// New wraps the terminal backing fd (normally os.Stdin.Fd()).
func New(fd int) *Raw {
	return &Raw{fd: fd}
}

// IsTerminal reports whether fd refers to a terminal.
func (r *Raw) IsTerminal() bool {
	return term.IsTerminal(r.fd)
}

// Enter disables canonical mode and local echo only, leaving ISIG (and
// everything else termios controls) untouched. golang.org/x/term.MakeRaw
// clears ISIG along with ICANON/ECHO, which would stop the kernel from
// turning Ctrl-C/Ctrl-Z/Ctrl-\ into SIGINT/SIGTSTP/SIGQUIT for whichever
// process group currently owns the terminal; a job-control shell needs
// those signals to keep arriving that way for the whole session, not
// just while a line is being edited. Safe to call repeatedly.
func (r *Raw) Enter() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saved != nil {
		return nil
	}

	before, err := unix.IoctlGetTermios(r.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("term: enter raw mode: %w", err)
	}

	raw := *before
	raw.Lflag &^= unix.ECHO | unix.ICANON
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(r.fd, unix.TCSETS, &raw); err != nil {
		return fmt.Errorf("term: enter raw mode: %w", err)
	}

	r.saved = before
	return nil
}

// Leave restores the exact attributes saved by Enter. Safe to call when
// Enter was never called or already undone.
func (r *Raw) Leave() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saved == nil {
		return nil
	}
	err := unix.IoctlSetTermios(r.fd, unix.TCSETS, r.saved)
	r.saved = nil
	if err != nil {
		return fmt.Errorf("term: leave raw mode: %w", err)
	}
	return nil
}

// Size reports the current terminal window dimensions.
func (r *Raw) Size() (width, height int, err error) {
	return term.GetSize(r.fd)
}

// IgnoreJobControlSignals makes the shell immune to SIGTTOU, SIGTTIN,
// SIGTSTP and SIGQUIT. The first three keep the terminal-control
// operations the executor performs on itself (tcsetpgrp while
// backgrounded, etc.) from ever stopping the shell; SIGQUIT matters for a
// different reason: the shell is the terminal's foreground process group
// at every prompt, so a bare Ctrl-\ would otherwise deliver default-
// disposition SIGQUIT straight to the shell and kill the session. SIGINT
// is left alone here; the REPL handles it itself with signal.Notify so it
// can forward it to the foreground job instead of dying.
func IgnoreJobControlSignals() {
	signal.Ignore(unix.SIGTTOU, unix.SIGTTIN, unix.SIGTSTP, unix.SIGQUIT)
}

// Foreground hands the controlling terminal to pgid.
func Foreground(fd int, pgid int) error {
	return unix.IoctlSetInt(fd, unix.TIOCSPGRP, pgid)
}

// ForegroundPgid reports which process group currently owns the terminal.
func ForegroundPgid(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCGPGRP)
}

// StdinFd is a convenience accessor so callers don't sprinkle
// int(os.Stdin.Fd()) everywhere.
func StdinFd() int {
	return int(os.Stdin.Fd())
}
