// Package exec implements the pipeline executor: fork a chain of
// processes sharing one process group, wire pipes and redirections
// between them, and hand the controlling terminal to the group for the
// duration of a foreground job.
package exec

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sys/unix"

	"posixsh/internal/job"
	"posixsh/internal/parser"
	"posixsh/internal/term"
)

// Outcome reports what happened to a launched pipeline.
type Outcome struct {
	PGID       int
	State      job.State
	Background bool
}

// Executor launches pipelines and tracks, per process group, how many of
// its member processes have not yet been reaped. Foreground waits reap
// their own group synchronously; Reap drains background exits reported by
// the signal loop. Both run on the same goroutine (the REPL's), so the two
// kinds of unix.Wait4 call never race each other.
type Executor struct {
	termFd    int
	shellPgid int

	mu        sync.Mutex
	remaining map[int]int // pgid -> member processes not yet reaped
}

// New creates an Executor. termFd is the controlling terminal's file
// descriptor (term.StdinFd()); shellPgid is the shell's own process group,
// reclaimed after every foreground job.
func New(termFd, shellPgid int) *Executor {
	return &Executor{
		termFd:    termFd,
		shellPgid: shellPgid,
		remaining: make(map[int]int),
	}
}

// Run launches p and, for a foreground pipeline, blocks until every member
// exits or one stops. For a background pipeline it registers bookkeeping
// and returns immediately.
// onLaunch, if non-nil, is called with the pipeline's process group id as
// soon as it is known, before any foreground wait begins, so the caller
// can start forwarding SIGINT to it.
func (e *Executor) Run(p parser.Pipeline, onLaunch func(pgid int)) (Outcome, error) {
	n := len(p.Segments)
	cmds := make([]*exec.Cmd, 0, n)
	closers := make([]io.Closer, 0, n*2)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	var pgid int
	var prevReader *os.File

	for i, seg := range p.Segments {
		cmd := exec.Command(seg.Argv[0], seg.Argv[1:]...)

		attr := &unix.SysProcAttr{Setpgid: true}
		if i > 0 {
			attr.Pgid = pgid
		}
		cmd.SysProcAttr = attr

		if err := wireStdin(cmd, i, seg, p.Background, prevReader, &closers); err != nil {
			return Outcome{}, err
		}

		var pipeWriter *os.File
		var nextReader *os.File
		if i < n-1 {
			r, w, err := os.Pipe()
			if err != nil {
				return Outcome{}, fmt.Errorf("exec: pipe: %w", err)
			}
			closers = append(closers, r, w)
			cmd.Stdout = w
			pipeWriter = w
			nextReader = r
		} else if err := wireStdout(cmd, seg, &closers); err != nil {
			return Outcome{}, err
		}

		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			return Outcome{}, fmt.Errorf("exec: %s: %w", seg.Argv[0], err)
		}

		if i == 0 {
			pgid = cmd.Process.Pid
		} else {
			// Redundant with SysProcAttr.Pgid above; closes the race where
			// the child execs before this parent-side call runs, per
			// closer than doing it only once up front.
			_ = unix.Setpgid(cmd.Process.Pid, pgid)
		}

		if pipeWriter != nil {
			pipeWriter.Close()
		}
		if prevReader != nil {
			prevReader.Close()
		}
		prevReader = nextReader

		cmds = append(cmds, cmd)
	}

	e.mu.Lock()
	e.remaining[pgid] = len(cmds)
	e.mu.Unlock()

	if onLaunch != nil {
		onLaunch(pgid)
	}

	if p.Background {
		return Outcome{PGID: pgid, State: job.Running, Background: true}, nil
	}

	state, err := e.WaitForeground(pgid)
	// The process was reaped by hand via unix.Wait4 above, not cmd.Wait;
	// detach exec.Cmd's own bookkeeping so it doesn't try to wait again.
	for _, cmd := range cmds {
		if cmd.Process != nil {
			cmd.Process.Release()
		}
	}
	return Outcome{PGID: pgid, State: state}, err
}

func wireStdin(cmd *exec.Cmd, i int, seg parser.Segment, background bool, prevReader *os.File, closers *[]io.Closer) error {
	switch {
	case i > 0:
		cmd.Stdin = prevReader
	case seg.Infile != "":
		f, err := os.Open(seg.Infile)
		if err != nil {
			return fmt.Errorf("exec: %s: %w", seg.Infile, err)
		}
		*closers = append(*closers, f)
		cmd.Stdin = f
	case background:
		// A background pipeline's first stage must not compete for
		// terminal input, or it raises SIGTTIN.
		f, err := os.Open(os.DevNull)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		*closers = append(*closers, f)
		cmd.Stdin = f
	default:
		cmd.Stdin = os.Stdin
	}
	return nil
}

func wireStdout(cmd *exec.Cmd, seg parser.Segment, closers *[]io.Closer) error {
	if seg.Outfile == "" {
		cmd.Stdout = os.Stdout
		return nil
	}
	flags := os.O_CREATE | os.O_WRONLY
	if seg.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(seg.Outfile, flags, 0644)
	if err != nil {
		return fmt.Errorf("exec: %s: %w", seg.Outfile, err)
	}
	*closers = append(*closers, f)
	cmd.Stdout = f
	return nil
}

// WaitForeground hands the terminal to pgid, waits on its members with
// WUNTRACED, and unconditionally reclaims the terminal on every exit
// path, even on error. It also serves fg: resuming a stopped job
// re-enters this same wait, picking up the member count left over from
// when it stopped.
func (e *Executor) WaitForeground(pgid int) (job.State, error) {
	if err := term.Foreground(e.termFd, pgid); err != nil {
		return job.Done, fmt.Errorf("exec: foreground: %w", err)
	}
	defer term.Foreground(e.termFd, e.shellPgid)

	e.mu.Lock()
	remaining := e.remaining[pgid]
	e.mu.Unlock()

	for remaining > 0 {
		var status unix.WaitStatus
		_, err := unix.Wait4(-pgid, &status, unix.WUNTRACED, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			e.clearRemaining(pgid)
			return job.Done, fmt.Errorf("exec: wait: %w", err)
		}
		if status.Stopped() {
			return job.Stopped, nil
		}
		remaining--
		e.decrementRemaining(pgid)
	}
	e.clearRemaining(pgid)
	return job.Done, nil
}

// Reap drains exited or stopped children without blocking, for background
// jobs whose SIGCHLD the reaper's channel reported. It reports the
// process groups that transitioned to Done or Stopped so the caller can
// update the job table and print the "Done" notice.
func (e *Executor) Reap() []Outcome {
	var out []Outcome
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG|unix.WUNTRACED, nil)
		if err == unix.EINTR {
			continue
		}
		if pid <= 0 || err != nil {
			return out
		}

		pgid, err := unix.Getpgid(pid)
		if err != nil {
			// The group leader already exited; our own bookkeeping below
			// still knows which pgid this pid belonged to only if it was
			// the leader itself, so fall back to treating pid as pgid
			// (true for every pipeline's first member).
			pgid = pid
		}

		if status.Stopped() {
			out = append(out, Outcome{PGID: pgid, State: job.Stopped})
			continue
		}

		if e.decrementRemaining(pgid) {
			out = append(out, Outcome{PGID: pgid, State: job.Done})
		}
	}
}

// decrementRemaining reports true when pgid's last outstanding member has
// just been reaped.
func (e *Executor) decrementRemaining(pgid int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.remaining[pgid]
	if !ok {
		return false
	}
	n--
	if n <= 0 {
		delete(e.remaining, pgid)
		return true
	}
	e.remaining[pgid] = n
	return false
}

func (e *Executor) clearRemaining(pgid int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.remaining, pgid)
}

// Signal sends sig to every process in pgid, used by the REPL to forward
// SIGINT to the foreground job and by the kill builtin.
func Signal(pgid int, sig unix.Signal) error {
	return unix.Kill(-pgid, sig)
}

// Capture runs argv to completion and returns its captured standard
// output, for the expander's command substitution. It never touches the
// controlling terminal: command substitution never becomes the foreground
// job.
func Capture(argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("exec: capture: empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	out, err := cmd.Output()
	return string(out), err
}
