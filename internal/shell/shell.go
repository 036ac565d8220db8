// Package shell wires the editor, history store, expander, parser,
// executor, job table, and signal loop into a REPL, grounded on
// Armaan1620-myshell/internal/repl/repl.go's main loop and SIGINT
// forwarding goroutine.
package shell

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"posixsh/internal/builtin"
	"posixsh/internal/editor"
	"posixsh/internal/exec"
	"posixsh/internal/expand"
	"posixsh/internal/history"
	"posixsh/internal/job"
	"posixsh/internal/parser"
	"posixsh/internal/reaper"
	"posixsh/internal/term"
)

// Config holds the session-level settings a caller (normally
// cmd/posixsh/main.go) may want to override.
type Config struct {
	Prompt          string
	HistoryPath     string
	HistoryCapacity int
	JobCapacity     int
	Stdin           io.Reader
	Stdout          io.Writer
	Stderr          io.Writer
	Logger          *log.Logger
}

// DefaultConfig fills in the defaults: history at $HOME/.myshell_history,
// the standard descriptors, and a stderr logger. Logging stays on the
// standard library's log package deliberately, matching the rest of the
// stack's own logging convention rather than pulling in a third-party
// structured logger for session diagnostics this small.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	histPath := ""
	if home != "" {
		histPath = filepath.Join(home, ".myshell_history")
	}
	return Config{
		Prompt:          "posixsh",
		HistoryPath:     histPath,
		HistoryCapacity: history.DefaultCapacity,
		JobCapacity:     job.DefaultCapacity,
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		Logger:          log.New(os.Stderr, "posixsh: ", 0),
	}
}

// Shell is one interactive session.
type Shell struct {
	cfg Config

	termCtl   *term.Raw
	editor    *editor.Editor
	hist      *history.Store
	jobs      *job.Table
	executor  *exec.Executor
	reap      *reaper.Reaper
	shellPgid int

	fgPgid chan int // current foreground pgid, 0 if none; see forwardSIGINT
}

// New constructs a Shell. It loads history from disk but does not yet
// touch the terminal; call Run to start the session.
func New(cfg Config) (*Shell, error) {
	hist := history.New(cfg.HistoryPath, cfg.HistoryCapacity)
	if err := hist.Load(); err != nil {
		return nil, fmt.Errorf("shell: load history: %w", err)
	}

	shellPgid, err := unix.Getpgid(0)
	if err != nil {
		return nil, fmt.Errorf("shell: getpgid: %w", err)
	}

	fd := term.StdinFd()
	s := &Shell{
		cfg:       cfg,
		termCtl:   term.New(fd),
		hist:      hist,
		jobs:      job.New(cfg.JobCapacity),
		executor:  exec.New(fd, shellPgid),
		shellPgid: shellPgid,
		fgPgid:    make(chan int, 1),
	}
	s.fgPgid <- 0
	s.editor = editor.New(cfg.Stdin, cfg.Stdout, hist)
	return s, nil
}

// Run enters raw mode, starts the signal plumbing, and runs the REPL
// until EOF or the exit built-in. It restores terminal state on every
// return path.
func (s *Shell) Run() int {
	if err := s.termCtl.Enter(); err != nil {
		fmt.Fprintln(s.cfg.Stderr, err)
		return 1
	}
	defer s.termCtl.Leave()

	term.IgnoreJobControlSignals()
	s.reap = reaper.New()
	defer s.reap.Stop()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, unix.SIGINT)
	defer signal.Stop(sigint)
	go s.forwardSIGINT(sigint)

	return s.loop()
}

// forwardSIGINT mirrors Armaan1620-myshell/internal/repl/repl.go's
// goroutine: SIGINT goes to the foreground job's process group if one is
// running, and is otherwise ignored (the REPL prints a fresh prompt on
// its own once the editor returns control).
func (s *Shell) forwardSIGINT(sigint <-chan os.Signal) {
	for range sigint {
		pgid := <-s.fgPgid
		s.fgPgid <- pgid
		if pgid > 0 {
			_ = exec.Signal(pgid, unix.SIGINT)
		}
	}
}

func (s *Shell) setForegroundPgid(pgid int) {
	<-s.fgPgid
	s.fgPgid <- pgid
}

func (s *Shell) loop() int {
	for {
		s.reportReaped()

		line, err := s.editor.ReadLine(s.promptString())
		if errors.Is(err, io.EOF) {
			return 0
		}
		if errors.Is(err, editor.ErrInterrupted) {
			continue
		}
		if err != nil {
			s.cfg.Logger.Println(err)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.hist.Append(line); err != nil {
			s.cfg.Logger.Println(err)
		}

		if code, exit := s.execute(line); exit {
			return code
		}
	}
}

// promptString renders the "~"-shortened current-directory prompt.
func (s *Shell) promptString() string {
	cwd, err := os.Getwd()
	if err != nil {
		return s.cfg.Prompt + "> "
	}
	if home, _ := os.UserHomeDir(); home != "" {
		if cwd == home {
			cwd = "~"
		} else if strings.HasPrefix(cwd, home+string(os.PathSeparator)) {
			cwd = "~" + cwd[len(home):]
		}
	}
	return fmt.Sprintf("%s:%s$ ", s.cfg.Prompt, cwd)
}

// execute expands, parses, and runs one line. The returned bool is true
// when the shell should exit, in which case the int is the exit code.
func (s *Shell) execute(line string) (int, bool) {
	expanded := expand.Expand(line, os.Getenv, exec.Capture)

	pipeline, err := parser.Parse(expanded)
	if err != nil {
		fmt.Fprintln(s.cfg.Stderr, err)
		return 0, false
	}

	if len(pipeline.Segments) == 1 {
		if code, exit, handled := s.runMaybeBuiltin(pipeline, line); handled {
			return code, exit
		}
	} else if hasBuiltinSegment(pipeline) {
		fmt.Fprintln(s.cfg.Stderr, "posixsh: built-ins cannot appear inside a pipeline")
		return 0, false
	}

	s.runPipeline(pipeline, line)
	return 0, false
}

func hasBuiltinSegment(p parser.Pipeline) bool {
	for _, seg := range p.Segments {
		if len(seg.Argv) > 0 && builtin.Names[seg.Argv[0]] {
			return true
		}
	}
	return false
}

// runMaybeBuiltin handles the single-segment case: a built-in runs
// in-process, with its own Outfile opened directly instead of forking,
// per the redesign recorded in DESIGN.md.
func (s *Shell) runMaybeBuiltin(p parser.Pipeline, rawLine string) (code int, exit bool, handled bool) {
	seg := p.Segments[0]
	if len(seg.Argv) == 0 || !builtin.Names[seg.Argv[0]] {
		return 0, false, false
	}

	stdout := s.cfg.Stdout
	if seg.Outfile != "" {
		flags := os.O_CREATE | os.O_WRONLY
		if seg.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(seg.Outfile, flags, 0644)
		if err != nil {
			fmt.Fprintf(s.cfg.Stderr, "posixsh: %s: %v\n", seg.Outfile, err)
			return 0, false, true
		}
		defer f.Close()
		stdout = f
	}

	env := &builtin.Env{
		Jobs:    s.jobs,
		History: s.hist,
		Signal:  exec.Signal,
		Getenv:  os.Getenv,
		Chdir:   os.Chdir,
		Stdout:  stdout,
		Stderr:  s.cfg.Stderr,
	}

	result, ok := builtin.Dispatch(env, seg.Argv)
	if !ok {
		return 0, false, false
	}

	if result.Resumed != nil {
		s.waitResumedForeground(*result.Resumed)
		return 0, false, true
	}
	if result.Exit {
		return result.Code, true, true
	}
	return 0, false, true
}

// waitResumedForeground blocks on a job fg just resumed with SIGCONT, via
// the same WaitForeground the executor uses for a freshly launched job.
func (s *Shell) waitResumedForeground(j job.Job) {
	s.setForegroundPgid(j.PGID)
	defer s.setForegroundPgid(0)

	state, err := s.executor.WaitForeground(j.PGID)
	if err != nil {
		s.cfg.Logger.Println(err)
		return
	}
	s.jobs.UpdateState(j.PGID, state)
	if state == job.Done {
		s.jobs.Remove(j.ID)
	}
}

func (s *Shell) runPipeline(p parser.Pipeline, rawLine string) {
	onLaunch := func(pgid int) {
		if !p.Background {
			s.setForegroundPgid(pgid)
		}
	}
	out, err := s.executor.Run(p, onLaunch)
	if !p.Background {
		s.setForegroundPgid(0)
	}
	if err != nil {
		fmt.Fprintln(s.cfg.Stderr, err)
		return
	}

	id, addErr := s.jobs.Add(out.PGID, rawLine, out.State)
	if addErr != nil {
		s.cfg.Logger.Println(addErr)
		return
	}

	switch {
	case out.Background:
		fmt.Fprintf(s.cfg.Stdout, "[%d] %d\n", id, out.PGID)
	case out.State == job.Stopped:
		fmt.Fprintf(s.cfg.Stdout, "[%d]  Stopped                 %s\n", id, rawLine)
	case out.State == job.Done:
		s.jobs.Remove(id)
	}
}

// reportReaped prints notices for background jobs the signal loop
// collected since the last prompt, then drops the finished ones from the
// table.
func (s *Shell) reportReaped() {
	select {
	case <-s.reap.C():
	default:
		return
	}

	for _, outcome := range s.executor.Reap() {
		s.jobs.UpdateState(outcome.PGID, outcome.State)
	}

	for _, j := range s.jobs.ReapDone() {
		fmt.Fprintf(s.cfg.Stdout, "[%d]  Done                    %s\n", j.ID, j.Cmdline)
	}
}
