// Package builtin implements cd, exit, history, jobs, fg, bg, kill, and
// echo. Built-ins never fork to get redirected or piped I/O; the shell
// instead plumbs an io.Writer straight into Dispatch, so a single process
// always runs the built-in and no fd juggling for a forked case is ever
// needed. See DESIGN.md for why this is safe.
package builtin

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	getopt "github.com/pborman/getopt/v2"
	"golang.org/x/sys/unix"

	"posixsh/internal/history"
	"posixsh/internal/job"
)

// jobStateColor mirrors josephlewis42-honeyssh/commands/base.go's
// ColorBoldGreen/ColorBoldRed palette: running jobs in green, stopped ones
// in yellow, done ones in dim grey since they're about to be dropped from
// the table anyway.
var jobStateColor = map[job.State]*color.Color{
	job.Running: color.New(color.FgGreen, color.Bold),
	job.Stopped: color.New(color.FgYellow, color.Bold),
	job.Done:    color.New(color.FgHiBlack),
}

// Signaler sends a signal to every process in a process group, backed by
// exec.Signal.
type Signaler func(pgid int, sig unix.Signal) error

// Env carries everything a built-in needs, supplied by the shell
// orchestrator on every Dispatch call.
type Env struct {
	Jobs    *job.Table
	History *history.Store
	Signal  Signaler
	Getenv  func(name string) string
	Chdir   func(dir string) error
	Stdout  io.Writer
	Stderr  io.Writer
}

// Result reports what the shell should do after a built-in runs.
type Result struct {
	Exit    bool // the exit built-in was invoked
	Code    int  // exit code, meaningful only when Exit is true
	Resumed *job.Job // fg put this job in the foreground; shell must now wait on it
}

// Names lists every recognized built-in name.
var Names = map[string]bool{
	"cd": true, "exit": true, "history": true, "jobs": true,
	"fg": true, "bg": true, "kill": true, "echo": true,
}

// Dispatch runs argv[0] if it names a built-in. The second return value is
// false when argv[0] isn't a built-in at all, meaning the shell should
// treat the line as an external command instead.
func Dispatch(env *Env, argv []string) (Result, bool) {
	if len(argv) == 0 || !Names[argv[0]] {
		return Result{}, false
	}

	switch argv[0] {
	case "cd":
		return cdBuiltin(env, argv), true
	case "exit":
		return exitBuiltin(argv), true
	case "history":
		return historyBuiltin(env), true
	case "jobs":
		return jobsBuiltin(env), true
	case "fg":
		return fgBuiltin(env, argv), true
	case "bg":
		return bgBuiltin(env, argv), true
	case "kill":
		return killBuiltin(env, argv), true
	case "echo":
		return echoBuiltin(env, argv), true
	}
	return Result{}, true
}

func cdBuiltin(env *Env, argv []string) Result {
	dir := ""
	if len(argv) > 1 {
		dir = argv[1]
	} else {
		dir = env.Getenv("HOME")
	}
	if dir == "" {
		fmt.Fprintln(env.Stderr, "cd: HOME not set")
		return Result{}
	}
	if err := env.Chdir(dir); err != nil {
		fmt.Fprintf(env.Stderr, "cd: %s: %v\n", dir, err)
	}
	return Result{}
}

func exitBuiltin(argv []string) Result {
	code := 0
	if len(argv) > 1 {
		if n, err := strconv.Atoi(argv[1]); err == nil {
			code = n
		}
	}
	return Result{Exit: true, Code: code}
}

func historyBuiltin(env *Env) Result {
	for _, e := range env.History.List() {
		fmt.Fprintf(env.Stdout, "%5d  %s\n", e.Index, e.Line)
	}
	return Result{}
}

func jobsBuiltin(env *Env) Result {
	for _, j := range env.Jobs.List() {
		state := j.State.String()
		if c, ok := jobStateColor[j.State]; ok {
			state = c.Sprintf("%-8s", state)
		} else {
			state = fmt.Sprintf("%-8s", state)
		}
		fmt.Fprintf(env.Stdout, "[%d]  %s %s\n", j.ID, state, j.Cmdline)
	}
	return Result{}
}

// resolveJobArg parses "%3", "3", or no argument (meaning most recent).
func resolveJobArg(env *Env, argv []string) (job.Job, error) {
	if len(argv) < 2 {
		return env.Jobs.MostRecent()
	}
	arg := strings.TrimPrefix(argv[1], "%")
	id, err := strconv.Atoi(arg)
	if err != nil {
		return job.Job{}, fmt.Errorf("bad job id %q", argv[1])
	}
	return env.Jobs.ByID(id)
}

func fgBuiltin(env *Env, argv []string) Result {
	j, err := resolveJobArg(env, argv)
	if err != nil {
		fmt.Fprintf(env.Stderr, "fg: %v\n", err)
		return Result{}
	}
	fmt.Fprintln(env.Stdout, j.Cmdline)
	if err := env.Signal(j.PGID, unix.SIGCONT); err != nil {
		fmt.Fprintf(env.Stderr, "fg: %v\n", err)
		return Result{}
	}
	env.Jobs.UpdateState(j.PGID, job.Running)
	return Result{Resumed: &j}
}

func bgBuiltin(env *Env, argv []string) Result {
	j, err := resolveJobArg(env, argv)
	if err != nil {
		fmt.Fprintf(env.Stderr, "bg: %v\n", err)
		return Result{}
	}
	if err := env.Signal(j.PGID, unix.SIGCONT); err != nil {
		fmt.Fprintf(env.Stderr, "bg: %v\n", err)
		return Result{}
	}
	env.Jobs.UpdateState(j.PGID, job.Running)
	fmt.Fprintf(env.Stdout, "[%d] %d\n", j.ID, j.PGID)
	return Result{}
}

// signalsByName covers the names original_source/src/main1.c's kill
// builtin accepts, with and without the SIG prefix.
var signalsByName = map[string]unix.Signal{
	"HUP": unix.SIGHUP, "INT": unix.SIGINT, "QUIT": unix.SIGQUIT,
	"KILL": unix.SIGKILL, "TERM": unix.SIGTERM, "STOP": unix.SIGSTOP,
	"CONT": unix.SIGCONT, "TSTP": unix.SIGTSTP,
}

func resolveSignal(spec string) (unix.Signal, error) {
	spec = strings.TrimPrefix(strings.ToUpper(spec), "SIG")
	if sig, ok := signalsByName[spec]; ok {
		return sig, nil
	}
	if n, err := strconv.Atoi(spec); err == nil {
		return unix.Signal(n), nil
	}
	return 0, fmt.Errorf("unknown signal %q", spec)
}

func killBuiltin(env *Env, argv []string) Result {
	rest := argv[1:]
	spec := "TERM"

	// "-SIG" or "-9" shorthand, e.g. "kill -KILL %1", as real kill accepts
	// it. The explicit "-s SIG"/"--signal SIG" form below is parsed with
	// getopt/v2 since it's a conventional long/short flag pair.
	if len(rest) > 0 && strings.HasPrefix(rest[0], "-") && rest[0] != "-s" && rest[0] != "--signal" {
		spec = strings.TrimPrefix(rest[0], "-")
		rest = rest[1:]
	} else {
		opts := getopt.New()
		sig := opts.StringLong("signal", 's', "TERM", "signal name or number")
		if err := opts.Getopt(argv, nil); err != nil {
			fmt.Fprintf(env.Stderr, "kill: %v\n", err)
			return Result{}
		}
		spec = *sig
		rest = opts.Args()
	}

	args := rest
	if len(args) == 0 {
		fmt.Fprintln(env.Stderr, "kill: usage: kill [-SIG] pid|%job ...")
		return Result{}
	}

	signum, err := resolveSignal(spec)
	if err != nil {
		fmt.Fprintf(env.Stderr, "kill: %v\n", err)
		return Result{}
	}

	for _, a := range args {
		pgid, err := resolveTarget(env, a)
		if err != nil {
			fmt.Fprintf(env.Stderr, "kill: %v\n", err)
			continue
		}
		if err := env.Signal(pgid, signum); err != nil {
			fmt.Fprintf(env.Stderr, "kill: (%s): %v\n", a, err)
		}
	}
	return Result{}
}

func resolveTarget(env *Env, arg string) (int, error) {
	if strings.HasPrefix(arg, "%") {
		id, err := strconv.Atoi(arg[1:])
		if err != nil {
			return 0, fmt.Errorf("bad job id %q", arg)
		}
		j, err := env.Jobs.ByID(id)
		if err != nil {
			return 0, err
		}
		return j.PGID, nil
	}
	pid, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("bad pid %q", arg)
	}
	return pid, nil
}

// unescapeReplace covers the backslash escapes echo's -e flag interprets:
// \n, \t and \\ only; the fuller
// octal/hex table josephlewis42-honeyssh/commands/echo.go supports is
// overkill for a shell built-in rather than a standalone coreutil.
var unescapeReplace = strings.NewReplacer(
	`\n`, "\n",
	`\t`, "\t",
	`\\`, `\`,
)

func echoBuiltin(env *Env, argv []string) Result {
	opts := getopt.New()
	escaped := opts.Bool('e', "interpret backslash escapes")
	_ = opts.Getopt(argv, nil)

	words := opts.Args()
	for i, w := range words {
		if i > 0 {
			fmt.Fprint(env.Stdout, " ")
		}
		if *escaped {
			w = unescapeReplace.Replace(w)
		}
		fmt.Fprint(env.Stdout, w)
	}
	fmt.Fprintln(env.Stdout)
	return Result{}
}
