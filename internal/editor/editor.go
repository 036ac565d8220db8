// Package editor implements a byte-at-a-time raw-mode line editor with
// cursor movement, insert/delete, and history recall, modeled on
// original_source/src/main1.c's read_line and on
// Kristina-Pianykh-go-shell's channel-based readInput loop.
package editor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrInterrupted is returned when the user presses Ctrl-C mid-line.
var ErrInterrupted = errors.New("editor: interrupted")

// History is the subset of history.Store the editor needs for Up/Down
// recall, kept narrow so editor doesn't import the concrete store.
type History interface {
	Len() int
	At(i int) (string, bool)
}

const (
	ctrlC     = 3
	ctrlD     = 4
	tab       = 9
	lf        = 10
	cr        = 13
	backspace = 8
	del       = 127
	escape    = 27
)

// Editor reads one line at a time from r, echoing to w as it goes.
type Editor struct {
	r       *bufio.Reader
	w       io.Writer
	history History
}

// New creates an Editor. r must be a raw-mode terminal fd wrapped as a
// byte source; w is where the editor echoes keystrokes and redraws.
func New(r io.Reader, w io.Writer, h History) *Editor {
	return &Editor{r: bufio.NewReader(r), w: w, history: h}
}

// ReadLine reads and echoes one line, returning it without the trailing
// newline. io.EOF is returned verbatim on end of input (e.g. Ctrl-D on an
// empty line); ErrInterrupted is returned on Ctrl-C.
func (e *Editor) ReadLine(prompt string) (string, error) {
	fmt.Fprint(e.w, prompt)

	buf := []rune{}
	pos := 0
	historyIndex := e.history.Len()

	redraw := func() {
		fmt.Fprint(e.w, "\x1b[2K\r")
		fmt.Fprint(e.w, prompt)
		fmt.Fprint(e.w, string(buf))
		if pos < len(buf) {
			fmt.Fprintf(e.w, "\x1b[%dD", len(buf)-pos)
		}
	}

	for {
		b, err := e.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) == 0 {
				return "", io.EOF
			}
			if errors.Is(err, io.EOF) {
				return string(buf), nil
			}
			return "", err
		}

		switch b {
		case ctrlC:
			fmt.Fprint(e.w, "^C\r\n")
			return "", ErrInterrupted

		case ctrlD:
			// With ICANON off the terminal delivers Ctrl-D as a plain byte
			// instead of a read EOF; on an empty line it ends input.
			if len(buf) == 0 {
				return "", io.EOF
			}

		case cr, lf:
			fmt.Fprint(e.w, "\r\n")
			return string(buf), nil

		case backspace, del:
			if pos > 0 {
				buf = append(buf[:pos-1], buf[pos:]...)
				pos--
				redraw()
			}

		case tab:
			// Completion is out of scope; a bare tab inserts nothing and
			// the line stays as-is, matching a POSIX terminal's default
			// disposition for an unbound key rather than ringing a bell
			// the user didn't ask for.

		case escape:
			if !e.handleEscape(&buf, &pos, &historyIndex, redraw) {
				continue
			}

		default:
			buf = append(buf[:pos], append([]rune{rune(b)}, buf[pos:]...)...)
			pos++
			redraw()
		}
	}
}

// handleEscape consumes a CSI sequence following ESC. Unrecognized
// suffixes are silently dropped: a shell must never echo garbage back
// for a key it doesn't handle.
func (e *Editor) handleEscape(buf *[]rune, pos *int, historyIndex *int, redraw func()) bool {
	b1, err := e.r.ReadByte()
	if err != nil || b1 != '[' {
		return false
	}
	b2, err := e.r.ReadByte()
	if err != nil {
		return false
	}

	switch b2 {
	case 'A': // up
		e.recallHistory(buf, pos, historyIndex, -1, redraw)
	case 'B': // down
		e.recallHistory(buf, pos, historyIndex, 1, redraw)
	case 'C': // right
		if *pos < len(*buf) {
			*pos++
			redraw()
		}
	case 'D': // left
		if *pos > 0 {
			*pos--
			redraw()
		}
	case '3':
		b3, err := e.r.ReadByte()
		if err != nil || b3 != '~' {
			return false
		}
		if *pos < len(*buf) {
			*buf = append((*buf)[:*pos], (*buf)[*pos+1:]...)
			redraw()
		}
	default:
		// Unrecognized CSI suffix: drop it silently.
	}
	return true
}

func (e *Editor) recallHistory(buf *[]rune, pos *int, historyIndex *int, dir int, redraw func()) {
	n := e.history.Len()
	next := *historyIndex + dir

	switch {
	case dir < 0 && next < 0:
		return
	case dir > 0 && next > n:
		return
	case dir > 0 && next == n:
		*historyIndex = n
		*buf = []rune{}
		*pos = 0
		redraw()
		return
	}

	line, ok := e.history.At(next)
	if !ok {
		return
	}
	*historyIndex = next
	*buf = []rune(line)
	*pos = len(*buf)
	redraw()
}
