// Package parser implements the line parser: pipe split respecting
// quotes, background detection, per-segment tokenization, and
// redirection extraction.
package parser

import (
	"errors"
	"fmt"
	"strings"

	shlex "github.com/anmitsu/go-shlex"
)

// Segment is one pipeline stage.
type Segment struct {
	Argv    []string
	Infile  string
	Outfile string
	Append  bool
}

// Pipeline is an ordered sequence of segments plus a background flag.
type Pipeline struct {
	Segments   []Segment
	Background bool
}

// Errors the parser can return.
var (
	ErrUnterminatedQuote  = errors.New("parser: unterminated quote")
	ErrEmptyPipeSegment   = errors.New("parser: empty command in pipeline")
	ErrMissingRedirTarget = errors.New("parser: missing redirection target")
	ErrEmptySegment       = errors.New("parser: empty command")
)

// Parse turns an already-expanded line into a Pipeline. Variable and
// command substitution must have already run; Parse does no
// substitution of its own.
func Parse(line string) (Pipeline, error) {
	line, background := stripBackground(line)

	parts, err := splitOnPipe(line)
	if err != nil {
		return Pipeline{}, err
	}
	if len(parts) == 0 {
		return Pipeline{}, ErrEmptyPipeSegment
	}

	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Pipeline{}, ErrEmptyPipeSegment
		}

		seg, err := parseSegment(part)
		if err != nil {
			return Pipeline{}, err
		}
		if len(seg.Argv) == 0 {
			return Pipeline{}, ErrEmptySegment
		}
		segments = append(segments, seg)
	}

	return Pipeline{Segments: segments, Background: background}, nil
}

// stripBackground detects and removes a trailing '&' that isn't inside a
// quoted region.
func stripBackground(line string) (string, bool) {
	inSingle, inDouble := false, false
	lastNonSpace := -1

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		}
		if c != ' ' && c != '\t' {
			lastNonSpace = i
		}
	}

	if lastNonSpace < 0 {
		return line, false
	}
	if inSingle || inDouble {
		// Unterminated quote at the point we'd check for '&'; let the
		// tokenizer below report the real error.
		return line, false
	}
	if line[lastNonSpace] != '&' {
		return line, false
	}

	// Confirm the '&' itself isn't inside a quoted region by re-scanning
	// up to it.
	inSingle, inDouble = false, false
	for i := 0; i < lastNonSpace; i++ {
		c := line[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		}
	}
	if inSingle || inDouble {
		return line, false
	}

	return strings.TrimRight(line[:lastNonSpace], " \t"), true
}

// splitOnPipe splits on '|' outside single/double quotes.
func splitOnPipe(line string) ([]string, error) {
	var parts []string
	var cur strings.Builder
	inSingle, inDouble := false, false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			cur.WriteByte(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			cur.WriteByte(c)
		case c == '|' && !inSingle && !inDouble:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())

	// Leniently accept unterminated quotes at this stage; the per-segment
	// tokenizer below is where the real error surfaces, since shlex itself
	// errors hard on an unterminated quote.
	return parts, nil
}

// parseSegment tokenizes one pipe stage and extracts redirections from it.
func parseSegment(part string) (Segment, error) {
	tokens, err := tokenize(part)
	if err != nil {
		return Segment{}, err
	}
	return extractRedirections(tokens)
}

// tokenize splits a segment into words using the same quote semantics as
// the expander: single quotes literal, double quotes allow embedded
// backslash escapes, unquoted whitespace separates words. This reuses
// go-shlex's quote-aware field splitter (the same library
// josephlewis42-honeyssh/core/shell.go tokenizes with) rather than
// hand-rolling a second quoting implementation that could drift from
// the expander's rules.
func tokenize(part string) ([]string, error) {
	tokens, err := shlex.Split(part, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnterminatedQuote, err)
	}
	return tokens, nil
}

// extractRedirections recognizes <, >, >> in attached (">file") or
// detached ("> file") form, removing both operator and target from argv.
// A token that starts with anything else, such as "2>file", stays a word.
// Last-wins when the same kind of redirection appears more than once.
func extractRedirections(tokens []string) (Segment, error) {
	var seg Segment

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		op, attachedTarget, ok := splitRedirOperator(tok)
		if !ok {
			seg.Argv = append(seg.Argv, tok)
			continue
		}

		target := attachedTarget
		if target == "" {
			i++
			if i >= len(tokens) {
				return Segment{}, ErrMissingRedirTarget
			}
			target = tokens[i]
		}

		switch op {
		case "<":
			seg.Infile = target
		case ">":
			seg.Outfile = target
			seg.Append = false
		case ">>":
			seg.Outfile = target
			seg.Append = true
		}
	}

	return seg, nil
}

// splitRedirOperator recognizes a token that begins with a redirection
// operator and returns the operator, any attached target text (may be
// empty meaning "detached, consume next token"), and whether it matched.
func splitRedirOperator(tok string) (op string, target string, ok bool) {
	switch {
	case strings.HasPrefix(tok, ">>"):
		return ">>", tok[2:], true
	case strings.HasPrefix(tok, ">"):
		return ">", tok[1:], true
	case strings.HasPrefix(tok, "<"):
		return "<", tok[1:], true
	default:
		return "", "", false
	}
}
