package siesta

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// tokens walks whitespace-separated fields of a line-oriented text file.
// SIESTA wraps long records over several lines, so most readers only care
// about the field sequence; line boundaries are kept for the trailing
// free-text sections some files carry.
type tokens struct {
	name  string
	lines []string
	line  int
	field int
	cur   []string
}

func newTokens(name string, r io.Reader) (*tokens, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	t := &tokens{name: name, lines: lines, line: -1}
	return t, nil
}

func (t *tokens) next() (string, error) {
	for t.field >= len(t.cur) {
		t.line++
		if t.line >= len(t.lines) {
			return "", fmt.Errorf("%s: unexpected end of file", t.name)
		}
		t.cur = strings.Fields(t.lines[t.line])
		t.field = 0
	}
	s := t.cur[t.field]
	t.field++
	return s, nil
}

func (t *tokens) float() (float64, error) {
	s, err := t.next()
	if err != nil {
		return 0, err
	}
	v, err := parseFloat(s)
	if err != nil {
		return 0, fmt.Errorf("%s:%d: %w", t.name, t.line+1, err)
	}
	return v, nil
}

func (t *tokens) int() (int, error) {
	s, err := t.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s:%d: %q is not an integer", t.name, t.line+1, s)
	}
	return v, nil
}

func (t *tokens) floats(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := t.float()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// remainingLines returns the lines after the current one. Fields left on
// the current line are discarded.
func (t *tokens) remainingLines() []string {
	if t.line+1 >= len(t.lines) {
		return nil
	}
	return t.lines[t.line+1:]
}

// parseFloat also accepts Fortran double-precision exponents (1.0D-03).
func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return v, nil
	}
	if strings.ContainsAny(s, "dD") {
		if v, err2 := strconv.ParseFloat(strings.NewReplacer("d", "e", "D", "e").Replace(s), 64); err2 == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%q is not a number", s)
}
