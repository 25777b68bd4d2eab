package calculator

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type entry struct {
	key   string
	value string
	block []string
}

// Input is an ordered FDF document. Keys compare the way SIESTA compares
// them: case-insensitively and ignoring '.', '_' and '-'.
type Input struct {
	entries []entry
	index   map[string]int
}

// NewInput returns an empty document.
func NewInput() *Input {
	return &Input{index: make(map[string]int)}
}

func canonicalKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(key))
}

func (in *Input) put(e entry) {
	k := canonicalKey(e.key)
	if i, ok := in.index[k]; ok {
		in.entries[i] = e
		return
	}
	in.index[k] = len(in.entries)
	in.entries = append(in.entries, e)
}

// Set stores a scalar key. Setting an existing key replaces it in place.
func (in *Input) Set(key string, value any) {
	in.put(entry{key: key, value: formatValue(value)})
}

// SetBlock stores a %block section.
func (in *Input) SetBlock(name string, lines []string) {
	in.put(entry{key: name, block: lines})
}

// Get returns the value of a scalar key.
func (in *Input) Get(key string) (string, bool) {
	i, ok := in.index[canonicalKey(key)]
	if !ok || in.entries[i].block != nil {
		return "", false
	}
	return in.entries[i].value, true
}

// Block returns the lines of a block.
func (in *Input) Block(name string) ([]string, bool) {
	i, ok := in.index[canonicalKey(name)]
	if !ok || in.entries[i].block == nil {
		return nil, false
	}
	return in.entries[i].block, true
}

// Keys returns the keys in insertion order.
func (in *Input) Keys() []string {
	keys := make([]string, len(in.entries))
	for i, e := range in.entries {
		keys[i] = e.key
	}
	return keys
}

// WriteTo renders the document.
func (in *Input) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	for _, e := range in.entries {
		if e.block != nil {
			fmt.Fprintf(bw, "%%block %s\n", e.key)
			for _, line := range e.block {
				fmt.Fprintf(bw, "    %s\n", line)
			}
			fmt.Fprintf(bw, "%%endblock %s\n", e.key)
			continue
		}
		fmt.Fprintf(bw, "%-30s %s\n", e.key, e.value)
	}
	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// String renders the document as text.
func (in *Input) String() string {
	var sb strings.Builder
	_, _ = in.WriteTo(&sb)
	return sb.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "T"
		}
		return "F"
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case Number:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case Flag:
		return formatValue(bool(x))
	default:
		return fmt.Sprint(v)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
