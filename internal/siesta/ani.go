package siesta

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var errNoFrames = errors.New("xyz: no frames")

// Frame is one structure of an xyz trajectory.
type Frame struct {
	Symbols   []string
	Positions [][3]float64
}

// ReadANI reads the .ANI trajectory SIESTA writes for relaxations and MD.
func ReadANI(path string) ([]Frame, error) {
	return readFile(path, ParseXYZ)
}

// ParseXYZ parses concatenated xyz frames: an atom count, a comment line,
// then one "symbol x y z" line per atom.
func ParseXYZ(r io.Reader) ([]Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		frames []Frame
		lineNo int
	)
	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		lineNo++
		return sc.Text(), true
	}

	for {
		header, ok := next()
		if !ok {
			break
		}
		if strings.TrimSpace(header) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("xyz:%d: invalid atom count %q", lineNo, header)
		}
		if _, ok := next(); !ok {
			return nil, fmt.Errorf("xyz:%d: missing comment line", lineNo)
		}
		f := Frame{Symbols: make([]string, n), Positions: make([][3]float64, n)}
		for i := 0; i < n; i++ {
			line, ok := next()
			if !ok {
				return nil, fmt.Errorf("xyz: frame %d truncated after %d of %d atoms", len(frames)+1, i, n)
			}
			fields := strings.Fields(line)
			if len(fields) < 4 {
				return nil, fmt.Errorf("xyz:%d: expected symbol and three coordinates", lineNo)
			}
			pos, ok := parse3(fields[1:4])
			if !ok {
				return nil, fmt.Errorf("xyz:%d: invalid coordinates", lineNo)
			}
			f.Symbols[i] = fields[0]
			f.Positions[i] = pos
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, errNoFrames
	}
	return frames, nil
}
