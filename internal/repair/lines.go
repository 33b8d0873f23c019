package repair

import (
	"bufio"
	"io"
)

// DefaultMaxLineBytes bounds a single physical line read by NewLineScanner.
const DefaultMaxLineBytes = 16 * 1024 * 1024

// LineSource yields physical lines in input order with terminators stripped.
// *bufio.Scanner satisfies it.
type LineSource interface {
	Scan() bool
	Text() string
	Err() error
}

// NewLineScanner returns a scanner that splits r into physical lines. See
// ScanPhysicalLines for the terminators recognized. A terminator at the very
// end of the input does not produce an extra empty line. maxLineBytes <= 0
// uses DefaultMaxLineBytes.
func NewLineScanner(r io.Reader, maxLineBytes int) *bufio.Scanner {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	initial := 64 * 1024
	if initial > maxLineBytes {
		initial = maxLineBytes
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, initial), maxLineBytes)
	sc.Split(ScanPhysicalLines)
	return sc
}

// ScanPhysicalLines is a bufio.SplitFunc over UTF-8 text. Lines end at "\n",
// "\r\n", a lone "\r", "\v", "\f", the separators U+001C to U+001E, NEL
// (U+0085) and U+2028/U+2029.
func ScanPhysicalLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\n', '\v', '\f', 0x1c, 0x1d, 0x1e:
			return i + 1, data[:i], nil

		case '\r':
			// A '\r' at the end of the buffer may be the first half of "\r\n".
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			return 0, nil, nil

		case 0xc2: // NEL is C2 85
			if i+1 < len(data) {
				if data[i+1] == 0x85 {
					return i + 2, data[:i], nil
				}
			} else if !atEOF {
				return 0, nil, nil
			}

		case 0xe2: // U+2028 and U+2029 are E2 80 A8 and E2 80 A9
			switch {
			case i+2 < len(data):
				if data[i+1] == 0x80 && (data[i+2] == 0xa8 || data[i+2] == 0xa9) {
					return i + 3, data[:i], nil
				}
			case atEOF:
			case i+1 == len(data) || data[i+1] == 0x80:
				return 0, nil, nil
			}
		}
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// SliceSource is a LineSource over lines already held in memory.
type SliceSource struct {
	lines []string
	pos   int
}

// NewSliceSource creates a LineSource that yields lines in order.
func NewSliceSource(lines []string) *SliceSource {
	return &SliceSource{lines: lines, pos: -1}
}

func (s *SliceSource) Scan() bool {
	if s.pos+1 >= len(s.lines) {
		s.pos = len(s.lines)
		return false
	}
	s.pos++
	return true
}

func (s *SliceSource) Text() string {
	if s.pos < 0 || s.pos >= len(s.lines) {
		return ""
	}
	return s.lines[s.pos]
}

func (s *SliceSource) Err() error { return nil }
