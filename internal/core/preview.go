package core

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/JonMunkholm/txtfix/internal/repair"
	"github.com/JonMunkholm/txtfix/internal/textenc"
)

// Preview limits.
const (
	PreviewLines    = 5
	PreviewMaxChars = 100
)

// ErrEmptyFile is returned by Preview when the input has no lines.
var ErrEmptyFile = errors.New("empty file")

// PreviewLine is one physical line of an upload.
type PreviewLine struct {
	Number    int    `json:"number"`
	Text      string `json:"text"`
	Fields    int    `json:"fields"`
	Truncated bool   `json:"truncated"`
}

// PreviewResult shows the first lines of an upload so the user can check
// the delimiter and column count before repairing.
type PreviewResult struct {
	Lines      []PreviewLine `json:"lines"`
	Delimiter  string        `json:"delimiter"`
	Encoding   string        `json:"encoding"`
	Compressed bool          `json:"compressed"`
}

// Preview decodes r and returns its first PreviewLines lines, each cut to
// PreviewMaxChars characters. Fields counts delimiter-separated parts of the
// full line.
func (s *Service) Preview(r io.Reader, charset, delimiter string) (*PreviewResult, error) {
	if charset == "" {
		charset = s.defaultEnc.Input
	}
	if delimiter == "" {
		delimiter = s.defaults.Delimiter
	}
	return preview(r, charset, delimiter, s.maxLineBytes)
}

func preview(r io.Reader, charset, delimiter string, maxLineBytes int) (*PreviewResult, error) {
	in, err := textenc.OpenInput(r, 0, charset)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	res := &PreviewResult{Delimiter: delimiter, Encoding: charset}
	sc := repair.NewLineScanner(in, maxLineBytes)
	for len(res.Lines) < PreviewLines && sc.Scan() {
		text := sc.Text()
		line := PreviewLine{
			Number: len(res.Lines) + 1,
			Text:   text,
			Fields: len(repair.Split(text, delimiter)),
		}
		if utf8.RuneCountInString(text) > PreviewMaxChars {
			line.Text = string([]rune(text)[:PreviewMaxChars]) + "..."
			line.Truncated = true
		}
		res.Lines = append(res.Lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	res.Compressed = in.Compressed()
	if len(res.Lines) == 0 {
		return nil, ErrEmptyFile
	}
	return res, nil
}
