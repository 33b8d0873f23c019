package repair

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scanAll(t *testing.T, r io.Reader, max int) []string {
	t.Helper()
	sc := NewLineScanner(r, max)
	var out []string
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestLineScanner_Terminators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"unix", "a\nb\nc", []string{"a", "b", "c"}},
		{"trailing newline", "a\nb\n", []string{"a", "b"}},
		{"windows", "a\r\nb\r\n", []string{"a", "b"}},
		{"old mac", "a\rb\rc", []string{"a", "b", "c"}},
		{"mixed", "a\r\nb\nc\rd", []string{"a", "b", "c", "d"}},
		{"blank lines kept", "a\n\nb", []string{"a", "", "b"}},
		{"lone cr at end", "a\r", []string{"a"}},
		{"vertical tab and form feed", "a\vb\fc", []string{"a", "b", "c"}},
		{"record separators", "a\x1cb\x1dc\x1ed", []string{"a", "b", "c", "d"}},
		{"next line", "a\u0085b\u0085", []string{"a", "b"}},
		{"unicode separators", "a\u2028b\u2029c", []string{"a", "b", "c"}},
		{"other multibyte kept", "é|\u2026|\u20ac", []string{"é|\u2026|\u20ac"}},
		{"empty input", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanAll(t, strings.NewReader(tt.input), 0)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLineScanner_CRLFSplitAcrossReads(t *testing.T) {
	// OneByteReader forces "\r" and "\n" into separate reads.
	got := scanAll(t, iotest.OneByteReader(strings.NewReader("ab\r\ncd\r\n")), 0)
	if want := []string{"ab", "cd"}; !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestLineScanner_MultibyteTerminatorSplitAcrossReads(t *testing.T) {
	got := scanAll(t, iotest.OneByteReader(strings.NewReader("ab\u0085cd\u2028e\u2026f")), 0)
	if want := []string{"ab", "cd", "e\u2026f"}; !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestLineScanner_LineTooLong(t *testing.T) {
	sc := NewLineScanner(strings.NewReader(strings.Repeat("x", 100)+"\n"), 16)
	for sc.Scan() {
	}
	if sc.Err() == nil {
		t.Error("expected error for line longer than max")
	}
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource([]string{"a", "b"})
	var got []string
	for src.Scan() {
		got = append(got, src.Text())
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("lines = %q", got)
	}
	if src.Scan() {
		t.Error("Scan after end should stay false")
	}
	if src.Text() != "" || src.Err() != nil {
		t.Error("exhausted source should return empty text and nil error")
	}
}
