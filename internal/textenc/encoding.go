// Package textenc turns uploaded bytes into decoded text and encodes repaired
// output back into the requested character set.
//
// Input may be gzip-compressed (detected by its magic number) and may start
// with a UTF-8 byte order mark. Invalid byte sequences are replaced with
// U+FFFD rather than failing the run. On output, characters the target
// charset cannot represent are replaced with the charset's substitute byte.
package textenc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/pgzip"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnknownEncoding is returned for charset names that cannot be resolved.
var ErrUnknownEncoding = errors.New("unknown encoding")

// UTF8 is the default charset name.
const UTF8 = "utf-8"

// Supported lists the charsets offered in the upload form.
var Supported = []string{"utf-8", "latin1", "cp1252", "iso-8859-1"}

var known = map[string]encoding.Encoding{
	"utf-8":        unicode.UTF8,
	"utf8":         unicode.UTF8,
	"latin1":       charmap.ISO8859_1,
	"latin-1":      charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso8859-1":    charmap.ISO8859_1,
	"cp1252":       charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, "_", "-")
}

// Lookup resolves a charset name. An empty name means UTF-8.
func Lookup(name string) (encoding.Encoding, error) {
	n := normalize(name)
	if n == "" {
		return unicode.UTF8, nil
	}
	if e, ok := known[n]; ok {
		return e, nil
	}
	e, err := ianaindex.IANA.Encoding(n)
	if err != nil || e == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return e, nil
}

// Validate reports whether name resolves to a usable charset.
func Validate(name string) error {
	_, err := Lookup(name)
	return err
}

func isUTF8(e encoding.Encoding) bool {
	return e == unicode.UTF8
}

// Input is a decoded view of an uploaded stream.
type Input struct {
	io.Reader

	counter    *CountingReader
	gz         *pgzip.Reader
	compressed bool
}

// OpenInput wraps r for line scanning: raw bytes are counted, gzip is
// unwrapped when present, a UTF-8 BOM is skipped and the charset is decoded.
// size is the raw size in bytes, or 0 if unknown.
func OpenInput(r io.Reader, size int64, charset string) (*Input, error) {
	enc, err := Lookup(charset)
	if err != nil {
		return nil, err
	}

	in := &Input{counter: NewCountingReader(r, size)}

	br := bufio.NewReader(in.counter)
	var src io.Reader = br
	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		in.gz = gz
		in.compressed = true
		src = gz
	}

	if isUTF8(enc) {
		src = NewBOMSkippingReader(src)
	}
	in.Reader = enc.NewDecoder().Reader(src)
	return in, nil
}

// BytesRead returns raw (possibly compressed) bytes consumed so far.
func (in *Input) BytesRead() int64 {
	return in.counter.BytesRead()
}

// Progress returns raw read progress as a percentage, 0 if the size is unknown.
func (in *Input) Progress() int {
	return in.counter.Progress()
}

// Compressed reports whether the input was gzip-compressed.
func (in *Input) Compressed() bool {
	return in.compressed
}

// Close releases the gzip reader, if any. It does not close the source.
func (in *Input) Close() error {
	if in.gz != nil {
		return in.gz.Close()
	}
	return nil
}

// NewWriter returns a writer that encodes UTF-8 text into charset.
// Close must be called before closing w.
func NewWriter(w io.Writer, charset string) (io.WriteCloser, error) {
	enc, err := Lookup(charset)
	if err != nil {
		return nil, err
	}
	if isUTF8(enc) {
		return nopCloser{w}, nil
	}
	return transform.NewWriter(w, encoding.ReplaceUnsupported(enc.NewEncoder())), nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
