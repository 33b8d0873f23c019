package textenc

// streaming.go provides constant-memory readers applied to uploaded input
// before it is split into lines:
//
//   - BOMSkippingReader: removes a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - CountingReader: tracks raw bytes read for progress and throughput

import (
	"io"
	"sync/atomic"
)

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
// Windows exports commonly start with one.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	pending    []byte // bytes read during BOM detection that were not a BOM
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}

		if n == 3 && r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF {
			r.pending = nil
		} else {
			r.pending = r.buf[:n]
		}

		// Short input: everything there is sits in pending.
		if err == io.EOF {
			if len(r.pending) == 0 {
				return 0, io.EOF
			}
			copied := copy(p, r.pending)
			r.pending = r.pending[copied:]
			if len(r.pending) == 0 {
				return copied, io.EOF
			}
			return copied, nil
		}
	}

	if len(r.pending) > 0 {
		copied := copy(p, r.pending)
		r.pending = r.pending[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// CountingReader wraps an io.Reader to track bytes read. BytesRead may be
// called from another goroutine while reads are in progress.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	total  int64 // 0 if unknown
}

// NewCountingReader creates a counting reader with an optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Total returns the expected size, or 0 if unknown.
func (r *CountingReader) Total() int64 {
	return r.total
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.total <= 0 {
		return 0
	}
	pct := int(r.BytesRead() * 100 / r.total)
	if pct > 100 {
		pct = 100
	}
	return pct
}
