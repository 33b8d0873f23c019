package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/txtfix/internal/core"
	"github.com/JonMunkholm/txtfix/internal/repair"
	"github.com/JonMunkholm/txtfix/internal/web/templates"
)

// Parameter bounds enforced for uploads through the web. The repair core
// itself only requires values of at least 1.
const (
	minChunkSize  = 100
	maxChunkSize  = 50000
	minMultiplier = 1
	maxMultiplier = 1000
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

var formBounds = templates.Bounds{
	MinChunk:      minChunkSize,
	MaxChunk:      maxChunkSize,
	MinMultiplier: minMultiplier,
	MaxMultiplier: maxMultiplier,
}

// parseRepairForm reads repair parameters and encodings from a parsed
// form. Missing fields fall back to the service defaults.
func parseRepairForm(r *http.Request, defaults repair.Params, enc core.Encodings) (repair.Params, core.Encodings, error) {
	p := defaults
	if d := r.FormValue("delimiter"); d != "" {
		p.Delimiter = unescapeDelimiter(d)
	}

	var err error
	if p.Columns, err = formInt(r, "columns", p.Columns, 1, 0); err != nil {
		return p, enc, err
	}
	if p.ChunkSize, err = formInt(r, "chunk_size", p.ChunkSize, minChunkSize, maxChunkSize); err != nil {
		return p, enc, err
	}
	if p.OverflowMultiplier, err = formInt(r, "overflow_multiplier", p.OverflowMultiplier, minMultiplier, maxMultiplier); err != nil {
		return p, enc, err
	}

	if v := strings.TrimSpace(r.FormValue("input_encoding")); v != "" {
		enc.Input = v
	}
	if v := strings.TrimSpace(r.FormValue("output_encoding")); v != "" {
		enc.Output = v
	}
	return p, enc, nil
}

// formInt parses an integer field within [min, max]. max of 0 means no
// upper bound.
func formInt(r *http.Request, name string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a whole number, got %q", repair.ErrInvalidParams, name, raw)
	}
	if v < min || (max > 0 && v > max) {
		if max > 0 {
			return 0, fmt.Errorf("%s %d %w (%d-%d)", name, v, errOutOfRange, min, max)
		}
		return 0, fmt.Errorf("%s %d %w (at least %d)", name, v, errOutOfRange, min)
	}
	return v, nil
}

// unescapeDelimiter lets a tab be typed as \t.
func unescapeDelimiter(d string) string {
	if d == `\t` {
		return "\t"
	}
	return d
}

// queryLimit parses the limit query parameter, clamped to [1, max].
func queryLimit(r *http.Request, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || v < 1 {
		v = def
	}
	if v > max {
		v = max
	}
	return v
}
