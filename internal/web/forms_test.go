package web

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/JonMunkholm/txtfix/internal/core"
	"github.com/JonMunkholm/txtfix/internal/repair"
)

func TestParseRepairForm(t *testing.T) {
	defaults := repair.Params{Delimiter: "|", Columns: 30, ChunkSize: 10000, OverflowMultiplier: 100}
	enc := core.Encodings{Input: "utf-8", Output: "utf-8"}

	tests := []struct {
		name    string
		form    url.Values
		want    repair.Params
		wantEnc core.Encodings
		wantErr error
	}{
		{"defaults", url.Values{}, defaults, enc, nil},
		{
			"overrides",
			url.Values{"delimiter": {";"}, "columns": {"4"}, "chunk_size": {"100"}, "overflow_multiplier": {"1000"}, "output_encoding": {"cp1252"}},
			repair.Params{Delimiter: ";", Columns: 4, ChunkSize: 100, OverflowMultiplier: 1000},
			core.Encodings{Input: "utf-8", Output: "cp1252"},
			nil,
		},
		{
			"tab escape",
			url.Values{"delimiter": {`\t`}},
			repair.Params{Delimiter: "\t", Columns: 30, ChunkSize: 10000, OverflowMultiplier: 100},
			enc, nil,
		},
		{"chunk too large", url.Values{"chunk_size": {"50001"}}, repair.Params{}, enc, errOutOfRange},
		{"multiplier zero", url.Values{"overflow_multiplier": {"0"}}, repair.Params{}, enc, errOutOfRange},
		{"columns zero", url.Values{"columns": {"0"}}, repair.Params{}, enc, errOutOfRange},
		{"columns text", url.Values{"columns": {"x"}}, repair.Params{}, enc, repair.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/repair", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			got, gotEnc, err := parseRepairForm(req, defaults, enc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want || gotEnc != tt.wantEnc {
				t.Errorf("got %+v %+v, want %+v %+v", got, gotEnc, tt.want, tt.wantEnc)
			}
		})
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"limit=10", 10},
		{"limit=-1", 50},
		{"limit=abc", 50},
		{"limit=9999", 200},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/history?"+tt.query, nil)
		if got := queryLimit(req, 50, 200); got != tt.want {
			t.Errorf("queryLimit(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
