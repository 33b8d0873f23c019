package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/JonMunkholm/txtfix/internal/repair"
	"github.com/JonMunkholm/txtfix/internal/textenc"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error", nil, ""},
		{"invalid params", repair.Params{Delimiter: "|"}.Validate(), "CFG001"},
		{"unknown encoding", fmt.Errorf("open input: %w", textenc.ErrUnknownEncoding), "CFG002"},
		{"ui bounds", errors.New("chunk size 5 out of range 100-50000"), "CFG003"},
		{"max bytes reader", &http.MaxBytesError{Limit: 10}, "FILE001"},
		{"line too long", errors.New("read line 3: bufio.Scanner: token too long"), "FILE004"},
		{"bad gzip", errors.New("open gzip stream: gzip: invalid header"), "FILE005"},
		{"cancelled wins over context error",
			fmt.Errorf("%w after 100 lines: %w", repair.ErrCancelled, errors.New("context deadline exceeded")), "JOB001"},
		{"busy", ErrTooManyJobs, "JOB002"},
		{"job not found", fmt.Errorf("%w: abc", ErrJobNotFound), "JOB003"},
		{"job running", ErrJobRunning, "JOB004"},
		{"artifact", ErrArtifactUnavailable, "JOB005"},
		{"deadline", errors.New("context deadline exceeded"), "JOB007"},
		{"disk full", errors.New("write clean.csv: no space left on device"), "IO001"},
		{"db down", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "DB001"},
		{"rate limit", errors.New("rate limit exceeded"), "RATE001"},
		{"unknown", errors.New("something strange"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
			if tt.err != nil && (got.Message == "" || got.Action == "") {
				t.Errorf("MapError(%v) has empty message or action", tt.err)
			}
		})
	}
}

func TestMapError_CaseInsensitive(t *testing.T) {
	if got := MapError(errors.New("RATE LIMIT EXCEEDED")).Code; got != "RATE001" {
		t.Errorf("Code = %q, want RATE001", got)
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrTooManyJobs)
	if !strings.Contains(got, "(Code: JOB002)") {
		t.Errorf("FormatUserError = %q", got)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil is not user facing")
	}
	if !IsUserFacing(ErrJobNotFound) {
		t.Error("ErrJobNotFound should be user facing")
	}
	if IsUserFacing(errors.New("segfault in flux capacitor")) {
		t.Error("unknown error should not be user facing")
	}
}
