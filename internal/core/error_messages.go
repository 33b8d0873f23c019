package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Users quote the code; support looks it up here.
//
// Codes by group:
//
//	CFG001  Invalid repair parameters    "invalid repair parameters"
//	CFG002  Unknown character encoding   "unknown encoding"
//	CFG003  Parameter outside UI bounds  "out of range"
//
//	FILE001 File too large               "file too large", "request body too large"
//	FILE002 No file                      "no file provided"
//	FILE003 Empty file                   "empty file"
//	FILE004 Line too long                "token too long"
//	FILE005 Corrupt gzip stream          "gzip"
//
//	JOB001  Job cancelled                "repair cancelled"
//	JOB002  System busy                  "too many repair jobs"
//	JOB003  Job not found                "job not found"
//	JOB004  Job still running            "job still running"
//	JOB005  Output not available         "artifact not available"
//	JOB006  Request cancelled            "context canceled"
//	JOB007  Request timed out            "context deadline exceeded"
//
//	IO001   Disk full                    "no space left"
//	IO002   Permission denied            "permission denied"
//	IO003   Connection dropped           "connection reset", "broken pipe"
//
//	DB001   History database unavailable "connection refused"
//	DB002   History entry not found      "run not found"
//
//	RATE001 Too many requests            "rate limit"
//
//	ERR000  Anything else; check the logs for the technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Configuration
	{"invalid repair parameters", UserMessage{
		Message: "The repair settings are not valid",
		Action:  "Use at least 1 column, a non-empty delimiter and chunk size and multiplier of at least 1",
		Code:    "CFG001",
	}},
	{"unknown encoding", UserMessage{
		Message: "Unknown character encoding",
		Action:  "Choose utf-8, latin1, cp1252 or iso-8859-1",
		Code:    "CFG002",
	}},
	{"out of range", UserMessage{
		Message: "A setting is outside the allowed range",
		Action:  "Chunk size must be 100-50000 and overflow multiplier 1-1000",
		Code:    "CFG003",
	}},

	// Files
	{"file too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Compress the file with gzip or run the command-line tool locally",
		Code:    "FILE001",
	}},
	{"request body too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Compress the file with gzip or run the command-line tool locally",
		Code:    "FILE001",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select a text file to repair",
		Code:    "FILE002",
	}},
	{"empty file", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a file with at least one line",
		Code:    "FILE003",
	}},
	{"token too long", UserMessage{
		Message: "A single line in the file is longer than the configured limit",
		Action:  "Check the delimiter and line endings, or raise REPAIR_MAX_LINE_BYTES",
		Code:    "FILE004",
	}},
	{"gzip", UserMessage{
		Message: "The compressed file could not be read",
		Action:  "Re-compress the file or upload it uncompressed",
		Code:    "FILE005",
	}},

	// Jobs
	{"repair cancelled", UserMessage{
		Message: "Repair was stopped before the end of the file",
		Action:  "The outputs contain every line processed so far; start a new repair for the full file",
		Code:    "JOB001",
	}},
	{"too many repair jobs", UserMessage{
		Message: "System is busy repairing other files",
		Action:  "Please wait a moment and try again",
		Code:    "JOB002",
	}},
	{"job not found", UserMessage{
		Message: "Repair job not found",
		Action:  "The job may have expired. Please start a new repair",
		Code:    "JOB003",
	}},
	{"job still running", UserMessage{
		Message: "The repair is still running",
		Action:  "Wait for it to finish before downloading",
		Code:    "JOB004",
	}},
	{"artifact not available", UserMessage{
		Message: "That output is not available",
		Action:  "Outputs of failed or expired jobs are removed. Please run the repair again",
		Code:    "JOB005",
	}},
	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "JOB006",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "JOB007",
	}},

	// Local I/O
	{"no space left", UserMessage{
		Message: "The server ran out of disk space",
		Action:  "Please try again later or contact support",
		Code:    "IO001",
	}},
	{"permission denied", UserMessage{
		Message: "The server could not write the output files",
		Action:  "Contact support",
		Code:    "IO002",
	}},
	{"connection reset", UserMessage{
		Message: "The connection was interrupted",
		Action:  "Please try again",
		Code:    "IO003",
	}},
	{"broken pipe", UserMessage{
		Message: "The connection was interrupted",
		Action:  "Please try again",
		Code:    "IO003",
	}},

	// History database
	{"connection refused", UserMessage{
		Message: "Unable to reach the history database",
		Action:  "Repairs still work; history will be back shortly",
		Code:    "DB001",
	}},
	{"run not found", UserMessage{
		Message: "History entry not found",
		Action:  "Check the run ID",
		Code:    "DB002",
	}},

	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. A nil
// error maps to the zero UserMessage; an unknown error maps to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
