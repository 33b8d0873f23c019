package repair

import "strings"

// Split splits a physical line on every occurrence of the literal delimiter.
//
// Empty fields between consecutive delimiters are preserved. An empty line
// yields a single empty field and a line without the delimiter yields the
// whole line as its only field. The delimiter must not be empty; Params.Validate
// rejects that before a run starts.
func Split(line, delim string) []string {
	return strings.Split(line, delim)
}

// Join is the inverse of Split, used to serialize rejected fragments.
func Join(fields []string, delim string) string {
	return strings.Join(fields, delim)
}
