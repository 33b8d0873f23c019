// Package core runs delimited-text repair jobs for the web server.
//
// The package wraps the sequential repair driver from package repair with
// everything a multi-user service needs. It has no HTTP dependencies and
// can be driven from tests directly.
//
// # Jobs
//
// [Service.StartJob] validates parameters and charsets, waits for a slot in
// the [JobLimiter] and runs the repair in a background goroutine:
//
//  1. The upload is decoded by package textenc (gzip, BOM, charset)
//  2. Physical lines go through the repair driver
//  3. Clean CSV and rejects are written, re-encoded, into the job directory
//  4. Progress is broadcast to subscribers via [Service.SubscribeProgress]
//  5. The result is recorded in the run history store
//
// A job ends in one of three phases. Complete and cancelled jobs keep their
// outputs until the retention period passes; a cancelled job's outputs are
// a valid prefix of the full run. Failed jobs lose their outputs at once.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Each
// message carries a support code (CFG, FILE, JOB, IO, DB and RATE groups);
// see error_messages.go for the full list.
package core
