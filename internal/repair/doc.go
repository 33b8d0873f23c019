// Package repair reassembles logical records from a delimited text stream whose
// line structure was damaged in transit.
//
// A logical record is expected to split into exactly N fields on a literal
// delimiter. Physical lines that carry fewer fields are merged with the lines
// that follow them until the accumulated field count reaches N; accumulations
// that overshoot N, or grow beyond N × overflow multiplier, are set aside as
// rejected fragments.
//
// # Components
//
//   - [Split]: tokenizes one physical line on a literal delimiter.
//   - [Reassembler]: the accumulation state machine, one decision per line.
//   - [Sink]: batches accepted records into CSV writes and writes rejected
//     fragments immediately to a separate stream.
//   - [Reporter]: counters for accepted, rejected and seen lines.
//   - [Run]: drives a single sequential pass over a [LineSource].
//
// # Limitations
//
// Field count is the only signal. Two unrelated short lines whose field counts
// sum to N are accepted as one record, and a genuine multi-line record whose
// running count passes through N before its real end is split early. Both are
// accepted behavior of the policy, not defects.
package repair
