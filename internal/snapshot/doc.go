// Package snapshot writes and reads point-in-time copies of the candidate
// table.
//
// A snapshot is a single blob:
//
//	[Header:40][Block]...[Block][CRC32C:4]
//
// Each block is framed by compress.AppendBlock and holds length-prefixed
// serialized CandidateData rows. Blocks are compressed in parallel; the
// trailer checksums every byte before it. Header.LSN records the last delta
// log entry the rows include, so recovery replays only newer entries.
package snapshot
