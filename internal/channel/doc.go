// Package channel implements the shared directory both the inspector and the
// in-app responder read and write.
//
// The channel has three regions under a single root:
//
//	context.json   key/value record written by the inspector, read by the responder
//	actions/       one marker file per executed command (per-event strategy)
//	actions.json   append-only marker log (single-log strategy)
//	tmp/           scratch copies of opened documents
//
// Neither side locks anything. Context writes are atomic (temp file + rename)
// so the responder never observes a partially written record; ordering between
// a context write and the dispatch that depends on it is the caller's job.
package channel
