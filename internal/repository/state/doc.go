// Package state persists snapshots of the synchronization loop state.
//
// The FileRepository writes each snapshot as protobuf JSON of a
// google.protobuf.Struct so the file stays readable by humans and by the
// status subcommand.
package state
