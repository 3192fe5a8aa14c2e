// Package alarm contains the domain types of the alarm silencer.
//
// SyncState is the single state record of the synchronization loop, FlagState
// classifies the remote alarm flag and Event describes a state transition
// reported to observers.
package alarm
