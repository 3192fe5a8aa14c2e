// Package audio plays the local alarm sound on a background goroutine and
// loads the alarm clip, falling back to a generated two-tone beep.
package audio
