// Package checker implements the check subcommand: one-shot diagnostics of
// the Blynk pins, the camera endpoints and the audio output.
package checker
