// Package presence turns per-frame face detections into the debounced
// "face present" signal written to the remote face pin.
package presence
