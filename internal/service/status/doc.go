// Package status implements the status subcommand. It prints the last state
// snapshot and, when a health listener is configured, the live service
// statuses of the running silencer.
package status
