// Package health exposes the silencer state over the standard gRPC health
// checking protocol, and queries it from the status command.
//
// Services: "" reports the loop itself, "camera" the last health probe and
// "alarm" whether the remote alarm is armed.
package health
