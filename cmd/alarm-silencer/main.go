// Command alarm-silencer plays the ESP32-CAM alarm on this computer and
// reports a detected face back to the alarm clock.
package main

import "github.com/oshokin/alarm-silencer/cmd/alarm-silencer/cmd"

func main() {
	cmd.Execute()
}
