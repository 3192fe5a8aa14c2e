// Package silencer implements the synchronization loop and the run command
// that wires it to the Blynk client, the camera, the detector, local audio
// and the optional MQTT mirror and gRPC status server.
package silencer
