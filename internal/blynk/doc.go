// Package blynk is a thin client for the Blynk HTTP API used as the remote
// flag store between the desktop process and the microcontroller.
//
// Pins hold short strings; the alarm flag and the face signal are "0" or "1".
package blynk
