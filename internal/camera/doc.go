// Package camera acquires frames from an ESP32-CAM over plain HTTP.
//
// A Feed prefers the MJPEG stream endpoint and falls back to still captures
// when the stream is unavailable or keeps failing. CheckHealth classifies the
// camera by the size of a still capture, rejecting error pages served with
// status 200.
package camera
