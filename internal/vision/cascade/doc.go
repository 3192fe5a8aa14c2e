// Package cascade implements the face detector and the preview window with
// OpenCV through gocv.
package cascade
