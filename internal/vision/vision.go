package vision

import (
	"fmt"
	"image"
	"image/draw"
)

// Detector finds face bounding boxes in a grayscale frame.
type Detector interface {
	// Detect returns the bounding boxes of faces found in img.
	Detect(img *image.Gray) ([]image.Rectangle, error)
	// Close releases detector resources.
	Close() error
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(img *image.Gray) ([]image.Rectangle, error)

// Detect calls f.
func (f DetectorFunc) Detect(img *image.Gray) ([]image.Rectangle, error) {
	return f(img)
}

// Close does nothing.
func (DetectorFunc) Close() error {
	return nil
}

// Overlay is the status drawn on top of a preview frame.
type Overlay struct {
	// Faces is the number of faces in the frame.
	Faces int
	// AlarmPlaying reports whether the alarm sound is on.
	AlarmPlaying bool
}

// StatusLine returns the face counter text.
func (o Overlay) StatusLine() string {
	return fmt.Sprintf("Faces: %d", o.Faces)
}

// AudioLine returns the alarm sound text.
func (o Overlay) AudioLine() string {
	if o.AlarmPlaying {
		return "ALARM ON"
	}

	return "ALARM OFF"
}

// Preview displays annotated frames.
type Preview interface {
	// Show draws img with faces and overlay and reports whether the user asked to quit.
	Show(img image.Image, faces []image.Rectangle, overlay Overlay) (quit bool)
	// Close destroys the preview.
	Close() error
}

// ToGray converts img to grayscale. A *image.Gray is returned as is.
func ToGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}

	bounds := img.Bounds()
	gray := image.NewGray(bounds)

	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)

	return gray
}
