package cascade

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrCascadeNotLoaded is returned when the cascade file cannot be read.
var ErrCascadeNotLoaded = errors.New("cascade classifier not loaded")

// Params tunes the multi-scale detection.
type Params struct {
	// ScaleFactor is the image size reduction between scans.
	ScaleFactor float64
	// MinNeighbors is the number of neighbor rectangles needed to confirm a face.
	MinNeighbors int
	// MinSize is the smallest face side in pixels.
	MinSize int
}

// Detector is a Haar cascade face detector.
type Detector struct {
	classifier gocv.CascadeClassifier
	params     Params
}

// NewDetector loads the cascade from path.
func NewDetector(path string, params Params) (*Detector, error) {
	classifier := gocv.NewCascadeClassifier()

	if !classifier.Load(path) {
		_ = classifier.Close()
		return nil, fmt.Errorf("%w: %s", ErrCascadeNotLoaded, path)
	}

	return &Detector{
		classifier: classifier,
		params:     params,
	}, nil
}

// Detect implements vision.Detector.
func (d *Detector) Detect(img *image.Gray) ([]image.Rectangle, error) {
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}

	defer func() {
		_ = mat.Close()
	}()

	minSize := image.Pt(d.params.MinSize, d.params.MinSize)

	return d.classifier.DetectMultiScaleWithParams(
		mat,
		d.params.ScaleFactor,
		d.params.MinNeighbors,
		0,
		minSize,
		image.Point{},
	), nil
}

// Close releases the classifier.
func (d *Detector) Close() error {
	return d.classifier.Close()
}
