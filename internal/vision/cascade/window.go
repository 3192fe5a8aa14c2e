package cascade

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/oshokin/alarm-silencer/internal/vision"
)

// Window title.
const windowTitle = "ESP32-CAM Face Detection"

var (
	faceColor  = color.RGBA{0, 0, 255, 0}
	greenColor = color.RGBA{0, 255, 0, 0}
	redColor   = color.RGBA{255, 0, 0, 0}
)

// Window is an OpenCV preview window.
type Window struct {
	window *gocv.Window
}

// NewWindow opens the preview window.
func NewWindow() *Window {
	return &Window{window: gocv.NewWindow(windowTitle)}
}

// Show implements vision.Preview. Pressing q asks to quit.
func (w *Window) Show(img image.Image, faces []image.Rectangle, overlay vision.Overlay) bool {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return false
	}

	defer func() {
		_ = mat.Close()
	}()

	for _, face := range faces {
		gocv.Rectangle(&mat, face, faceColor, 2)
		gocv.PutText(&mat, "Face Detected", image.Pt(face.Min.X, face.Min.Y-10),
			gocv.FontHersheySimplex, 0.5, faceColor, 2)
	}

	gocv.PutText(&mat, overlay.StatusLine(), image.Pt(10, 30), gocv.FontHersheySimplex, 1, greenColor, 2)

	audioColor := greenColor
	if overlay.AlarmPlaying {
		audioColor = redColor
	}

	gocv.PutText(&mat, overlay.AudioLine(), image.Pt(10, 70), gocv.FontHersheySimplex, 0.7, audioColor, 2)

	w.window.IMShow(mat)

	return w.window.WaitKey(1)&0xFF == 'q'
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}
