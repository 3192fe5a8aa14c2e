package vision

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestToGray converts colors with luminance weights and keeps bounds.
func TestToGray(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(2, 3, 6, 7))
	src.Set(2, 3, color.RGBA{255, 255, 255, 255})
	src.Set(5, 6, color.RGBA{0, 0, 0, 255})

	gray := ToGray(src)

	require.Equal(t, src.Bounds(), gray.Bounds())
	require.Equal(t, uint8(255), gray.GrayAt(2, 3).Y)
	require.Equal(t, uint8(0), gray.GrayAt(5, 6).Y)
}

// TestToGray_Passthrough returns grayscale frames without copying.
func TestToGray_Passthrough(t *testing.T) {
	t.Parallel()

	src := image.NewGray(image.Rect(0, 0, 4, 4))

	require.Same(t, src, ToGray(src))
}

// TestDetectorFunc forwards results and errors.
func TestDetectorFunc(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	boxes := []image.Rectangle{image.Rect(0, 0, 30, 30)}

	var detector Detector = DetectorFunc(func(*image.Gray) ([]image.Rectangle, error) {
		return boxes, boom
	})

	got, err := detector.Detect(image.NewGray(image.Rect(0, 0, 1, 1)))
	require.ErrorIs(t, err, boom)
	require.Equal(t, boxes, got)
	require.NoError(t, detector.Close())
}

// TestOverlay renders the preview status lines.
func TestOverlay(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Faces: 2", Overlay{Faces: 2}.StatusLine())
	require.Equal(t, "ALARM ON", Overlay{AlarmPlaying: true}.AudioLine())
	require.Equal(t, "ALARM OFF", Overlay{}.AudioLine())
}
