package integration

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-silencer/internal/audio"
)

// blynkServer imitates the Blynk HTTP API for one device.
type blynkServer struct {
	mu sync.Mutex
	// pins holds the current pin values.
	pins map[string]string
	// writes records every update in order as pin=value.
	writes []string
}

// newBlynkServer starts a Blynk imitation with the alarm disarmed.
func newBlynkServer(t *testing.T) (*blynkServer, *httptest.Server) {
	t.Helper()

	b := &blynkServer{pins: map[string]string{"V5": "0", "V4": "0"}}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	return b, srv
}

// ServeHTTP answers get and update calls.
func (b *blynkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("token") != "secret" {
		http.Error(w, "Invalid token", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.URL.Path {
	case "/external/api/get":
		for pin, value := range b.pins {
			if query.Has(pin) {
				_, _ = w.Write([]byte(value))
				return
			}
		}

		http.Error(w, "unknown pin", http.StatusBadRequest)
	case "/external/api/update":
		for pin := range b.pins {
			if query.Has(pin) {
				b.pins[pin] = query.Get(pin)
				b.writes = append(b.writes, pin+"="+query.Get(pin))

				return
			}
		}

		http.Error(w, "unknown pin", http.StatusBadRequest)
	default:
		http.NotFound(w, r)
	}
}

// set changes a pin as the microcontroller would.
func (b *blynkServer) set(pin, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pins[pin] = value
}

// recordedWrites returns the updates made by the silencer.
func (b *blynkServer) recordedWrites() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.writes...)
}

// cameraServer imitates the ESP32-CAM HTTP endpoints.
type cameraServer struct {
	// frame is served by both endpoints.
	frame []byte
}

// newCameraServer starts a camera imitation.
func newCameraServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(&cameraServer{frame: testFrame(t)})
	t.Cleanup(srv.Close)

	return srv
}

// ServeHTTP serves /stream and /capture.
func (c *cameraServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/capture":
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(c.frame)
	case "/stream":
		c.serveStream(w, r)
	default:
		http.NotFound(w, r)
	}
}

// serveStream writes a frame every 10ms until the client leaves.
func (c *cameraServer) serveStream(w http.ResponseWriter, r *http.Request) {
	mw := multipart.NewWriter(w)
	_ = mw.SetBoundary("123456789000000000000987654321")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+mw.Boundary())
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
		if err != nil {
			return
		}

		if _, err = part.Write(c.frame); err != nil {
			return
		}

		if flusher != nil {
			flusher.Flush()
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// testFrame encodes a patterned image above the health threshold.
func testFrame(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 160, 120))

	for y := range 120 {
		for x := range 160 {
			img.Set(x, y, color.RGBA{uint8(x * 7), uint8(y * 13), uint8(x ^ y), 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	require.Greater(t, buf.Len(), 1000)

	return buf.Bytes()
}

// speaker is an audio device that plays until canceled.
type speaker struct {
	// active counts clips currently playing.
	active atomic.Int32
	// plays counts started clips.
	plays atomic.Int32
	// closed reports whether the device was released.
	closed atomic.Bool
}

// Play blocks until ctx is canceled.
func (s *speaker) Play(ctx context.Context, _ *audio.Clip) error {
	s.plays.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	<-ctx.Done()

	return nil
}

// Close marks the device released.
func (s *speaker) Close() error {
	s.closed.Store(true)
	return nil
}

// reservePort returns a free localhost address.
func reservePort(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	address := lis.Addr().String()
	require.NoError(t, lis.Close())

	return address
}
