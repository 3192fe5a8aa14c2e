package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	// Still captures may be JPEG or PNG.
	_ "image/jpeg"
	_ "image/png"

	"github.com/oshokin/alarm-silencer/internal/config"
	"github.com/oshokin/alarm-silencer/internal/logger"
)

// Mode is the frame acquisition strategy.
type Mode int

const (
	// ModeCapture fetches one still image per frame.
	ModeCapture Mode = iota
	// ModeStream reads frames from a continuous MJPEG stream.
	ModeStream
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	if m == ModeStream {
		return "stream"
	}

	return "capture"
}

// maxStillSize caps a still capture body.
const maxStillSize = 16 << 20

var (
	// ErrNoCamera is returned by Probe when neither endpoint delivers a frame.
	ErrNoCamera = errors.New("no camera endpoint reachable")
	// errNoStreamURL is returned when streaming is requested without a URL.
	errNoStreamURL = errors.New("stream url is not configured")
)

// StatusError reports a non-200 camera response.
type StatusError struct {
	// URL is the requested endpoint.
	URL string
	// StatusCode is the HTTP status returned.
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("camera %s returned http status %d", e.URL, e.StatusCode)
}

// ImplausibleResponseError reports a still capture too small to be an image,
// typically an error page served with status 200.
type ImplausibleResponseError struct {
	// Size is the body size in bytes.
	Size int
	// MinSize is the configured threshold.
	MinSize int
}

// Error implements error.
func (e *ImplausibleResponseError) Error() string {
	return fmt.Sprintf("camera response of %d bytes is not above %d", e.Size, e.MinSize)
}

// Options configures a Feed.
type Options struct {
	// HTTPClient performs requests; http.DefaultClient when nil.
	HTTPClient *http.Client
	// StreamURL is the MJPEG endpoint; empty disables streaming.
	StreamURL string
	// CaptureURL is the still image endpoint.
	CaptureURL string
	// OpenTimeout bounds opening the stream.
	OpenTimeout time.Duration
	// ReadTimeout bounds reading one stream frame.
	ReadTimeout time.Duration
	// CaptureTimeout bounds a still capture.
	CaptureTimeout time.Duration
	// HealthTimeout bounds a health probe.
	HealthTimeout time.Duration
	// MinHealthBytes is the size a healthy still capture must exceed.
	MinHealthBytes int
	// MaxStreamFailures consecutive stream failures demote the feed to capture mode.
	MaxStreamFailures int
}

// OptionsFromConfig extracts the feed settings from a validated camera section.
func OptionsFromConfig(cfg *config.Camera) Options {
	var minHealthBytes int
	if cfg.MinHealthBytes != nil {
		minHealthBytes = *cfg.MinHealthBytes
	}

	return Options{
		StreamURL:         cfg.StreamURL,
		CaptureURL:        cfg.CaptureURL,
		OpenTimeout:       cfg.OpenTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		CaptureTimeout:    cfg.CaptureTimeout,
		HealthTimeout:     cfg.HealthTimeout,
		MinHealthBytes:    minHealthBytes,
		MaxStreamFailures: cfg.MaxStreamFailures,
	}
}

// Feed acquires frames from an ESP32-CAM. It is not safe for concurrent use;
// the synchronization loop is its only caller.
type Feed struct {
	// client performs requests.
	client *http.Client
	// stream is the open MJPEG connection, nil when disconnected.
	stream *mjpegStream
	// opts holds endpoints and limits.
	opts Options
	// mode is the current acquisition strategy.
	mode Mode
	// streamFailures counts consecutive stream failures.
	streamFailures int
}

// NewFeed creates a feed in capture mode; Probe selects the final mode.
func NewFeed(opts Options) *Feed {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Feed{
		client: client,
		opts:   opts,
		mode:   ModeCapture,
	}
}

// Mode returns the current acquisition strategy.
func (f *Feed) Mode() Mode {
	return f.mode
}

// Probe prefers the stream: it must open and deliver one real frame. Otherwise
// a still capture must succeed. ErrNoCamera is returned when both fail.
func (f *Feed) Probe(ctx context.Context) error {
	var streamErr error

	if f.opts.StreamURL != "" {
		logger.InfoKV(ctx, "Testing camera stream", "url", f.opts.StreamURL)

		if _, streamErr = f.readStreamFrame(ctx); streamErr == nil {
			f.mode = ModeStream
			f.streamFailures = 0

			logger.InfoKV(ctx, "Camera stream working", "url", f.opts.StreamURL)

			return nil
		}

		logger.WarnKV(ctx, "Camera stream failed, trying still capture", "error", streamErr)
	} else {
		streamErr = errNoStreamURL
	}

	f.mode = ModeCapture

	if _, err := f.CaptureStill(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNoCamera, errors.Join(streamErr, err))
	}

	logger.InfoKV(ctx, "Camera still capture working", "url", f.opts.CaptureURL)

	return nil
}

// Next returns the next frame in the current mode. In stream mode a failure
// drops the connection, which is reopened on the next call, and
// MaxStreamFailures consecutive failures switch the feed to capture mode.
func (f *Feed) Next(ctx context.Context) (image.Image, error) {
	if f.mode == ModeCapture {
		return f.CaptureStill(ctx)
	}

	img, err := f.readStreamFrame(ctx)
	if err == nil {
		f.streamFailures = 0
		return img, nil
	}

	f.streamFailures++

	logger.WarnKV(ctx, "Stream frame read failed",
		"failures", f.streamFailures,
		"max_failures", f.opts.MaxStreamFailures,
		"error", err,
	)

	if f.opts.MaxStreamFailures > 0 && f.streamFailures >= f.opts.MaxStreamFailures {
		logger.ErrorKV(ctx, "Too many stream failures, switching to still capture", "failures", f.streamFailures)

		f.closeStream()
		f.mode = ModeCapture
		f.streamFailures = 0
	}

	return nil, err
}

// CaptureStill fetches and decodes a single image.
func (f *Feed) CaptureStill(ctx context.Context) (image.Image, error) {
	data, err := f.fetchStill(ctx, f.opts.CaptureTimeout)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode still: %w", err)
	}

	return img, nil
}

// CheckHealth performs a still capture and requires the body to exceed
// MinHealthBytes. It returns the body size for logging.
func (f *Feed) CheckHealth(ctx context.Context) (int, error) {
	data, err := f.fetchStill(ctx, f.opts.HealthTimeout)
	if err != nil {
		return 0, err
	}

	if len(data) <= f.opts.MinHealthBytes {
		return len(data), &ImplausibleResponseError{Size: len(data), MinSize: f.opts.MinHealthBytes}
	}

	return len(data), nil
}

// Close releases the stream connection, if any.
func (f *Feed) Close() error {
	if f.stream == nil {
		return nil
	}

	err := f.stream.close()
	f.stream = nil

	return err
}

// readStreamFrame reads one frame, opening the stream first when needed.
// Any failure drops the connection.
func (f *Feed) readStreamFrame(ctx context.Context) (image.Image, error) {
	if f.opts.StreamURL == "" {
		return nil, errNoStreamURL
	}

	if f.stream == nil {
		stream, err := openStream(ctx, f.client, f.opts.StreamURL, f.opts.OpenTimeout)
		if err != nil {
			return nil, err
		}

		f.stream = stream
	}

	img, err := f.stream.next(f.opts.ReadTimeout)
	if err != nil {
		f.closeStream()
		return nil, err
	}

	return img, nil
}

// closeStream drops the stream connection ignoring close errors.
func (f *Feed) closeStream() {
	_ = f.Close()
}

// fetchStill downloads the capture endpoint body.
func (f *Feed) fetchStill(ctx context.Context, timeout time.Duration) ([]byte, error) {
	callCtx, cancel := callContext(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, f.opts.CaptureURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build capture request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: f.opts.CaptureURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxStillSize))
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}

	return data, nil
}

// callContext applies timeout when positive.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}
