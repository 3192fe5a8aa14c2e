package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// maxFrameSize caps a single JPEG part; ESP32-CAM frames are far smaller.
const maxFrameSize = 8 << 20

var (
	// errNotMultipart is returned when the stream endpoint does not serve a multipart body.
	errNotMultipart = errors.New("stream is not multipart")
	// errOpenTimeout is returned when the stream headers do not arrive in time.
	errOpenTimeout = errors.New("stream open timed out")
	// errReadTimeout is returned when a frame does not arrive in time.
	errReadTimeout = errors.New("stream read timed out")
	// errEmptyFrame is returned for zero-length parts.
	errEmptyFrame = errors.New("empty frame")
)

// mjpegStream reads JPEG parts from a multipart/x-mixed-replace response.
type mjpegStream struct {
	// body is the open response body.
	body io.ReadCloser
	// parts iterates over the multipart body.
	parts *multipart.Reader
	// cancel aborts the underlying request.
	cancel context.CancelFunc
}

// openStream issues the stream request and waits at most openTimeout for the headers.
func openStream(
	ctx context.Context,
	client *http.Client,
	url string,
	openTimeout time.Duration,
) (*mjpegStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}

	timer := time.AfterFunc(openTimeout, cancel)

	resp, err := client.Do(req)
	if !timer.Stop() {
		if resp != nil {
			_ = resp.Body.Close()
		}

		cancel()

		return nil, errOpenTimeout
	}

	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()

		cancel()

		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		_ = resp.Body.Close()

		cancel()

		return nil, fmt.Errorf("%w: %q", errNotMultipart, resp.Header.Get("Content-Type"))
	}

	return &mjpegStream{
		body:   resp.Body,
		parts:  multipart.NewReader(resp.Body, params["boundary"]),
		cancel: cancel,
	}, nil
}

// next decodes the next frame. When readTimeout elapses the request is
// aborted and the stream becomes unusable.
func (s *mjpegStream) next(readTimeout time.Duration) (image.Image, error) {
	timer := time.AfterFunc(readTimeout, s.cancel)

	data, err := s.readPart()
	if !timer.Stop() {
		return nil, errReadTimeout
	}

	if err != nil {
		return nil, err
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	return img, nil
}

// readPart returns the raw bytes of the next part.
func (s *mjpegStream) readPart() ([]byte, error) {
	part, err := s.parts.NextPart()
	if err != nil {
		return nil, fmt.Errorf("next part: %w", err)
	}

	defer func() {
		_ = part.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(part, maxFrameSize))
	if err != nil {
		return nil, fmt.Errorf("read part: %w", err)
	}

	if len(data) == 0 {
		return nil, errEmptyFrame
	}

	return data, nil
}

// close releases the connection.
func (s *mjpegStream) close() error {
	s.cancel()

	return s.body.Close()
}
