// Package portaudio plays alarm clips on the default output device.
package portaudio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/oshokin/alarm-silencer/internal/audio"
)

// framesPerBuffer is the number of frames written per device call; it bounds
// how long a canceled playback keeps sounding.
const framesPerBuffer = 512

// Sink writes clips to the default PortAudio output stream.
type Sink struct{}

// NewSink initializes PortAudio. Close must be called to release it.
func NewSink() (*Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	return &Sink{}, nil
}

// Play implements audio.Sink. A canceled ctx stops after the current buffer.
func (s *Sink) Play(ctx context.Context, clip *audio.Clip) error {
	buf := make([]float32, framesPerBuffer*clip.Channels)

	stream, err := portaudio.OpenDefaultStream(0, clip.Channels, float64(clip.SampleRate), framesPerBuffer, buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}

	defer func() {
		_ = stream.Close()
	}()

	if err = stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}

	defer func() {
		_ = stream.Stop()
	}()

	for offset := 0; offset < len(clip.Samples); offset += len(buf) {
		if err = ctx.Err(); err != nil {
			return err
		}

		n := copy(buf, clip.Samples[offset:])
		clear(buf[n:])

		if err = stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}

	return nil
}

// Close terminates PortAudio.
func (s *Sink) Close() error {
	return portaudio.Terminate()
}
