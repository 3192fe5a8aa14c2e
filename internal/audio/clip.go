package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/oshokin/alarm-silencer/internal/logger"
)

// Fallback beep parameters.
const (
	// BeepSampleRate is the sample rate of generated tones.
	BeepSampleRate = 22050
	// beepLowHz and beepHighHz alternate in the beep pattern.
	beepLowHz  = 800
	beepHighHz = 1000
	// beepToneDuration is the length of each tone.
	beepToneDuration = 500 * time.Millisecond
)

var (
	// ErrInvalidWAV is returned for files that are not RIFF WAVE.
	ErrInvalidWAV = errors.New("invalid wav file")
	// ErrEmptyClip is returned for clips without samples or format.
	ErrEmptyClip = errors.New("audio clip is empty")
)

// Clip is interleaved PCM normalized to [-1, 1].
type Clip struct {
	// Name labels the clip in logs.
	Name string
	// Samples holds Channels interleaved samples per frame.
	Samples []float32
	// SampleRate is in Hz.
	SampleRate int
	// Channels is the number of interleaved channels.
	Channels int
}

// Frames returns the number of sample frames.
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}

	return len(c.Samples) / c.Channels
}

// Duration returns the playback length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}

	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Tone generates a mono sine wave.
func Tone(frequency float64, duration time.Duration, sampleRate int) *Clip {
	frames := int(duration.Seconds() * float64(sampleRate))
	samples := make([]float32, frames)

	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * frequency * float64(i) / float64(sampleRate)))
	}

	return &Clip{
		Name:       fmt.Sprintf("%.0fHz", frequency),
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   1,
	}
}

// Beep returns the fallback pattern: 800 Hz then 1000 Hz, 500 ms each.
func Beep(sampleRate int) []*Clip {
	return []*Clip{
		Tone(beepLowHz, beepToneDuration, sampleRate),
		Tone(beepHighHz, beepToneDuration, sampleRate),
	}
}

// LoadWAV decodes a PCM WAV file.
func LoadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clip: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode clip: %w", err)
	}

	clip, err := clipFromPCM(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}

	clip.Name = path

	return clip, nil
}

// LoadClipOrBeep loads the clip at path and degrades to the beep pattern when
// path is empty or the clip cannot be loaded.
func LoadClipOrBeep(ctx context.Context, path string) []*Clip {
	if path == "" {
		logger.Info(ctx, "No alarm clip configured, using beep pattern")
		return Beep(BeepSampleRate)
	}

	clip, err := LoadWAV(path)
	if err != nil {
		logger.WarnKV(ctx, "Failed to load alarm clip, using beep pattern", "path", path, "error", err)
		return Beep(BeepSampleRate)
	}

	logger.InfoKV(ctx, "Loaded alarm clip",
		"path", path,
		"duration", clip.Duration(),
		"sample_rate", clip.SampleRate,
		"channels", clip.Channels,
	)

	return []*Clip{clip}
}

// clipFromPCM normalizes integer PCM by its source bit depth.
func clipFromPCM(buf *goaudio.IntBuffer) (*Clip, error) {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 ||
		buf.Format.SampleRate <= 0 || len(buf.Data) == 0 {
		return nil, ErrEmptyClip
	}

	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}

	var (
		scale  = float32(int64(1) << (depth - 1))
		offset = 0
	)

	// 8-bit WAV samples are unsigned.
	if depth == 8 {
		offset = 128
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v-offset) / scale
	}

	return &Clip{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}
